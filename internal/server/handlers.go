package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/tim-gee/telegram-otp-bot/internal/monitor"
	"github.com/tim-gee/telegram-otp-bot/internal/utils/resutils"
)

const (
	lastCheckLayout = "2006-01-02 15:04:05"
	stopWaitTimeout = 5 * time.Second
)

type homeResponse struct {
	Status         string  `json:"status"`
	Uptime         string  `json:"uptime"`
	TotalOtpsSent  int     `json:"total_otps_sent"`
	LastCheck      string  `json:"last_check"`
	LastError      *string `json:"last_error"`
	MonitorRunning bool    `json:"monitor_running"`
}

type statusResponse struct {
	Uptime                  string  `json:"uptime"`
	TotalOtpsSent           int     `json:"total_otps_sent"`
	LastCheck               string  `json:"last_check"`
	LastError               *string `json:"last_error"`
	CacheSize               int     `json:"cache_size"`
	MonitorRunning          bool    `json:"monitor_running"`
	Cycles                  int     `json:"cycles"`
	FailedCycles            int     `json:"failed_cycles"`
	PortalLoggedInAt        string  `json:"portal_logged_in_at,omitempty"`
	PortalReauthentications int     `json:"portal_reauthentications"`
}

type checkResponse struct {
	resutils.Result
	CycleID string `json:"cycle_id"`
	Fetched int    `json:"fetched"`
	New     int    `json:"new"`
	Relayed int    `json:"relayed"`
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.State().Snapshot()
	resutils.WriteJson(r.Context(), w, http.StatusOK, homeResponse{
		Status:         "running",
		Uptime:         formatUptime(snap.Uptime(s.clock.Now())),
		TotalOtpsSent:  snap.TotalRelayed,
		LastCheck:      formatLastCheck(snap.LastCheck),
		LastError:      lastError(snap),
		MonitorRunning: snap.Running,
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap := s.monitor.State().Snapshot()

	stats, err := s.otpFilter.Stats(ctx)
	if err != nil {
		resutils.WriteError(ctx, w, r, http.StatusInternalServerError, err)
		return
	}

	resp := statusResponse{
		Uptime:         formatUptime(snap.Uptime(s.clock.Now())),
		TotalOtpsSent:  snap.TotalRelayed,
		LastCheck:      formatLastCheck(snap.LastCheck),
		LastError:      lastError(snap),
		CacheSize:      stats.TotalCached,
		MonitorRunning: snap.Running,
		Cycles:         snap.Cycles,
		FailedCycles:   snap.FailedCycles,
	}
	if s.portal != nil {
		if at := s.portal.AuthenticatedAt(); !at.IsZero() {
			resp.PortalLoggedInAt = at.UTC().Format(time.RFC3339)
		}
		resp.PortalReauthentications = s.portal.Reauthentications()
	}

	if r.URL.Query().Get("send") != "true" {
		resutils.WriteJson(ctx, w, http.StatusOK, resp)
		return
	}

	if err := s.relay.SendText(ctx, s.statusText(resp)); err != nil {
		s.monitor.State().RecordError(err, s.clock.Now())
		zerolog.Ctx(ctx).Err(err).Msg("Failed to send status")
		resutils.WriteResult(ctx, w, http.StatusInternalServerError, resutils.StatusError, "Failed to send status")
		return
	}
	resutils.WriteResult(ctx, w, http.StatusOK, resutils.StatusSuccess, "Status sent to Telegram")
}

func (s *Server) statusText(resp statusResponse) string {
	localizer := s.relay.Localizer()
	monitorState := localizer.GetWithId("MonitorStopped")
	if resp.MonitorRunning {
		monitorState = localizer.GetWithId("MonitorRunning")
	}
	lastCheck := resp.LastCheck
	if lastCheck == neverChecked {
		lastCheck = localizer.GetWithId("Never")
	}
	return localizer.GetWithData("StatusReport", map[string]any{
		"Uptime":    resp.Uptime,
		"Total":     resp.TotalOtpsSent,
		"LastCheck": lastCheck,
		"CacheSize": resp.CacheSize,
		"Monitor":   monitorState,
	})
}

// manualCheck runs one cycle synchronously. The request context is detached
// from cancellation so a client hang-up can not abort a cycle between the
// dedup pass and the notification.
func (s *Server) manualCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report := s.monitor.RunCycle(context.WithoutCancel(ctx))

	resp := checkResponse{
		Result: resutils.Result{
			Status:    resutils.StatusSuccess,
			Message:   "OTP check completed",
			Timestamp: s.clock.Now().Format(time.RFC3339),
		},
		CycleID: report.ID,
		Fetched: report.Fetched,
		New:     report.New,
		Relayed: report.Relayed,
	}
	code := http.StatusOK
	if report.Err != nil {
		resp.Status = resutils.StatusError
		resp.Message = report.Err.Error()
		code = http.StatusInternalServerError
	}
	resutils.WriteJson(ctx, w, code, resp)
}

func (s *Server) testMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.relay.SendText(ctx, s.relay.Localizer().GetWithId("TestMessage")); err != nil {
		s.monitor.State().RecordError(err, s.clock.Now())
		zerolog.Ctx(ctx).Err(err).Msg("Failed to send test message")
		resutils.WriteResult(ctx, w, http.StatusInternalServerError, resutils.StatusError, "Failed to send test message")
		return
	}
	resutils.WriteResult(ctx, w, http.StatusOK, resutils.StatusSuccess, "Test message sent")
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := s.otpFilter.Clear(ctx)
	if err != nil {
		resutils.WriteError(ctx, w, r, http.StatusInternalServerError, err)
		return
	}
	resutils.WriteResult(ctx, w, http.StatusOK, resutils.StatusSuccess, summary)
}

func (s *Server) startMonitor(w http.ResponseWriter, r *http.Request) {
	if !s.monitor.Start() {
		resutils.WriteResult(r.Context(), w, http.StatusOK, resutils.StatusInfo, "Monitor already running")
		return
	}
	resutils.WriteResult(r.Context(), w, http.StatusOK, resutils.StatusSuccess, "Background monitor started")
}

func (s *Server) stopMonitor(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), stopWaitTimeout)
	defer cancel()

	stopped, err := s.monitor.Stop(ctx)
	switch {
	case !stopped:
		resutils.WriteResult(r.Context(), w, http.StatusOK, resutils.StatusInfo, "Monitor is not running")
	case err != nil:
		resutils.WriteResult(r.Context(), w, http.StatusOK, resutils.StatusSuccess, "Background monitor stopping, the current check is still finishing")
	default:
		resutils.WriteResult(r.Context(), w, http.StatusOK, resutils.StatusSuccess, "Background monitor stopped")
	}
}

const neverChecked = "Never"

func formatLastCheck(t time.Time) string {
	if t.IsZero() {
		return neverChecked
	}
	return t.Format(lastCheckLayout)
}

func lastError(snap monitor.Snapshot) *string {
	if snap.LastError == "" {
		return nil
	}
	return &snap.LastError
}

// formatUptime renders "3 days, 4:05:06" style durations.
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second

	hms := fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	switch days {
	case 0:
		return hms
	case 1:
		return "1 day, " + hms
	default:
		return fmt.Sprintf("%d days, %s", days, hms)
	}
}
