package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tim-gee/telegram-otp-bot/internal/clock"
	"github.com/tim-gee/telegram-otp-bot/internal/feat/otp"
	"github.com/tim-gee/telegram-otp-bot/internal/portal"
	"github.com/tim-gee/telegram-otp-bot/internal/utils"
)

const (
	DefaultInterval = 60 * time.Second
	DefaultBackoff  = 120 * time.Second
)

type Fetcher interface {
	FetchRaw(ctx context.Context) (portal.RawResponse, error)
}

type Deduper interface {
	FilterNew(ctx context.Context, msgs []otp.Message) ([]otp.Message, error)
}

type Notifier interface {
	SendOTPs(ctx context.Context, msgs []otp.Message) error
}

type Extractor func(raw portal.RawResponse) []otp.Message

type Options struct {
	Fetcher  Fetcher
	Extract  Extractor
	Dedup    Deduper
	Notifier Notifier
	Clock    clock.Clock
	State    *State
	Interval time.Duration
	Backoff  time.Duration
}

// CycleReport describes one fetch, dedup and notify pass.
type CycleReport struct {
	ID         string
	Fetched    int
	New        int
	Relayed    int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

type worker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller runs the poll cycle in at most one background worker and lets
// request handlers trigger a cycle by hand. Cycles never overlap, whoever
// starts them.
type Controller struct {
	fetcher  Fetcher
	extract  Extractor
	dedup    Deduper
	notifier Notifier
	clock    clock.Clock
	state    *State
	interval time.Duration
	backoff  time.Duration

	// baseCtx carries the logger and outlives Stop, so an in-flight fetch
	// or notify is never cut short.
	baseCtx context.Context

	mu     sync.Mutex
	worker *worker

	cycleMu sync.Mutex
}

func NewController(ctx context.Context, opts Options) *Controller {
	utils.Assert(opts.Fetcher != nil, "fetcher can not be nil")
	utils.Assert(opts.Dedup != nil, "dedup can not be nil")
	utils.Assert(opts.Notifier != nil, "notifier can not be nil")

	if opts.Extract == nil {
		opts.Extract = portal.Extract
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.State == nil {
		opts.State = NewState(opts.Clock.Now())
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}

	return &Controller{
		fetcher:  opts.Fetcher,
		extract:  opts.Extract,
		dedup:    opts.Dedup,
		notifier: opts.Notifier,
		clock:    opts.Clock,
		state:    opts.State,
		interval: opts.Interval,
		backoff:  opts.Backoff,
		baseCtx:  ctx,
	}
}

func (c *Controller) State() *State {
	return c.state
}

// Start launches the background worker. It returns false, and changes
// nothing, when a worker is already running.
func (c *Controller) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.worker != nil {
		return false
	}

	sleepCtx, cancel := context.WithCancel(c.baseCtx)
	w := &worker{cancel: cancel, done: make(chan struct{})}
	c.worker = w
	c.state.setRunning(true, c.clock.Now())

	go c.loop(sleepCtx, w)
	return true
}

// Stop asks the worker to exit and waits for it until ctx is done. A cycle
// already in progress runs to completion first. It returns false when the
// monitor was not running.
func (c *Controller) Stop(ctx context.Context) (bool, error) {
	c.mu.Lock()
	w := c.worker
	if w == nil {
		c.mu.Unlock()
		return false, nil
	}
	c.worker = nil
	c.state.setRunning(false, c.clock.Now())
	w.cancel()
	c.mu.Unlock()

	select {
	case <-w.done:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.worker != nil
}

func (c *Controller) isCurrent(w *worker) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.worker == w
}

func (c *Controller) loop(sleepCtx context.Context, w *worker) {
	zlog := zerolog.Ctx(c.baseCtx)
	defer close(w.done)
	defer func() {
		c.mu.Lock()
		if c.worker == w {
			c.worker = nil
			c.state.setRunning(false, c.clock.Now())
		}
		c.mu.Unlock()
		zlog.Info().Msg("Background OTP monitor stopped")
	}()

	zlog.Info().Dur("interval", c.interval).Dur("backoff", c.backoff).Msg("Background OTP monitor started")

	for c.isCurrent(w) {
		report := c.RunCycle(c.baseCtx)

		delay := c.interval
		if report.Err != nil {
			delay = c.backoff
		}
		if err := c.clock.Sleep(sleepCtx, delay); err != nil {
			return
		}
	}
}

// RunCycle performs one fetch, extract, dedup and notify pass. Every failure
// ends up in the report and in the monitor state; nothing escapes.
//
// Fingerprints are marked as seen before the notification is attempted, and
// a failed notification does not unmark them: a message is relayed at most
// once, and a delivery failure loses it rather than sending it twice.
func (c *Controller) RunCycle(ctx context.Context) (report CycleReport) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	report.ID = uuid.NewString()
	report.StartedAt = c.clock.Now()
	zlog := zerolog.Ctx(ctx).With().Str("cycle_id", report.ID).Logger()
	ctx = zlog.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			report.Err = fmt.Errorf("poll cycle panicked: %v", r)
		}
		report.FinishedAt = c.clock.Now()
		if report.Err != nil {
			zlog.Err(report.Err).Msg("Error while checking for new OTPs")
		}
		c.state.recordCycle(report.Err, report.FinishedAt)
	}()

	zlog.Info().Msg("Checking for new OTPs...")
	raw, err := c.fetcher.FetchRaw(ctx)
	c.state.recordCheck(c.clock.Now())
	if err != nil {
		report.Err = err
		return report
	}

	msgs := c.extract(raw)
	report.Fetched = len(msgs)
	if len(msgs) == 0 {
		zlog.Info().Msg("No messages found")
		return report
	}

	fresh, err := c.dedup.FilterNew(ctx, msgs)
	if err != nil {
		report.Err = err
		return report
	}
	report.New = len(fresh)
	if len(fresh) == 0 {
		zlog.Info().Int("fetched", len(msgs)).Msg("No new OTPs found (all were duplicates)")
		return report
	}

	zlog.Info().Int("new", len(fresh)).Msg("Found new OTPs")
	if err := c.notifier.SendOTPs(ctx, fresh); err != nil {
		report.Err = err
		return report
	}

	c.state.addRelayed(len(fresh))
	report.Relayed = len(fresh)
	zlog.Info().Int("relayed", len(fresh)).Msg("Successfully sent OTPs to Telegram")
	return report
}
