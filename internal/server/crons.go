package server

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/tim-gee/telegram-otp-bot/internal/cron"
)

const otpCachePurgeInterval = time.Hour

func (s *Server) registerCronJobs() error {
	_, err := cron.Schedule(s.cronScheduler, cron.Job{
		Name:  "Otp Cache Purge Expired Fingerprints",
		Every: otpCachePurgeInterval,
		Run: func(ctx context.Context) error {
			removed, err := s.otpFilter.Purge(ctx)
			if err == nil && removed != 0 {
				zerolog.Ctx(ctx).Info().Int("removed", removed).Msg("expired otp fingerprints purged")
			}
			return err
		},
	})
	return err
}
