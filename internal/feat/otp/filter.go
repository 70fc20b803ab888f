package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tim-gee/telegram-otp-bot/internal/clock"
	"github.com/tim-gee/telegram-otp-bot/internal/feat/otp/store"
)

const DefaultRetention = 72 * time.Hour

// Filter decides which messages were never relayed before.
//
// Entries are forgotten once they are older than the retention window, after
// which the same portal entry would be classified as new again. The portal
// only lists recent messages, so a window of a few days bounds memory over
// long uptimes and a re-relay needs the portal to list a days old entry.
type Filter struct {
	store      store.StoreProvider
	clock      clock.Clock
	retention  time.Duration
	maxEntries int
}

func NewFilter(storeProvider store.StoreProvider, clk clock.Clock, retention time.Duration, maxEntries int) *Filter {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Filter{
		store:      storeProvider,
		clock:      clk,
		retention:  retention,
		maxEntries: maxEntries,
	}
}

// FilterNew returns, in their original order, the messages whose fingerprint
// is not cached yet, and caches them. A fingerprint repeated within msgs is
// returned once.
func (f *Filter) FilterNew(ctx context.Context, msgs []Message) ([]Message, error) {
	zlog := zerolog.Ctx(ctx)

	if len(msgs) == 0 {
		return nil, nil
	}

	now := f.clock.Now()
	if removed, err := f.store.DeleteOlderThan(ctx, now.Add(-f.retention)); err != nil {
		zlog.Err(err).Msg("error purging expired fingerprints before filtering")
	} else if removed != 0 {
		zlog.Debug().Int("removed", removed).Msg("expired fingerprints purged")
	}

	fingerprints := make([]string, len(msgs))
	for i, m := range msgs {
		fingerprints[i] = m.Fingerprint()
	}

	fresh, err := f.store.MarkSeen(ctx, fingerprints, now)
	if err != nil {
		return nil, fmt.Errorf("mark fingerprints as seen: %w", err)
	}

	newMsgs := make([]Message, 0, len(msgs))
	for i, m := range msgs {
		if fresh[i] {
			newMsgs = append(newMsgs, m)
		}
	}

	zlog.Debug().Int("input", len(msgs)).Int("new", len(newMsgs)).Msg("messages filtered")
	return newMsgs, nil
}

// Purge drops entries older than the retention window.
func (f *Filter) Purge(ctx context.Context) (int, error) {
	return f.store.DeleteOlderThan(ctx, f.clock.Now().Add(-f.retention))
}

func (f *Filter) Stats(ctx context.Context) (CacheStats, error) {
	n, err := f.store.Count(ctx)
	if err != nil {
		return CacheStats{}, err
	}
	return CacheStats{TotalCached: n, Retention: f.retention, MaxEntries: f.maxEntries}, nil
}

// Clear empties the cache and returns a summary meant for the operator.
func (f *Filter) Clear(ctx context.Context) (string, error) {
	n, err := f.store.Clear(ctx)
	if err != nil {
		return "", err
	}
	zerolog.Ctx(ctx).Info().Int("removed", n).Msg("otp cache cleared")
	return fmt.Sprintf("Cache cleared: %d entries removed", n), nil
}
