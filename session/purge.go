package session

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"
)

// SchedulePurge runs m.Purge on the cron schedule until ctx is done.
func SchedulePurge(ctx context.Context, schedule string, m *Manager, log logr.Logger) (*cron.Cron, error) {
	cr := cron.New(
		cron.WithChain(
			cron.Recover(log),
			cron.SkipIfStillRunning(log),
		),
	)

	_, err := cr.AddFunc(schedule, func() {
		purged, err := m.Purge(ctx)
		if err != nil {
			log.Error(err, "while purging expired sessions")
			return
		}
		if purged > 0 {
			log.Info("purged expired sessions", "count", purged)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("while scheduling session purge %q: %w", schedule, err)
	}

	cr.Start()

	go func() {
		<-ctx.Done()
		cr.Stop()
	}()

	return cr, nil
}
