package app

import (
	"context"
	"time"

	"tailbot/internal/tracker"
	"tailbot/pkg/logx"
)

// syncScheduleName keys the one registered schedule; re-registering under
// it replaces the spec instead of adding a second trigger.
const syncScheduleName = "flight-sync"

func (a *App) registerSync(spec string) error {
	_, err := a.sched.AddSchedule(syncScheduleName, spec, 0, func(ctx context.Context) error {
		_, err := a.SyncOnce(ctx)
		return err
	})
	return err
}

// SyncOnce runs one scrape-and-queue cycle and keeps the failure-streak
// accounting behind the operator alert.
func (a *App) SyncOnce(ctx context.Context) (tracker.SyncReport, error) {
	rep, err := a.trk.SyncOnce(ctx)
	if err != nil {
		a.alerts.SyncFailed(ctx, err)
		return rep, err
	}
	a.alerts.SyncSucceeded()
	a.log.Info("sync finished",
		logx.Int("scraped", rep.Scraped),
		logx.Int("new", rep.New),
		logx.Int("queued", rep.Queued),
		logx.String("previous_source", rep.PreviousSource),
	)
	return rep, nil
}

// RunOnce performs a single sync, drains the posting queue, and releases
// resources. Used by the -once flag and the Lambda entrypoint; the
// scheduler and config watcher never start.
func (a *App) RunOnce(ctx context.Context) error {
	a.pub.Start(ctx)
	_, syncErr := a.SyncOnce(ctx)

	// Queued posts are rate limited, so give the drain room.
	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	a.pub.Stop(stopCtx)
	cancel()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("closing storage failed", logx.Err(err))
		}
	}
	if a.logs != nil {
		a.logs.Close()
	}
	return syncErr
}
