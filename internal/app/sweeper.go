package app

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// sweepFunc re-polls stale payments and reports how many orders changed.
type sweepFunc func(ctx context.Context) (int, error)

// startSweeper schedules sweep every interval. Runs never overlap: a run
// still in progress when the next tick fires pushes that tick back.
func startSweeper(ctx context.Context, interval time.Duration, sweep sweepFunc) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, errors.Wrap(err, "create scheduler")
	}

	lg := zctx.From(ctx).Named("sweeper")
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			start := time.Now()
			n, err := sweep(ctx)
			if err != nil {
				lg.Warn("Payment sweep failed", zap.Error(err), zap.Int("changed", n))
				return
			}
			if n > 0 {
				lg.Info("Payment sweep done", zap.Int("changed", n), zap.Duration("took", time.Since(start)))
			}
		}),
		gocron.WithName("payment-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, errors.Wrap(err, "schedule payment sweep")
	}

	s.Start()
	return s, nil
}
