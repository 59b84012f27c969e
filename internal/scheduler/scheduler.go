// Package scheduler periodically invokes the settlement engine.
// Correctness never depends on the schedule: the redis guard only avoids
// wasted overlapping ticks, the engine's conditional writes carry the
// real idempotency guarantees.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/glamlot/glamlot/internal/audit/domain"
	"github.com/glamlot/glamlot/internal/clock"
	"github.com/glamlot/glamlot/internal/observability/metrics"
	"github.com/glamlot/glamlot/internal/observability/obscontext"
	"github.com/glamlot/glamlot/internal/ratelimit"
	"github.com/glamlot/glamlot/internal/settlement"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const settleAuctionsJob = "settle_auctions"
const settleAuctionsLockKey = "scheduler:lock:settle_auctions"

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	Log    *zap.Logger
	Engine *settlement.Engine
	GenID  *snowflake.Node
	Clock  clock.Clock
	Locker *ratelimit.Locker `optional:"true"`
	Config Config            `optional:"true"`
}

type Scheduler struct {
	log    *zap.Logger
	cfg    Config
	genID  *snowflake.Node
	clock  clock.Clock
	engine *settlement.Engine
	locker *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Engine == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		log:    p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:    cfg,
		genID:  p.GenID,
		clock:  p.Clock,
		engine: p.Engine,
		locker: p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	runID := s.genID.Generate().String()
	log := s.log.With(
		zap.String("job", name),
		zap.String("run_id", runID),
	)
	settlementMetrics := metrics.Settlement()
	settlementMetrics.IncJobRun(name)

	err := fn(ctx)
	settlementMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	// A deadline is a soft stop: whatever was not reached this tick is
	// picked up by the next one.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		settlementMetrics.IncJobTimeout(name)
		settlementMetrics.IncJobError(name, err)
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	settlementMetrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes one settlement tick. When another instance holds the
// run lock the tick is skipped, not failed.
func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, settleAuctionsJob, s.cfg.JobTimeout, s.SettleAuctionsJob)
}

func (s *Scheduler) SettleAuctionsJob(ctx context.Context) error {
	log := s.log.With(zap.String("job", settleAuctionsJob))

	if s.locker != nil {
		token, acquired, err := s.locker.TryLock(ctx, settleAuctionsLockKey, s.cfg.LockTTL)
		if err != nil {
			log.Warn("run lock unavailable, proceeding unguarded", zap.Error(err))
		} else if !acquired {
			log.Info("another settlement tick in flight, skipping")
			return nil
		} else {
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), settleAuctionsLockKey, token); err != nil {
					log.Warn("failed to release run lock", zap.Error(err))
				}
			}()
		}
	}

	report, err := s.engine.Run(ctx, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	if report.TotalProcessed > 0 {
		log.Info("settlement tick finished",
			zap.Int("total_processed", report.TotalProcessed),
			zap.Int("closed_count", report.ClosedCount),
			zap.Int("error_count", len(report.Errors)),
		)
	}
	for _, auctionErr := range report.Errors {
		log.Error("auction needs remediation",
			zap.String("auction_id", auctionErr.AuctionID.String()),
			zap.String("error", auctionErr.Error),
		)
	}
	return nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	settlementMetrics := metrics.Settlement()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			settlementMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
