package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/job-harvester/internal/domain"
	"github.com/ricirt/job-harvester/internal/queue"
)

// SchedulerWorker runs the processor once at start and then every interval,
// so items enqueued through the API are picked up without a manual run.
type SchedulerWorker struct {
	proc      *Processor
	counter   queue.Counter
	batchSize int
	interval  time.Duration
	onDepth   func(int)
	logger    *zap.Logger
}

// NewSchedulerWorker builds a scheduler. counter and onDepth are optional;
// when both are set the queue depth is reported after every run.
func NewSchedulerWorker(
	proc *Processor,
	counter queue.Counter,
	batchSize int,
	interval time.Duration,
	onDepth func(int),
	logger *zap.Logger,
) *SchedulerWorker {
	return &SchedulerWorker{
		proc: proc, counter: counter, batchSize: batchSize,
		interval: interval, onDepth: onDepth, logger: logger,
	}
}

// Run ticks every interval and drains the queue. A storage failure is logged
// and the next tick tries again. Stops cleanly when ctx is cancelled; a run
// in progress finishes its current item first.
func (sw *SchedulerWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	sw.logger.Info("scheduler worker started", zap.Duration("interval", sw.interval))

	sw.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("scheduler worker stopping")
			return nil
		case <-ticker.C:
			sw.poll(ctx)
		}
	}
}

func (sw *SchedulerWorker) poll(ctx context.Context) {
	sum, err := sw.proc.ProcessAll(ctx, sw.batchSize)
	switch {
	case errors.Is(err, domain.ErrAlreadyRunning):
		sw.logger.Debug("previous run still in progress")
	case err != nil:
		sw.logger.Error("scheduled run failed", zap.Error(err))
	case sum.Succeeded+sum.Failed+sum.DeadLettered > 0:
		sw.logger.Info("scheduled run complete",
			zap.String("run_id", sum.RunID),
			zap.Int("succeeded", sum.Succeeded),
			zap.Int("failed", sum.Failed),
			zap.Int("dead_lettered", sum.DeadLettered),
		)
	}

	sw.reportDepth(context.WithoutCancel(ctx))
}

func (sw *SchedulerWorker) reportDepth(ctx context.Context) {
	if sw.counter == nil || sw.onDepth == nil {
		return
	}
	n, err := sw.counter.Len(ctx)
	if err != nil {
		sw.logger.Warn("could not read queue depth", zap.Error(err))
		return
	}
	sw.onDepth(n)
}
