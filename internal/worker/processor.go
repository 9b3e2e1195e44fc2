package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ricirt/job-harvester/internal/domain"
	"github.com/ricirt/job-harvester/internal/failurelog"
	"github.com/ricirt/job-harvester/internal/queue"
	"github.com/ricirt/job-harvester/internal/retry"
	"github.com/ricirt/job-harvester/internal/sink"
)

// State is the processor lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "stopped"
	}
}

// Item outcomes reported through Hooks.OnItem and counted in Summary.
const (
	OutcomeSucceeded    = "succeeded"
	OutcomeFailed       = "failed"
	OutcomeDeadLettered = "dead_lettered"
)

// FetchFunc turns one work item into a record. Errors carrying
// domain.ErrPermanentFetch are not retried. The record must carry its ID;
// it is handed to the sink unchanged.
type FetchFunc func(ctx context.Context, item domain.WorkItem) (*domain.JobRecord, error)

// Hooks lets callers observe the processor without it importing metrics.
// Every hook is optional.
type Hooks struct {
	OnItem  func(outcome string, elapsed time.Duration)
	OnRetry func(attempt int, wait time.Duration, err error)
	OnBatch func(size int)
	OnState func(State)
}

// Summary counts what one ProcessAll call did.
type Summary struct {
	RunID        string
	Batches      int
	Succeeded    int
	Failed       int
	DeadLettered int
	// Interrupted is set when shutdown stopped the run before the queue was
	// drained.
	Interrupted bool
}

// Options wires a Processor. Queue, Fetch and Sink are required; a Retry
// policy without MaxAttempts falls back to retry.DefaultPolicy.
type Options struct {
	Queue           queue.Queue
	Fetch           FetchFunc
	Sink            sink.Sink
	Retry           retry.Policy
	Failures        *failurelog.Log
	DeadLetterAfter int
	Hooks           Hooks
	Logger          *zap.Logger
}

// Processor drains the queue in bounded batches. Items are handled one at a
// time: fetch through the retry policy, write to the sink, then remove.
// Failed items stay queued.
type Processor struct {
	queue           queue.Queue
	tracker         queue.FailureTracker
	fetch           FetchFunc
	sink            sink.Sink
	policy          retry.Policy
	failures        *failurelog.Log
	deadLetterAfter int
	hooks           Hooks
	logger          *zap.Logger

	mu      sync.Mutex // guards state and orders OnState calls
	state   State
	running atomic.Bool
}

func NewProcessor(opts Options) *Processor {
	p := &Processor{
		queue:           opts.Queue,
		fetch:           opts.Fetch,
		sink:            opts.Sink,
		policy:          opts.Retry,
		failures:        opts.Failures,
		deadLetterAfter: opts.DeadLetterAfter,
		hooks:           opts.Hooks,
		logger:          opts.Logger,
	}
	if t, ok := opts.Queue.(queue.FailureTracker); ok {
		p.tracker = t
	}
	if p.policy.MaxAttempts <= 0 {
		p.policy = retry.DefaultPolicy
	}
	if p.failures == nil {
		p.failures = failurelog.Nop()
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// State reports the current lifecycle state.
func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ProcessAll drains the queue until it is empty, only items that already
// failed in this run remain, or ctx is cancelled.
//
// Cancelling ctx requests a graceful stop: the item in flight is finished
// (fetch, retries, sink and remove run detached from ctx) and no further
// item is started. Item failures are logged and counted, never returned.
// The returned error is non-nil only for queue faults (wrapping
// domain.ErrStorage), an invalid batch size or a concurrent call.
func (p *Processor) ProcessAll(ctx context.Context, batchSize int) (Summary, error) {
	if batchSize <= 0 {
		return Summary{}, domain.ErrInvalidLimit
	}
	if !p.running.CompareAndSwap(false, true) {
		return Summary{}, domain.ErrAlreadyRunning
	}
	defer p.running.Store(false)

	sum := Summary{RunID: uuid.NewString()}
	log := p.logger.With(zap.String("run_id", sum.RunID))

	p.setState(StateRunning)
	defer p.setState(StateStopped)

	stopWatch := context.AfterFunc(ctx, func() { p.beginDrain(log) })
	defer stopWatch()

	stopping := func() bool {
		if ctx.Err() == nil {
			return false
		}
		p.beginDrain(log)
		return true
	}

	work := context.WithoutCancel(ctx)
	attempted := make(map[string]struct{})
	// failedHere counts items that failed this run and may still sit ahead of
	// fresh work; each dequeue looks that much further so they cannot hide it.
	failedHere := 0

	log.Info("run started", zap.Int("batch_size", batchSize))

drain:
	for {
		if stopping() {
			sum.Interrupted = true
			break
		}

		limit := batchSize + failedHere
		items, err := p.queue.Dequeue(work, limit)
		if err != nil {
			log.Error("dequeue failed", zap.Error(err))
			return sum, fmt.Errorf("dequeue: %w", err)
		}
		if len(items) == 0 {
			break
		}

		fresh := make([]domain.WorkItem, 0, batchSize)
		for _, it := range items {
			if _, seen := attempted[it.URL]; seen {
				continue
			}
			fresh = append(fresh, it)
			if len(fresh) == batchSize {
				break
			}
		}
		if len(fresh) == 0 {
			// The peek covered every failed item plus batchSize more, so a
			// batch of only failed items means nothing fresh is queued.
			log.Info("only items that failed in this run remain", zap.Int("remaining", len(items)))
			break
		}

		sum.Batches++
		if p.hooks.OnBatch != nil {
			p.hooks.OnBatch(len(fresh))
		}

		for _, item := range fresh {
			if stopping() {
				sum.Interrupted = true
				break drain
			}
			attempted[item.URL] = struct{}{}

			outcome, err := p.processItem(work, log, item)
			if err != nil {
				return sum, err
			}
			switch outcome {
			case OutcomeSucceeded:
				sum.Succeeded++
			case OutcomeDeadLettered:
				sum.DeadLettered++
			default:
				sum.Failed++
				failedHere++
			}
		}
	}

	log.Info("run finished",
		zap.Int("batches", sum.Batches),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("dead_lettered", sum.DeadLettered),
		zap.Bool("interrupted", sum.Interrupted),
	)
	return sum, nil
}

// processItem handles one item end to end. The error is non-nil only when
// the item could not be removed after succeeding.
func (p *Processor) processItem(ctx context.Context, log *zap.Logger, item domain.WorkItem) (string, error) {
	start := time.Now()
	log = log.With(zap.String("url", item.URL), zap.String("job_id", item.ID()))

	attempts := 0
	policy := p.policy
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		log.Warn("fetch failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if p.hooks.OnRetry != nil {
			p.hooks.OnRetry(attempt, wait, err)
		}
	}

	rec, err := retry.Do(ctx, policy, func(ctx context.Context) (*domain.JobRecord, error) {
		attempts++
		return p.fetch(ctx, item)
	})
	switch {
	case err != nil:
	case rec == nil:
		err = errors.New("fetch returned no record")
	case rec.ID == "":
		err = errors.New("fetch returned a record without id")
	default:
		err = p.sink.Write(ctx, rec)
	}
	if err != nil {
		outcome := p.fail(ctx, log, item, err, attempts)
		p.observe(outcome, start)
		return outcome, nil
	}

	if err := p.queue.Remove(ctx, []string{item.URL}); err != nil {
		log.Error("remove failed", zap.Error(err))
		return "", fmt.Errorf("remove %s: %w", item.URL, err)
	}

	log.Info("item processed", zap.Int("attempts", attempts), zap.Duration("elapsed", time.Since(start)))
	p.observe(OutcomeSucceeded, start)
	return OutcomeSucceeded, nil
}

// fail records a failed item and, when the queue tracks failures, pushes it
// behind fresh work or dead-letters it once DeadLetterAfter is reached.
// Tracker errors are logged only; the item simply stays where it was.
func (p *Processor) fail(ctx context.Context, log *zap.Logger, item domain.WorkItem, err error, attempts int) string {
	p.failures.Record(item, err, attempts)
	log.Error("item failed", zap.Int("attempts", attempts), zap.Error(err))

	if p.tracker == nil {
		return OutcomeFailed
	}

	failures, terr := p.tracker.MarkFailed(ctx, item.URL, err.Error())
	if terr != nil {
		log.Error("could not record failure", zap.Error(terr))
		return OutcomeFailed
	}
	if p.deadLetterAfter <= 0 || failures < p.deadLetterAfter {
		return OutcomeFailed
	}

	if derr := p.tracker.DeadLetter(ctx, item.URL, err.Error()); derr != nil {
		log.Error("could not dead-letter item", zap.Error(derr))
		return OutcomeFailed
	}
	log.Warn("item dead-lettered", zap.Int("failures", failures))
	return OutcomeDeadLettered
}

func (p *Processor) observe(outcome string, start time.Time) {
	if p.hooks.OnItem != nil {
		p.hooks.OnItem(outcome, time.Since(start))
	}
}

func (p *Processor) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
	p.notifyState(s)
}

// beginDrain moves Running to Draining. It runs both from the context
// watcher and from the item loop, whichever sees the cancellation first.
func (p *Processor) beginDrain(log *zap.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning {
		return
	}
	p.state = StateDraining
	p.notifyState(StateDraining)
	log.Info("shutdown requested, finishing current item")
}

// notifyState must be called with p.mu held.
func (p *Processor) notifyState(s State) {
	if p.hooks.OnState != nil {
		p.hooks.OnState(s)
	}
}
