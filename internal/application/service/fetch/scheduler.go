package fetch

import (
	"context"
	"fmt"
	"time"

	"historysync/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxConcurrency = 10
	DefaultTaskTimeout    = 60 * time.Second
)

// Config bounds the worker pool.
type Config struct {
	MaxConcurrency int
	TaskTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrency: DefaultMaxConcurrency,
		TaskTimeout:    DefaultTaskTimeout,
	}
}

// Scheduler runs fetch tasks on a bounded pool of workers.
type Scheduler struct {
	cfg    Config
	logger *logrus.Entry
}

func NewScheduler(cfg Config, logger *logrus.Logger) *Scheduler {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{cfg: cfg, logger: logger.WithField("component", "fetch_scheduler")}
}

// Run executes every task and returns one result per task, in task order.
// After ctx is cancelled no further task starts; tasks already running are
// allowed to finish and the rest are reported as KindCancelled.
func (s *Scheduler) Run(ctx context.Context, tasks []Task, fetcher interfaces.HistoryFetcher) []Result {
	results := make([]Result, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	workers := min(s.cfg.MaxConcurrency, len(tasks))
	queue := make(chan int)
	// In-flight fetches must not be cut off by run cancellation.
	fetchCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for idx := range queue {
				// A task handed over as the run is cancelled must not start.
				if ctx.Err() != nil {
					results[idx] = cancelled(ctx, tasks[idx])
					continue
				}
				results[idx] = s.execute(fetchCtx, tasks[idx], fetcher)
			}
			return nil
		})
	}

	next := 0
feed:
	for ; next < len(tasks); next++ {
		if ctx.Err() != nil {
			break
		}
		select {
		case queue <- next:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	_ = g.Wait()

	for idx := next; idx < len(tasks); idx++ {
		results[idx] = cancelled(ctx, tasks[idx])
	}
	skipped := 0
	for _, res := range results {
		if res.Outcome.Kind == KindCancelled {
			skipped++
		}
	}
	if skipped > 0 {
		s.logger.WithFields(logrus.Fields{
			"started":   len(tasks) - skipped,
			"cancelled": skipped,
		}).Warn("fetch run cancelled")
	}
	return results
}

func cancelled(ctx context.Context, task Task) Result {
	return Result{
		Task:    task,
		Outcome: Outcome{Kind: KindCancelled, Reason: "run cancelled before task started", Err: context.Cause(ctx)},
	}
}

func (s *Scheduler) execute(ctx context.Context, task Task, fetcher interfaces.HistoryFetcher) Result {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TaskTimeout)
	defer cancel()

	start := time.Now()
	outcome := s.invoke(ctx, task, fetcher)

	log := s.logger.WithFields(logrus.Fields{
		"code":    task.Instrument.Code,
		"from":    task.Chunk.Start.String(),
		"to":      task.Chunk.End.String(),
		"outcome": outcome.Kind.String(),
		"took_ms": time.Since(start).Milliseconds(),
	})
	switch outcome.Kind {
	case KindSuccess:
		log.WithField("rows", len(outcome.Rows)).Debug("chunk fetched")
	case KindEmpty:
		log.Debug("chunk empty")
	default:
		log.WithField("status", outcome.StatusCode).WithError(outcome.Err).Warn("chunk failed")
	}
	return Result{Task: task, Outcome: outcome}
}

// invoke shields the pool from a panicking fetcher.
func (s *Scheduler) invoke(ctx context.Context, task Task, fetcher interfaces.HistoryFetcher) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("fetcher panic: %v", r)
			outcome = Outcome{Kind: KindHTTPFailure, Reason: err.Error(), Err: err}
		}
	}()
	rows, err := fetcher.FetchHistory(ctx, task.Instrument.Code, task.Chunk)
	return classify(rows, err)
}
