package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	instrumentsvc "historysync/internal/application/service/instruments"
	"historysync/internal/domain/entity/syncrun"
	"historysync/internal/domain/interfaces"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrRunInProgress = errors.New("a synchronization run is already in progress")

// Runner executes whole runs: load the store, discover instruments,
// synchronize, persist, then journal and announce the result.
type Runner struct {
	store        interfaces.StoreRepository
	instruments  *instrumentsvc.Service
	orchestrator *Orchestrator
	journal      interfaces.RunJournal
	publisher    interfaces.RunPublisher
	afterRun     []func(context.Context, syncrun.Summary)
	logger       *logrus.Entry
	running      atomic.Bool
}

// RunnerOption wires optional collaborators.
type RunnerOption func(*Runner)

func WithJournal(j interfaces.RunJournal) RunnerOption {
	return func(r *Runner) { r.journal = j }
}

func WithPublisher(p interfaces.RunPublisher) RunnerOption {
	return func(r *Runner) { r.publisher = p }
}

// WithAfterRun registers fn to be called with every finished run, whichever
// entry point started it.
func WithAfterRun(fn func(context.Context, syncrun.Summary)) RunnerOption {
	return func(r *Runner) { r.afterRun = append(r.afterRun, fn) }
}

func NewRunner(store interfaces.StoreRepository, instruments *instrumentsvc.Service, orchestrator *Orchestrator, logger *logrus.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	r := &Runner{
		store:        store,
		instruments:  instruments,
		orchestrator: orchestrator,
		logger:       logger.WithField("component", "sync_runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Running() bool {
	return r.running.Load()
}

// Run performs one synchronization. The summary is always populated; the
// error is non-nil when the store could not be loaded or saved, or when
// another run is in progress.
func (r *Runner) Run(ctx context.Context, req Request) (syncrun.Summary, error) {
	if !r.running.CompareAndSwap(false, true) {
		return syncrun.Summary{}, ErrRunInProgress
	}
	defer r.running.Store(false)

	summary := syncrun.Summary{
		RunID:     uuid.New(),
		StartedAt: r.orchestrator.now(),
	}
	log := r.logger.WithField("run_id", summary.RunID.String())

	store, err := r.store.Load(ctx)
	if err != nil {
		err = fmt.Errorf("load store: %w", err)
		return r.abort(ctx, summary, err), err
	}

	if len(req.Instruments) == 0 {
		list, source, err := r.instruments.Discover(ctx, store)
		if err != nil {
			err = fmt.Errorf("discover instruments: %w", err)
			return r.abort(ctx, summary, err), err
		}
		log.WithFields(logrus.Fields{"source": source, "instruments": len(list)}).Info("instruments discovered")
		req.Instruments = list
	}

	merged, summary, err := r.orchestrator.sync(ctx, store, req, summary)
	if err != nil {
		r.finalize(ctx, summary)
		return summary, err
	}

	// Whatever was fetched before a cancellation is still worth keeping.
	if err := r.store.Save(context.WithoutCancel(ctx), merged); err != nil {
		err = fmt.Errorf("save store: %w", err)
		summary.Error = err.Error()
		log.WithError(err).Error("store not saved")
		r.finalize(ctx, summary)
		return summary, err
	}

	r.finalize(ctx, summary)
	return summary, nil
}

func (r *Runner) abort(ctx context.Context, summary syncrun.Summary, err error) syncrun.Summary {
	summary.Status = syncrun.StatusFailedToStart
	summary.Error = err.Error()
	summary.Finish(r.orchestrator.now())
	r.logger.WithField("run_id", summary.RunID.String()).WithError(err).Error("sync failed to start")
	r.finalize(ctx, summary)
	return summary
}

// finalize journals and publishes a finished run. Failures here never change
// the outcome of the run.
func (r *Runner) finalize(ctx context.Context, summary syncrun.Summary) {
	ctx = context.WithoutCancel(ctx)
	log := r.logger.WithField("run_id", summary.RunID.String())
	if r.journal != nil {
		if err := r.journal.Record(ctx, summary); err != nil {
			log.WithError(err).Warn("run not journaled")
		}
	}
	if r.publisher != nil {
		if err := r.publisher.PublishRun(ctx, summary); err != nil {
			log.WithError(err).Warn("run not published")
		}
	}
	for _, fn := range r.afterRun {
		fn(ctx, summary)
	}
}

// LastRun returns the most recent journaled run, or nil without a journal.
func (r *Runner) LastRun(ctx context.Context) (*syncrun.Summary, error) {
	if r.journal == nil {
		return nil, nil
	}
	return r.journal.Last(ctx)
}

// Plan previews the chunks a run would fetch without fetching anything.
func (r *Runner) Plan(ctx context.Context, req Request) (Plan, error) {
	store, err := r.store.Load(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("load store: %w", err)
	}
	if len(req.Instruments) == 0 {
		list, _, err := r.instruments.Discover(ctx, store)
		if err != nil {
			return Plan{}, fmt.Errorf("discover instruments: %w", err)
		}
		req.Instruments = list
	}
	return r.orchestrator.Plan(store, req)
}

// Close releases the store and the optional collaborators.
func (r *Runner) Close() {
	r.store.Close()
	if r.journal != nil {
		r.journal.Close()
	}
	if r.publisher != nil {
		r.publisher.Close()
	}
}
