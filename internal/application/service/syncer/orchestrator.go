package syncer

import (
	"context"
	"fmt"
	"time"

	"historysync/internal/application/service/fetch"
	"historysync/internal/application/service/gaps"
	"historysync/internal/application/service/merge"
	"historysync/internal/application/service/normalize"
	"historysync/internal/domain/entity/calendar"
	"historysync/internal/domain/entity/instruments"
	"historysync/internal/domain/entity/syncrun"
	"historysync/internal/domain/entity/timeseries"
	"historysync/internal/domain/interfaces"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Request selects what one run synchronizes.
type Request struct {
	// Instruments to consider; the runner discovers them when empty.
	Instruments []instruments.Instrument
	// Codes narrows the run to these instrument codes when not empty.
	Codes []string
	// Target is the range to cover. The zero value means the configured
	// lookback ending today.
	Target calendar.Range
}

type Options struct {
	LookbackYears  int
	WindowDays     int
	ReservedPrefix string
	Allow          []string
	Location       *time.Location
}

// Orchestrator runs the gap, fetch, normalize and merge pipeline over a store.
type Orchestrator struct {
	opts       Options
	filter     instruments.Filter
	detector   *gaps.Detector
	scheduler  *fetch.Scheduler
	normalizer *normalize.Normalizer
	engine     *merge.Engine
	fetcher    interfaces.HistoryFetcher
	logger     *logrus.Entry
	now        func() time.Time
}

func NewOrchestrator(opts Options, fetcher interfaces.HistoryFetcher, scheduler *fetch.Scheduler, logger *logrus.Logger) *Orchestrator {
	if opts.LookbackYears <= 0 {
		opts.LookbackYears = calendar.DefaultLookbackYears
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = calendar.DefaultWindowDays
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if scheduler == nil {
		scheduler = fetch.NewScheduler(fetch.DefaultConfig(), logger)
	}
	return &Orchestrator{
		opts:       opts,
		filter:     instruments.NewFilter(opts.ReservedPrefix, opts.Allow),
		detector:   gaps.NewDetector(opts.WindowDays),
		scheduler:  scheduler,
		normalizer: normalize.New(),
		engine:     merge.NewEngine(),
		fetcher:    fetcher,
		logger:     logger.WithField("component", "sync_orchestrator"),
		now:        time.Now,
	}
}

// TargetFor resolves the range a request covers.
func (o *Orchestrator) TargetFor(req Request) (calendar.Range, error) {
	if req.Target != (calendar.Range{}) {
		return calendar.NewRange(req.Target.Start, req.Target.End)
	}
	today := calendar.DateOf(o.now().In(o.opts.Location))
	return calendar.Range{
		Start: today.AddDays(-o.opts.LookbackYears * 365),
		End:   today,
	}, nil
}

// Plan is the work one run will do.
type Plan struct {
	Target  calendar.Range
	Tasks   []fetch.Task
	Kept    []instruments.Instrument
	Skipped []instruments.Instrument
}

// Plan lists the chunks to fetch for every syncable instrument of req.
func (o *Orchestrator) Plan(store *timeseries.Store, req Request) (Plan, error) {
	target, err := o.TargetFor(req)
	if err != nil {
		return Plan{}, fmt.Errorf("resolve target: %w", err)
	}
	plan := Plan{Target: target}
	plan.Kept, plan.Skipped = o.filterFor(req).Apply(req.Instruments)

	dates := store.Dates()
	for _, inst := range plan.Kept {
		for _, chunk := range o.detector.Plan(dates[inst.Code], target) {
			plan.Tasks = append(plan.Tasks, fetch.Task{Instrument: inst, Chunk: chunk})
		}
	}
	return plan, nil
}

// filterFor narrows the configured filter to the codes of req.
func (o *Orchestrator) filterFor(req Request) instruments.Filter {
	if len(req.Codes) == 0 {
		return o.filter
	}
	narrowed := instruments.NewFilter(o.opts.ReservedPrefix, req.Codes)
	if len(o.filter.Allow) == 0 {
		return narrowed
	}
	for code := range narrowed.Allow {
		if _, ok := o.filter.Allow[code]; !ok {
			delete(narrowed.Allow, code)
		}
	}
	if len(narrowed.Allow) == 0 {
		// Nothing requested is allowed; keep a set that matches no code.
		narrowed.Allow = map[string]struct{}{"": {}}
	}
	return narrowed
}

// Sync brings store up to date for req and returns the new store. The input
// store is left untouched. Fetch and row failures are reported in the summary;
// the error is set only for an invalid request.
func (o *Orchestrator) Sync(ctx context.Context, store *timeseries.Store, req Request) (*timeseries.Store, syncrun.Summary, error) {
	summary := syncrun.Summary{
		RunID:     uuid.New(),
		StartedAt: o.now(),
	}
	return o.sync(ctx, store, req, summary)
}

func (o *Orchestrator) sync(ctx context.Context, store *timeseries.Store, req Request, summary syncrun.Summary) (*timeseries.Store, syncrun.Summary, error) {
	plan, err := o.Plan(store, req)
	if err != nil {
		summary.Status = syncrun.StatusFailedToStart
		summary.Error = err.Error()
		summary.StoreRows = store.Len()
		summary.Finish(o.now())
		return store, summary, err
	}
	summary.Instruments = len(plan.Kept)
	summary.InstrumentsSkipped = len(plan.Skipped)
	summary.ChunksPlanned = len(plan.Tasks)

	log := o.logger.WithField("run_id", summary.RunID.String())
	log.WithFields(logrus.Fields{
		"instruments": summary.Instruments,
		"skipped":     summary.InstrumentsSkipped,
		"chunks":      len(plan.Tasks),
		"target":      plan.Target.String(),
	}).Info("sync planned")

	results := o.scheduler.Run(ctx, plan.Tasks, o.fetcher)

	var batch []timeseries.Record
	for _, res := range results {
		batch = append(batch, o.collect(&summary, res)...)
	}

	merged, stats := o.engine.Merge(store, batch)
	summary.RowsMerged = stats.Inserted
	summary.RowsReplaced = stats.Replaced
	summary.StoreRows = merged.Len()
	summary.Finish(o.now())

	log.WithFields(logrus.Fields{
		"status":        summary.Status,
		"rows_merged":   summary.RowsMerged,
		"rows_replaced": summary.RowsReplaced,
		"rows_rejected": summary.RowsRejected,
		"chunk_failed":  summary.ChunkFailures(),
		"took_ms":       summary.Duration().Milliseconds(),
	}).Info("sync finished")
	return merged, summary, nil
}

// collect folds one task result into the summary and returns its records.
func (o *Orchestrator) collect(summary *syncrun.Summary, res fetch.Result) []timeseries.Record {
	failure := syncrun.ChunkFailure{
		Code:   res.Task.Instrument.Code,
		From:   res.Task.Chunk.Start.String(),
		To:     res.Task.Chunk.End.String(),
		Reason: res.Outcome.Reason,
	}
	switch res.Outcome.Kind {
	case fetch.KindSuccess:
		summary.ChunksFetched++
	case fetch.KindEmpty:
		summary.ChunksEmpty++
		return nil
	case fetch.KindHTTPFailure:
		summary.ChunksTransport++
		failure.Kind = syncrun.FailureTransport
		failure.StatusCode = res.Outcome.StatusCode
		summary.Failures = append(summary.Failures, failure)
		return nil
	case fetch.KindParseFailure:
		summary.ChunksParse++
		failure.Kind = syncrun.FailureParse
		summary.Failures = append(summary.Failures, failure)
		return nil
	case fetch.KindCancelled:
		summary.ChunksCancelled++
		failure.Kind = syncrun.FailureCancelled
		summary.Failures = append(summary.Failures, failure)
		return nil
	}

	records, rejects := o.normalizer.NormalizeAll(res.Outcome.Rows, res.Task.Instrument)
	summary.RowsParsed += len(records)
	summary.RowsRejected += len(rejects)
	for _, pf := range rejects {
		o.logger.WithFields(logrus.Fields{
			"code": pf.Code,
			"row":  pf.Row,
			"from": failure.From,
		}).WithError(pf).Warn("row rejected")
		rowFailure := failure
		rowFailure.Kind = syncrun.FailureRow
		rowFailure.Row = pf.Row
		rowFailure.Reason = pf.Reason
		summary.Failures = append(summary.Failures, rowFailure)
	}
	return records
}
