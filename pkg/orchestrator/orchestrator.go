// Package orchestrator owns the TransferOperation lifecycle: validation,
// batching, concurrent dispatch, batch-scoped fallback and final aggregation.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"s3transfer/pkg/batch"
	"s3transfer/pkg/metrics"
	"s3transfer/pkg/models"
	"s3transfer/pkg/strategy"
	"s3transfer/pkg/transfererror"
)

// Selector is the slice of the mode-selection service the orchestrator uses.
type Selector interface {
	SelectStrategy(ctx context.Context, op *models.TransferOperation, b *models.TransferBatch) strategy.Strategy
	PrevalidateDestination(ctx context.Context, loc models.S3Location)
	InvalidateAvailability()
}

// Orchestrator drives operations from PENDING through RUNNING to a terminal
// status. It exclusively owns every TransferOperation it creates; callers
// only ever see snapshots.
type Orchestrator struct {
	cfg         models.Config
	optimizer   *batch.Optimizer
	selector    Selector
	traditional strategy.Strategy
	sink        metrics.Sink
	log         *logrus.Entry

	mu  sync.RWMutex
	ops map[string]*operationState
}

type operationState struct {
	op        *models.TransferOperation
	cancel    context.CancelFunc
	done      chan struct{}
	cancelled atomic.Bool
}

// New wires an orchestrator. A nil sink is replaced with a no-op.
func New(cfg models.Config, selector Selector, traditional strategy.Strategy, sink metrics.Sink) *Orchestrator {
	cfg = cfg.Normalize()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Orchestrator{
		cfg:         cfg,
		optimizer:   batch.NewOptimizer(cfg.BatchBytesThreshold),
		selector:    selector,
		traditional: traditional,
		sink:        sink,
		log:         logrus.WithField("component", "orchestrator"),
		ops:         make(map[string]*operationState),
	}
}

// Submit validates the request, registers the operation and starts executing
// its batches. It returns immediately with the operation in RUNNING; invalid
// requests fail fast and no operation is recorded.
func (o *Orchestrator) Submit(req models.TransferRequest) (*models.TransferOperation, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = o.cfg.DefaultMode
	}

	batches, err := o.optimizer.Split(req.Source, req.Destination, req.Files, o.cfg.MaxBatchSize, o.cfg.BatchOptimizationStrategy)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	op := &models.TransferOperation{
		ID:          uuid.New().String(),
		Source:      req.Source,
		Destination: req.Destination,
		Mode:        mode,
		Status:      models.StatusPending,
		CreatedAt:   now,
	}

	ctx, cancel := context.WithCancel(context.Background())
	state := &operationState{
		op:     op,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	o.mu.Lock()
	o.ops[op.ID] = state
	started := time.Now()
	op.Status = models.StatusRunning
	op.StartedAt = &started
	accepted := op.Clone()
	o.mu.Unlock()

	o.log.WithFields(logrus.Fields{
		"operation_id": op.ID,
		"mode":         string(mode),
		"files":        len(req.Files),
		"batches":      len(batches),
		"dry_run":      req.DryRun,
	}).Info("operation accepted")

	if req.DryRun {
		go o.finishDryRun(state, batches)
	} else {
		go o.run(ctx, state, batches)
	}

	return accepted, nil
}

// Get returns an independent snapshot of the operation. Terminal operations
// return an identical snapshot on every call.
func (o *Orchestrator) Get(operationID string) (*models.TransferOperation, error) {
	return o.snapshot(operationID)
}

// List returns snapshots of all known operations.
func (o *Orchestrator) List() []*models.TransferOperation {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*models.TransferOperation, 0, len(o.ops))
	for _, state := range o.ops {
		out = append(out, state.op.Clone())
	}
	return out
}

// Await blocks until the operation reaches a terminal status or the caller's
// context expires.
func (o *Orchestrator) Await(ctx context.Context, operationID string) (*models.TransferOperation, error) {
	o.mu.RLock()
	state, ok := o.ops[operationID]
	o.mu.RUnlock()
	if !ok {
		return nil, transfererror.New(transfererror.KindValidation, "unknown operation %s", operationID)
	}
	select {
	case <-state.done:
		return o.snapshot(operationID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests cancellation of a running operation. Batches that already
// completed are not undone; in-flight batches are signalled through their
// context and their files are reported failed with a CANCELLED cause.
func (o *Orchestrator) Cancel(operationID string) error {
	o.mu.RLock()
	state, ok := o.ops[operationID]
	o.mu.RUnlock()
	if !ok {
		return transfererror.New(transfererror.KindValidation, "unknown operation %s", operationID)
	}

	o.mu.Lock()
	if state.op.Status.Terminal() {
		o.mu.Unlock()
		return transfererror.New(transfererror.KindValidation, "operation %s already %s", operationID, state.op.Status)
	}
	state.cancelled.Store(true)
	o.mu.Unlock()

	state.cancel()
	o.log.WithField("operation_id", operationID).Info("cancellation requested")
	return nil
}

func (o *Orchestrator) validate(req models.TransferRequest) error {
	if err := req.Source.Validate(); err != nil {
		return transfererror.Wrap(transfererror.KindValidation, err, "invalid source")
	}
	if err := req.Destination.Validate(); err != nil {
		return transfererror.Wrap(transfererror.KindValidation, err, "invalid destination")
	}
	if req.Source.Bucket == req.Destination.Bucket && req.Source.KeyPrefix == req.Destination.KeyPrefix {
		return transfererror.New(transfererror.KindValidation, "source and destination must differ")
	}
	if len(req.Files) == 0 {
		return transfererror.New(transfererror.KindValidation, "no files to transfer")
	}
	for i, f := range req.Files {
		if err := f.Validate(); err != nil {
			return transfererror.Wrap(transfererror.KindValidation, err, "file %d", i)
		}
	}
	switch req.Mode {
	case "", models.ModeAuto, models.ModeDirectSync, models.ModeTraditional:
	default:
		return transfererror.New(transfererror.KindValidation, "invalid transfer mode %q", req.Mode)
	}
	return nil
}

// run dispatches batches on a bounded set of workers and finalizes the
// operation only after every batch has reported (join semantics).
func (o *Orchestrator) run(ctx context.Context, state *operationState, batches []models.TransferBatch) {
	op := state.op
	collector := metrics.NewCollector()

	o.selector.PrevalidateDestination(ctx, op.Destination)

	sem := make(chan struct{}, o.cfg.MaxConcurrentBatches)
	var wg sync.WaitGroup
	var directBatches, traditionalBatches atomic.Int64
	var resultsMu sync.Mutex
	results := make([]*models.BatchResult, 0, len(batches))

	for i := range batches {
		b := &batches[i]
		wg.Add(1)
		go func() {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			res := o.executeBatch(ctx, op, b, &directBatches, &traditionalBatches)
			collector.Record(res)

			resultsMu.Lock()
			results = append(results, res)
			resultsMu.Unlock()
		}()
	}
	wg.Wait()

	var failed []models.FileError
	for _, res := range results {
		failed = append(failed, res.Failed...)
	}

	// A cancel that lands after every batch already finished cut nothing
	// short; the operation completed and its snapshot says so.
	status := models.StatusCompleted
	switch {
	case state.cancelled.Load() && len(failed) > 0:
		status = models.StatusCancelled
	case len(failed) > 0:
		status = models.StatusFailed
	}

	modeUsed := resolveModeUsed(op.Mode, directBatches.Load(), traditionalBatches.Load())
	summary := collector.Summarize(modeUsed)

	o.finalize(state, status, &summary, failed, collector.Fallbacks())
}

// executeBatch selects a strategy, runs it and applies the batch-scoped
// fallback policy: a direct-sync tool failure or timeout retries the same
// batch exactly once under the traditional strategy. Sibling batches are
// unaffected.
func (o *Orchestrator) executeBatch(ctx context.Context, op *models.TransferOperation, b *models.TransferBatch, direct, traditional *atomic.Int64) *models.BatchResult {
	if ctx.Err() != nil {
		return cancelledResult(b)
	}

	strat := o.selector.SelectStrategy(ctx, op, b)
	res, err := strat.Execute(ctx, b)

	if err != nil && strat.Name() == models.ModeDirectSync && op.Mode == models.ModeAuto && transfererror.Fallbackable(err) {
		if transfererror.IsToolUnavailable(err) {
			o.selector.InvalidateAvailability()
		}
		o.log.WithFields(logrus.Fields{
			"operation_id": op.ID,
			"batch_id":     b.ID,
			"cause":        err.Error(),
		}).Warn("direct sync failed, retrying batch under traditional strategy")

		fallbackRes, fallbackErr := o.traditional.Execute(ctx, b)
		if fallbackErr != nil {
			res = failedResult(b, transfererror.KindOf(fallbackErr), fallbackErr)
		} else {
			res = fallbackRes
		}
		res.FellBack = true
		traditional.Add(1)
		return res
	}

	if err != nil && res == nil {
		res = failedResult(b, transfererror.KindOf(err), err)
	}

	switch strat.Name() {
	case models.ModeDirectSync:
		direct.Add(1)
	default:
		traditional.Add(1)
	}
	return res
}

func (o *Orchestrator) finishDryRun(state *operationState, batches []models.TransferBatch) {
	summary := models.PerformanceMetrics{ModeUsed: state.op.Mode}
	o.log.WithFields(logrus.Fields{
		"operation_id": state.op.ID,
		"batches":      len(batches),
	}).Info("dry run validated")
	o.finalize(state, models.StatusCompleted, &summary, nil, 0)
}

// finalize applies the single legal forward transition to a terminal status
// and freezes the operation. Metric emission is fire-and-forget.
func (o *Orchestrator) finalize(state *operationState, status models.TransferStatus, summary *models.PerformanceMetrics, failed []models.FileError, fallbacks int64) {
	o.mu.Lock()
	op := state.op
	completed := time.Now()
	op.Status = status
	op.CompletedAt = &completed
	op.Metrics = summary
	if len(failed) > 0 {
		op.Error = &models.ErrorDetails{
			Message:     fmt.Sprintf("%d file(s) failed", len(failed)),
			FailedFiles: failed,
		}
	}
	o.mu.Unlock()

	o.sink.IncOperations(status)
	o.sink.AddBytesTransferred(summary.BytesTransferred)
	o.sink.IncFallbacks(fallbacks)
	if op.StartedAt != nil {
		o.sink.ObserveOperationDuration(completed.Sub(*op.StartedAt))
	}

	o.log.WithFields(logrus.Fields{
		"operation_id": op.ID,
		"status":       string(status),
		"files_ok":     summary.FilesTransferred,
		"files_failed": len(failed),
		"mode_used":    string(summary.ModeUsed),
	}).Info("operation finished")

	state.cancel()
	close(state.done)
}

func (o *Orchestrator) snapshot(operationID string) (*models.TransferOperation, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	state, ok := o.ops[operationID]
	if !ok {
		return nil, transfererror.New(transfererror.KindValidation, "unknown operation %s", operationID)
	}
	return state.op.Clone(), nil
}

func resolveModeUsed(requested models.TransferMode, direct, traditional int64) models.TransferMode {
	switch {
	case requested == models.ModeTraditional:
		return models.ModeTraditional
	case direct > 0 && traditional > 0:
		return models.ModeMixed
	case traditional > 0:
		return models.ModeTraditional
	case direct > 0:
		return models.ModeDirectSync
	default:
		// Nothing executed (cancelled before any batch started).
		return requested
	}
}

func cancelledResult(b *models.TransferBatch) *models.BatchResult {
	res := &models.BatchResult{BatchID: b.ID}
	for _, f := range b.Files {
		res.Failed = append(res.Failed, models.FileError{
			File:   f,
			Reason: string(transfererror.KindCancelled),
			Cause:  "operation cancelled before batch started",
		})
	}
	return res
}

func failedResult(b *models.TransferBatch, kind transfererror.Kind, err error) *models.BatchResult {
	if kind == "" {
		kind = transfererror.KindPartialBatch
	}
	res := &models.BatchResult{BatchID: b.ID}
	for _, f := range b.Files {
		res.Failed = append(res.Failed, models.FileError{
			File:   f,
			Reason: string(kind),
			Cause:  err.Error(),
		})
	}
	return res
}
