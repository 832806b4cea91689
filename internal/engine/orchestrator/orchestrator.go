// Package orchestrator drives a comment list through batching, the result
// cache, the retrying remote client and aggregation.
package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"comment-insights/internal/common/errors"
	"comment-insights/internal/common/logger"
	"comment-insights/internal/common/metrics"
	"comment-insights/internal/engine/pacing"
	"comment-insights/internal/engine/prompt"
	"comment-insights/internal/engine/retry"
	"comment-insights/internal/models"
)

const (
	// DefaultBatchSize keeps the estimate well under the smallest supported
	// model output limit.
	DefaultBatchSize = 20
	DefaultPause     = time.Second
)

// Analyzer performs one remote analysis call.
type Analyzer interface {
	Analyze(ctx context.Context, payload prompt.Payload, tokenBudget int) (models.BatchResult, error)
}

// ResultStore is the batch result cache.
type ResultStore interface {
	Get(fingerprint string) (models.BatchResult, bool)
	Put(fingerprint string, result models.BatchResult)
}

// Budgeter maps a batch size to a token budget.
type Budgeter interface {
	Estimate(itemCount int) int
	MaxBatchSize() int
}

// RunRecorder receives one record per finished run. Failures are logged and
// never change the run outcome.
type RunRecorder interface {
	RecordRun(ctx context.Context, rec RunRecord) error
}

// Telemetry receives run-level measurements.
type Telemetry interface {
	RecordRunProcessed(ctx context.Context, status string)
	RecordRunDuration(ctx context.Context, d time.Duration, status string)
}

// ProgressFunc is called after every batch reaches a terminal state.
type ProgressFunc func(done, total int)

type Config struct {
	Model        string
	BatchSize    int
	MaxItemChars int
}

type Dependencies struct {
	Client    Analyzer
	Cache     ResultStore
	Estimator Budgeter
	Retry     *retry.Policy
	Pacer     pacing.Pacer
	Prompt    *prompt.Builder
	Recorder  RunRecorder
	Telemetry Telemetry
	Logger    logger.Logger
}

type Orchestrator struct {
	cfg       Config
	client    Analyzer
	cache     ResultStore
	estimator Budgeter
	retry     *retry.Policy
	pacer     pacing.Pacer
	builder   *prompt.Builder
	recorder  RunRecorder
	telemetry Telemetry
	logger    logger.Logger
	tracer    trace.Tracer
	flight    singleflight.Group
	now       func() time.Time
}

func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if deps.Client == nil || deps.Cache == nil || deps.Estimator == nil {
		return nil, errors.NewConfigurationError("orchestrator needs a client, a cache and an estimator")
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize < 1 {
		return nil, errors.NewConfigurationError(fmt.Sprintf("batch size must be positive, got %d", cfg.BatchSize))
	}
	if limit := deps.Estimator.MaxBatchSize(); cfg.BatchSize > limit {
		return nil, errors.NewConfigurationError(fmt.Sprintf(
			"batch size %d exceeds the %d items the token ceiling allows", cfg.BatchSize, limit))
	}

	o := &Orchestrator{
		cfg:       cfg,
		client:    deps.Client,
		cache:     deps.Cache,
		estimator: deps.Estimator,
		retry:     deps.Retry,
		pacer:     deps.Pacer,
		builder:   deps.Prompt,
		recorder:  deps.Recorder,
		telemetry: deps.Telemetry,
		logger:    deps.Logger,
		tracer:    otel.Tracer("comment-insights/orchestrator"),
		now:       time.Now,
	}
	if o.retry == nil {
		o.retry = retry.NewPolicy(retry.DefaultMaxAttempts, retry.DefaultBaseDelay, retry.DefaultMaxDelay, retry.DefaultJitter)
	}
	if o.pacer == nil {
		o.pacer = pacing.NewFixedDelay(DefaultPause)
	}
	if o.builder == nil {
		o.builder = prompt.NewBuilder(cfg.MaxItemChars)
	}
	if o.logger == nil {
		o.logger = logger.NewNoOpLogger()
	}
	return o, nil
}

type runOptions struct {
	runID    string
	progress ProgressFunc
}

type RunOption func(*runOptions)

func WithProgress(fn ProgressFunc) RunOption {
	return func(o *runOptions) { o.progress = fn }
}

// WithRunID sets the run identifier instead of generating one.
func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.runID = id }
}

// run holds the per-invocation state. Only the goroutine driving the run
// touches it.
type run struct {
	id          string
	logger      logger.Logger
	remoteCalls int
	tokensSpent int
}

type batchOutcome int

const (
	batchDone batchOutcome = iota
	batchCached
	batchSkipped
	batchAborted
)

// AnalyzeAll analyzes items and returns the merged result. Batches run one
// after another; a batch whose retries run out is skipped. The run aborts on
// a fatal remote failure or when ctx is done between batches.
func (o *Orchestrator) AnalyzeAll(ctx context.Context, items []string, opts ...RunOption) (*models.AggregatedAnalysis, error) {
	if len(items) == 0 {
		return nil, errors.NewNoInputError()
	}

	ro := runOptions{}
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.runID == "" {
		ro.runID = uuid.NewString()
	}

	batches := Split(models.NewItems(items), o.cfg.BatchSize)
	r := &run{
		id: ro.runID,
		logger: o.logger.WithFields(map[string]interface{}{
			"runId":   ro.runID,
			"items":   len(items),
			"batches": len(batches),
		}),
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.AnalyzeAll", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.Int("run.items", len(items)),
		attribute.Int("run.batches", len(batches)),
	))
	defer span.End()

	metrics.AnalysisRunsActive.Inc()
	defer metrics.AnalysisRunsActive.Dec()

	start := o.now()
	r.logger.Info("analysis started", nil)

	results := make([]models.BatchResult, 0, len(batches))
	sizes := make([]int, 0, len(batches))
	failed, cacheHits := 0, 0
	var lastErr error

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("analysis cancelled", map[string]interface{}{"batch": i + 1, "error": err})
			return nil, o.finish(ctx, span, r, start, len(items), len(batches), failed, cacheHits, nil, err)
		}

		result, outcome, err := o.processBatch(ctx, r, i, len(batches), batch)
		switch outcome {
		case batchDone, batchCached:
			results = append(results, result)
			sizes = append(sizes, len(batch))
			if outcome == batchCached {
				cacheHits++
			}
		case batchSkipped:
			failed++
			lastErr = err
		case batchAborted:
			err = o.abortError(err, i, len(batches), len(results))
			return nil, o.finish(ctx, span, r, start, len(items), len(batches), failed, cacheHits, nil, err)
		}

		if ro.progress != nil {
			ro.progress(i+1, len(batches))
		}
	}

	if len(results) == 0 {
		err := errors.NewAllBatchesFailedError(len(batches), lastErr)
		return nil, o.finish(ctx, span, r, start, len(items), len(batches), failed, cacheHits, nil, err)
	}

	analysis := Aggregate(results, sizes)
	analysis.RunID = r.id
	analysis.TotalBatches = len(batches)
	analysis.FailedBatchCount = failed
	analysis.CacheHits = cacheHits

	return analysis, o.finish(ctx, span, r, start, len(items), len(batches), failed, cacheHits, analysis, nil)
}

// processBatch walks one batch through cache check, remote call and store.
func (o *Orchestrator) processBatch(ctx context.Context, r *run, index, total int, batch []models.AnalysisItem) (models.BatchResult, batchOutcome, error) {
	fields := map[string]interface{}{"batch": index + 1, "of": total, "size": len(batch)}
	fp := prompt.Fingerprint(batch)

	if cached, ok := o.cache.Get(fp); ok {
		metrics.AnalysisBatches.WithLabelValues("cached").Inc()
		r.logger.Debug("batch served from cache", fields)
		return cached, batchCached, nil
	}

	result, err := o.callDeduplicated(ctx, r, fp, batch)
	if err == nil {
		metrics.AnalysisBatches.WithLabelValues("done").Inc()
		r.logger.Info("batch done", fields)
		return result, batchDone, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.BatchResult{}, batchAborted, ctxErr
	}
	if retry.Classify(err) == retry.Fatal {
		metrics.AnalysisBatches.WithLabelValues("aborted").Inc()
		fields["error"] = err
		r.logger.Error("fatal remote failure, aborting run", fields)
		return models.BatchResult{}, batchAborted, err
	}

	metrics.AnalysisBatches.WithLabelValues("skipped").Inc()
	fields["error"] = err
	fields["errorCode"] = string(errors.CodeOf(err))
	r.logger.Warn("batch skipped", fields)
	return models.BatchResult{}, batchSkipped, err
}

// callDeduplicated collapses identical concurrent misses from different runs
// into one remote call. A follower whose leader was cancelled tries again
// under its own context.
func (o *Orchestrator) callDeduplicated(ctx context.Context, r *run, fp string, batch []models.AnalysisItem) (models.BatchResult, error) {
	for attempt := 0; ; attempt++ {
		v, err, shared := o.flight.Do(fp, func() (interface{}, error) {
			if cached, ok := o.cache.Get(fp); ok {
				return cached, nil
			}
			return o.call(ctx, r, batch, fp)
		})
		if err == nil {
			return v.(models.BatchResult).Clone(), nil
		}
		if shared && attempt == 0 && ctx.Err() == nil && isContextError(err) {
			continue
		}
		return models.BatchResult{}, err
	}
}

func (o *Orchestrator) call(ctx context.Context, r *run, batch []models.AnalysisItem, fp string) (models.BatchResult, error) {
	if r.remoteCalls > 0 {
		if err := o.pacer.Wait(ctx); err != nil {
			return models.BatchResult{}, err
		}
	}
	r.remoteCalls++

	payload := o.builder.Build(batch)
	budget := o.estimator.Estimate(len(batch))

	policy := *o.retry
	hook := o.retry.OnRetry
	policy.OnRetry = func(a retry.Attempt) {
		metrics.RemoteRetries.WithLabelValues(a.Class.String()).Inc()
		r.logger.Info("retrying remote call", map[string]interface{}{
			"attempt": a.Number,
			"delayMs": a.Delay.Milliseconds(),
			"class":   a.Class.String(),
			"error":   a.Err,
		})
		if hook != nil {
			hook(a)
		}
	}

	result, err := retry.Execute(ctx, &policy, func(ctx context.Context) (models.BatchResult, error) {
		return o.client.Analyze(ctx, payload, budget)
	})
	if err != nil {
		return models.BatchResult{}, err
	}

	r.tokensSpent += result.TokenUsage
	o.cache.Put(fp, result)
	return result, nil
}

// abortError shapes a fatal failure for the caller: nothing completed yet
// means the service is unusable, otherwise the fatal error is surfaced with
// its batch position.
func (o *Orchestrator) abortError(err error, index, total, completed int) error {
	if isContextError(err) {
		return err
	}
	if stderrors.Is(err, errors.ErrConfiguration) {
		return err
	}
	// skipped batches do not count as completed, so a run whose earlier
	// batches were all skipped still reports the service as unusable
	if completed == 0 {
		return errors.NewServiceUnavailableError(err)
	}
	return fmt.Errorf("batch %d of %d: %w", index+1, total, err)
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, r *run, start time.Time,
	items, batches, failed, cacheHits int, analysis *models.AggregatedAnalysis, runErr error) error {
	elapsed := o.now().Sub(start)
	status := runStatus(analysis, runErr)

	metrics.AnalysisRuns.WithLabelValues(status).Inc()
	span.SetAttributes(
		attribute.String("run.status", status),
		attribute.Int("run.failed_batches", failed),
		attribute.Int("run.cache_hits", cacheHits),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, status)
		r.logger.Error("analysis failed", map[string]interface{}{
			"error":      runErr,
			"status":     status,
			"durationMs": elapsed.Milliseconds(),
		})
	} else {
		r.logger.Info("analysis finished", map[string]interface{}{
			"status":     status,
			"failed":     failed,
			"cacheHits":  cacheHits,
			"durationMs": elapsed.Milliseconds(),
		})
	}

	if o.telemetry != nil {
		o.telemetry.RecordRunProcessed(ctx, status)
		o.telemetry.RecordRunDuration(ctx, elapsed, status)
	}

	if o.recorder != nil {
		rec := RunRecord{
			RunID:       r.id,
			Model:       o.cfg.Model,
			Items:       items,
			Batches:     batches,
			Failed:      failed,
			CacheHits:   cacheHits,
			RemoteCalls: r.remoteCalls,
			TokensSpent: r.tokensSpent,
			Duration:    elapsed,
			Status:      status,
			StartedAt:   start,
		}
		if analysis != nil {
			rec.Processed = analysis.TotalProcessed
		}
		// the caller's ctx may already be cancelled; the record should still land
		recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := o.recorder.RecordRun(recCtx, rec); err != nil {
			r.logger.Warn("failed to record run", map[string]interface{}{"error": err})
		}
		cancel()
	}

	return runErr
}

func runStatus(analysis *models.AggregatedAnalysis, err error) string {
	switch {
	case err == nil && analysis != nil && analysis.Degraded():
		return StatusDegraded
	case err == nil:
		return StatusComplete
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	default:
		return strings.ToLower(string(errors.CodeOf(err)))
	}
}

func isContextError(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
