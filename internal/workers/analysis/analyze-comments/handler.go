// Package analyzecomments runs comment analysis as a Zeebe job worker.
package analyzecomments

import (
	"context"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"comment-insights/internal/common/config"
	"comment-insights/internal/common/errors"
	"comment-insights/internal/common/logger"
	"comment-insights/internal/common/metrics"
	"comment-insights/internal/common/validation"
	"comment-insights/internal/engine/orchestrator"
	"comment-insights/internal/models"
)

const TaskType = "analyze-comments"

var inputSchema = validation.MustCompile(validation.CommentsRequestSchema)

// Analyzer is the orchestrator surface the worker needs.
type Analyzer interface {
	AnalyzeAll(ctx context.Context, items []string, opts ...orchestrator.RunOption) (*models.AggregatedAnalysis, error)
}

// JobTelemetry records job outcomes on the OpenTelemetry meter.
type JobTelemetry interface {
	RecordJobProcessed(ctx context.Context, status string)
	RecordJobDuration(ctx context.Context, d time.Duration, status string)
}

type Handler struct {
	config       *Config
	logger       logger.Logger
	analyzer     Analyzer
	telemetry    JobTelemetry
	errorHandler *errors.ErrorHandler
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Analyzer     Analyzer
	Telemetry    JobTelemetry
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)

	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("invalid configuration for %s: analyzer is required", TaskType)
	}

	var loggerInstance logger.Logger
	if opts.Logger != nil {
		loggerInstance = opts.Logger
	} else {
		loggerInstance = logger.NewStructured("info", "json")
	}
	loggerInstance = loggerInstance.With(map[string]interface{}{"worker": TaskType})

	return &Handler{
		config:       workerConfig,
		logger:       loggerInstance,
		analyzer:     opts.Analyzer,
		telemetry:    opts.Telemetry,
		errorHandler: errors.NewErrorHandler(loggerInstance),
	}, nil
}

func (h *Handler) Config() *Config { return h.config }

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	log := h.logger.With(map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})
	log.Info("Processing analyze-comments job", nil)

	if !h.config.Enabled {
		log.Info("Worker disabled by configuration", nil)
		return h.completeJob(ctx, client, job, &Output{Status: "analysis disabled"})
	}

	input, err := h.parseInput(job)
	if err == nil {
		var output *Output
		output, err = h.Execute(ctx, input, log)
		if err == nil {
			h.record(ctx, startTime, "success")
			metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
			return h.completeJob(ctx, client, job, output)
		}
	}

	code := string(errors.CodeOf(err))
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, code).Inc()
	h.record(ctx, startTime, "failed")
	// the job context may be what expired; reporting the failure still has to reach the broker
	failCtx, failCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer failCancel()
	h.errorHandler.HandleJobError(failCtx, client, job, err)
	return err
}

// Execute runs the analysis for already validated input.
func (h *Handler) Execute(ctx context.Context, input *Input, log logger.Logger) (*Output, error) {
	if log == nil {
		log = h.logger
	}
	if len(input.Comments) > h.config.MaxComments {
		return nil, errors.NewInputInvalidError(fmt.Sprintf(
			"%d comments exceed the limit of %d per job", len(input.Comments), h.config.MaxComments))
	}

	opts := []orchestrator.RunOption{
		orchestrator.WithProgress(func(done, total int) {
			log.Debug("batch progress", map[string]interface{}{"done": done, "total": total})
		}),
	}
	if input.RequestID != "" {
		opts = append(opts, orchestrator.WithRunID(input.RequestID))
	}

	analysis, err := h.analyzer.AnalyzeAll(ctx, input.Comments, opts...)
	if err != nil {
		return nil, err
	}

	log.Info("Analysis completed", map[string]interface{}{
		"runId":          analysis.RunID,
		"totalProcessed": analysis.TotalProcessed,
		"batchesFailed":  analysis.FailedBatchCount,
		"cacheHits":      analysis.CacheHits,
	})
	return newOutput(analysis), nil
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInputInvalidError("failed to parse job variables: " + err.Error())
	}

	result, err := inputSchema.ValidateGo(variables)
	if err != nil {
		return nil, errors.NewInputInvalidError(err.Error())
	}
	if !result.Valid {
		return nil, errors.NewInputInvalidError(result.Summary())
	}

	input := &Input{}
	if id, ok := variables["requestId"].(string); ok {
		input.RequestID = id
	}
	raw, _ := variables["comments"].([]interface{})
	input.Comments = make([]string, 0, len(raw))
	for _, c := range raw {
		input.Comments = append(input.Comments, c.(string))
	}
	return input, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) error {
	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return err
	}

	if _, err := request.Send(ctx); err != nil {
		h.logger.Error("Failed to send complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return err
	}
	return nil
}

func (h *Handler) record(ctx context.Context, start time.Time, status string) {
	elapsed := time.Since(start)
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(elapsed.Seconds())
	if h.telemetry != nil {
		h.telemetry.RecordJobProcessed(ctx, status)
		h.telemetry.RecordJobDuration(ctx, elapsed, status)
	}
}
