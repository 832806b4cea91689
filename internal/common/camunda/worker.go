// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"comment-insights/internal/common/logger"
)

// JobHandler processes one activated job and completes or fails it itself.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job) error
}

type WorkerConfig struct {
	TaskType      string
	Name          string
	MaxJobsActive int
	Timeout       time.Duration
}

type CamundaWorker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

func NewWorker(client zbc.Client, cfg WorkerConfig, handler JobHandler, log logger.Logger) *CamundaWorker {
	log = log.With(map[string]interface{}{"taskType": cfg.TaskType})

	step := client.NewJobWorker().
		JobType(cfg.TaskType).
		Handler(wrapHandler(handler, log))
	if cfg.MaxJobsActive > 0 {
		step = step.MaxJobsActive(cfg.MaxJobsActive)
	}
	if cfg.Timeout > 0 {
		step = step.Timeout(cfg.Timeout)
	}
	if cfg.Name != "" {
		step = step.Name(cfg.Name)
	}

	w := &CamundaWorker{
		worker:   step.Open(),
		logger:   log,
		taskType: cfg.TaskType,
	}
	log.Info("worker started", map[string]interface{}{"maxJobsActive": cfg.MaxJobsActive})
	return w
}

// wrapHandler adapts a JobHandler to the Zeebe callback signature. The
// handler owns the job outcome, so a returned error is only logged.
func wrapHandler(handler JobHandler, log logger.Logger) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		if err := handler.Handle(client, job); err != nil {
			log.Error("Handler returned error", map[string]interface{}{
				"error":  err,
				"jobKey": job.Key,
			})
		}
	}
}

func (w *CamundaWorker) Stop(ctx context.Context) {
	w.logger.Info("stopping worker", nil)
	done := make(chan struct{})
	go func() {
		w.worker.Close()
		w.worker.AwaitClose()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("worker did not drain before shutdown deadline", nil)
	}
}
