// Package gologger bridges go-logger into go-job and reports background
// integration jobs through it.
package gologger

import (
	"context"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the glog pair then returns the go-job equivalents.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}

// WorkerHook logs go-job worker events. Retries log at warn and terminal
// failures at error.
type WorkerHook struct {
	logger glog.Logger
}

func NewWorkerHook(logger glog.Logger) *WorkerHook {
	if logger == nil {
		logger = glog.Nop()
	}
	return &WorkerHook{logger: logger}
}

func (h *WorkerHook) OnStart(ctx context.Context, event worker.Event) {
	h.logger.WithContext(ctx).Debug("integrations job started", eventFields(event)...)
}

func (h *WorkerHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.logger.WithContext(ctx).Info("integrations job completed", eventFields(event)...)
}

func (h *WorkerHook) OnRetry(ctx context.Context, event worker.Event) {
	h.logger.WithContext(ctx).Warn("integrations job scheduled for retry", eventFields(event)...)
}

func (h *WorkerHook) OnFailure(ctx context.Context, event worker.Event) {
	h.logger.WithContext(ctx).Error("integrations job failed", eventFields(event)...)
}

func eventFields(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fields := []any{"attempt", event.Attempt}
	if message != nil {
		fields = append(fields, "job_id", message.JobID, "idempotency_key", message.IdempotencyKey)
		for _, key := range []string{"vendor", "user_id", "entity_id"} {
			if value, ok := message.Parameters[key]; ok {
				fields = append(fields, key, value)
			}
		}
	}
	if event.Duration > 0 {
		fields = append(fields, "duration_ms", event.Duration.Milliseconds())
	}
	if event.Delay > 0 {
		fields = append(fields, "retry_delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
	}
	return fields
}

var _ worker.Hook = (*WorkerHook)(nil)
