// Package gojob runs background auth checks for linked entities on a go-job
// queue.
package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"

	"github.com/goliatone/go-integrations/core"
)

const JobIDTestEntityAuth = "integrations.entity.test_auth"

const (
	paramVendor   = "vendor"
	paramUserID   = "user_id"
	paramEntityID = "entity_id"
)

// RetryPolicy bounds how often a failed auth check is requeued.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		BaseDelay:       30 * time.Second,
		MaxDelay:        15 * time.Minute,
		DeadLetterOnMax: true,
	}
}

// NormalizeAttempt clamps a nack for the given 1-based attempt. Once
// MaxAttempts is reached the message is no longer requeued.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// Backoff doubles BaseDelay per attempt, capped by MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// NewTestAuthMessage builds the queue message for one entity auth check.
func NewTestAuthMessage(req core.EntityRequest) (*job.ExecutionMessage, error) {
	vendor := strings.TrimSpace(req.Vendor)
	userID := strings.TrimSpace(req.UserID)
	entityID := strings.TrimSpace(req.EntityID)
	if userID == "" || entityID == "" {
		return nil, fmt.Errorf("gojob: user id and entity id are required")
	}
	return &job.ExecutionMessage{
		JobID:      JobIDTestEntityAuth,
		ScriptPath: JobIDTestEntityAuth,
		Parameters: map[string]any{
			paramVendor:   vendor,
			paramUserID:   userID,
			paramEntityID: entityID,
		},
		IdempotencyKey: strings.Join([]string{JobIDTestEntityAuth, vendor, userID, entityID}, ":"),
	}, nil
}

// EntityRequestFromMessage reads the entity request carried by an auth check
// message.
func EntityRequestFromMessage(msg *job.ExecutionMessage) (core.EntityRequest, error) {
	if msg == nil {
		return core.EntityRequest{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDTestEntityAuth {
		return core.EntityRequest{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	req := core.EntityRequest{
		Vendor:   stringParam(msg.Parameters, paramVendor),
		UserID:   stringParam(msg.Parameters, paramUserID),
		EntityID: stringParam(msg.Parameters, paramEntityID),
	}
	if req.UserID == "" || req.EntityID == "" {
		return core.EntityRequest{}, fmt.Errorf("gojob: message %q is missing user id or entity id", msg.IdempotencyKey)
	}
	return req, nil
}

type Scheduler struct {
	enqueuer queue.Enqueuer
}

func NewScheduler(enqueuer queue.Enqueuer) *Scheduler {
	return &Scheduler{enqueuer: enqueuer}
}

func (s *Scheduler) ScheduleTestAuth(ctx context.Context, req core.EntityRequest) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	msg, err := NewTestAuthMessage(req)
	if err != nil {
		return err
	}
	return s.enqueuer.Enqueue(ctx, msg)
}

// ScheduleEntities enqueues one auth check per entity and stops at the
// first enqueue error.
func (s *Scheduler) ScheduleEntities(ctx context.Context, entities []core.Entity) (int, error) {
	scheduled := 0
	for _, entity := range entities {
		if err := s.ScheduleTestAuth(ctx, core.EntityRequest{
			Vendor:   entity.Vendor,
			UserID:   entity.UserID,
			EntityID: entity.ID,
		}); err != nil {
			return scheduled, err
		}
		scheduled++
	}
	return scheduled, nil
}

// AuthTester is satisfied by *core.Service.
type AuthTester interface {
	TestEntityAuth(ctx context.Context, req core.EntityRequest) (core.AuthTestResult, error)
}

// DequeueError wraps failures of the underlying queue, as opposed to
// failures of a single auth check.
type DequeueError struct {
	Err error
}

func (e *DequeueError) Error() string {
	return fmt.Sprintf("gojob: dequeue failed: %v", e.Err)
}

func (e *DequeueError) Unwrap() error { return e.Err }

// Worker pulls auth check messages and runs them against an AuthTester.
// A check that runs but reports invalid auth is acked; only errors retry.
type Worker struct {
	tester   AuthTester
	dequeuer queue.Dequeuer
	policy   RetryPolicy
	hook     worker.Hook
	now      func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

type WorkerOption func(*Worker)

func WithRetryPolicy(policy RetryPolicy) WorkerOption {
	return func(w *Worker) {
		w.policy = policy
	}
}

func WithHook(hook worker.Hook) WorkerOption {
	return func(w *Worker) {
		if hook != nil {
			w.hook = hook
		}
	}
}

func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

func NewWorker(tester AuthTester, dequeuer queue.Dequeuer, opts ...WorkerOption) *Worker {
	w := &Worker{
		tester:   tester,
		dequeuer: dequeuer,
		policy:   DefaultRetryPolicy(),
		hook:     nopHook{},
		now:      func() time.Time { return time.Now().UTC() },
		attempts: map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// ProcessNext handles one delivery. Queue failures come back as *DequeueError.
func (w *Worker) ProcessNext(ctx context.Context) (core.AuthTestResult, error) {
	if w == nil || w.tester == nil || w.dequeuer == nil {
		return core.AuthTestResult{}, fmt.Errorf("gojob: worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return core.AuthTestResult{}, &DequeueError{Err: err}
	}
	if delivery == nil {
		return core.AuthTestResult{}, &DequeueError{Err: fmt.Errorf("empty delivery")}
	}

	msg := delivery.Message()
	event := worker.Event{Message: msg, Delivery: delivery, StartedAt: w.now()}
	req, err := EntityRequestFromMessage(msg)
	if err != nil {
		event.Err = err
		nackErr := delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()})
		w.hook.OnFailure(ctx, event)
		return core.AuthTestResult{}, errors.Join(err, nackErr)
	}

	key := attemptKey(msg)
	event.Attempt = w.nextAttempt(key)
	w.hook.OnStart(ctx, event)

	result, err := w.tester.TestEntityAuth(ctx, req)
	event.Duration = w.now().Sub(event.StartedAt)
	if err != nil {
		event.Err = err
		opts := w.policy.NormalizeAttempt(queue.NackOptions{
			Delay:   w.policy.Backoff(event.Attempt),
			Requeue: true,
			Reason:  err.Error(),
		}, event.Attempt)
		event.Delay = opts.Delay
		nackErr := delivery.Nack(ctx, opts)
		if opts.Requeue {
			w.hook.OnRetry(ctx, event)
		} else {
			w.forget(key)
			w.hook.OnFailure(ctx, event)
		}
		return core.AuthTestResult{}, errors.Join(err, nackErr)
	}

	w.forget(key)
	if err := delivery.Ack(ctx); err != nil {
		event.Err = err
		w.hook.OnFailure(ctx, event)
		return result, err
	}
	w.hook.OnSuccess(ctx, event)
	return result, nil
}

// Run processes deliveries until ctx is done or the queue fails. Failed
// checks are reported through the hook and do not stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := w.ProcessNext(ctx)
		var dequeueErr *DequeueError
		if errors.As(err, &dequeueErr) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}
}

func (w *Worker) nextAttempt(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *Worker) forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

func attemptKey(msg *job.ExecutionMessage) string {
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return strings.Join([]string{
		msg.JobID,
		stringParam(msg.Parameters, paramVendor),
		stringParam(msg.Parameters, paramUserID),
		stringParam(msg.Parameters, paramEntityID),
	}, ":")
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

type nopHook struct{}

func (nopHook) OnStart(context.Context, worker.Event)   {}
func (nopHook) OnSuccess(context.Context, worker.Event) {}
func (nopHook) OnFailure(context.Context, worker.Event) {}
func (nopHook) OnRetry(context.Context, worker.Event)   {}

var (
	_ worker.Hook = nopHook{}
	_ AuthTester  = (*core.Service)(nil)
)
