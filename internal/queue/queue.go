// Package queue implements the Work Queue (C2): named job queues with
// retries, exponential backoff, and DLQ semantics, backed by asynq/redis.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kalambet/hivemind/internal/config"
)

// Queue names, keyed by pipeline stage (spec §4.2).
const (
	QueueIngestion  = "ingestion"
	QueueProcessing = "processing"
	QueueEmbedding  = "embedding"
	QueueAgentTasks = "agent-tasks"
)

const (
	defaultMaxAttempts = 3
	backoffBase        = 2 * time.Second
	backoffCap         = 30 * time.Second
)

// EnqueueOptions mirrors spec §4.2's `add(name, payload, opts)` contract.
type EnqueueOptions struct {
	Priority    int
	Delay       time.Duration
	MaxAttempts int
}

// Queue durably enqueues jobs and exposes DLQ inspection. Consumption
// happens through a separate Worker built on the same redis connection.
type Queue struct {
	client   *asynq.Client
	inspector *asynq.Inspector
}

func redisOpt(cfg config.QueueConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// New connects a Queue to redis using the given configuration.
func New(cfg config.QueueConfig) *Queue {
	opt := redisOpt(cfg)
	return &Queue{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

func (q *Queue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	return q.inspector.Close()
}

// Add enqueues payload onto the named queue, returning the durable task id.
func (q *Queue) Add(ctx context.Context, name string, payload any, opts EnqueueOptions) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling job payload: %w", err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	task := asynq.NewTask(name, body)
	taskOpts := []asynq.Option{
		asynq.Queue(name),
		asynq.MaxRetry(maxAttempts - 1), // asynq counts retries, not attempts
		asynq.Retention(24 * time.Hour),
	}
	if opts.Priority != 0 {
		taskOpts = append(taskOpts, asynq.Group(fmt.Sprintf("priority-%d", opts.Priority)))
	}
	if opts.Delay > 0 {
		taskOpts = append(taskOpts, asynq.ProcessIn(opts.Delay))
	}

	info, err := q.client.EnqueueContext(ctx, task, taskOpts...)
	if err != nil {
		return "", fmt.Errorf("enqueuing job on %s: %w", name, err)
	}
	return info.ID, nil
}

// RetryDelayFunc implements the spec's backoff·2^(attempts-1) schedule
// (default base 2s, capped at 30s), wired into asynq's server config.
// asynq passes n = retries so far (0 on the first failure, when one
// attempt has been made), so the exponent is n itself.
func RetryDelayFunc(n int, _ error, _ *asynq.Task) time.Duration {
	d := time.Duration(float64(backoffBase) * math.Pow(2, float64(n)))
	if d > backoffCap {
		return backoffCap
	}
	return d
}

// DeadLetter describes an archived (permanently failed) task for operator
// inspection, per SPEC_FULL.md's supplemented DLQ surface.
type DeadLetter struct {
	ID       string
	Queue    string
	Type     string
	Payload  []byte
	LastErr  string
	FailedAt time.Time
}

// ListDeadLetters returns up to limit archived tasks from queue.
func (q *Queue) ListDeadLetters(queue string, limit int) ([]DeadLetter, error) {
	tasks, err := q.inspector.ListArchivedTasks(queue, asynq.PageSize(limit))
	if err != nil {
		return nil, fmt.Errorf("listing archived tasks on %s: %w", queue, err)
	}
	out := make([]DeadLetter, 0, len(tasks))
	for _, ti := range tasks {
		out = append(out, DeadLetter{
			ID:       ti.ID,
			Queue:    ti.Queue,
			Type:     ti.Type,
			Payload:  ti.Payload,
			LastErr:  ti.LastErr,
			FailedAt: ti.LastFailedAt,
		})
	}
	return out, nil
}

// Requeue moves an archived task back onto its queue for another attempt.
func (q *Queue) Requeue(queue, taskID string) error {
	if err := q.inspector.RunTask(queue, taskID); err != nil {
		return fmt.Errorf("requeuing task %s on %s: %w", taskID, queue, err)
	}
	return nil
}
