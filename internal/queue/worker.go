package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/kalambet/hivemind/internal/config"
)

// Handler processes one job's payload. Returning an error causes asynq to
// reschedule with RetryDelayFunc up to the job's MaxRetry, then archive.
type Handler func(ctx context.Context, payload []byte) error

// Worker consumes jobs from one or more named queues with one configurable
// total concurrency, shared across the queues by QueueWeights. It applies
// no rate limit of its own.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// QueueWeights maps queue name to its relative share of worker concurrency,
// asynq's mechanism for prioritizing one stage's jobs over another.
type QueueWeights map[string]int

// NewWorker builds a Worker with concurrency workers total, distributed
// across queues according to weights.
func NewWorker(cfg config.QueueConfig, concurrency int, weights QueueWeights) *Worker {
	server := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency:    concurrency,
		Queues:         weights,
		RetryDelayFunc: RetryDelayFunc,
		Logger:         slogAdapter{slog.Default()},
	})
	return &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		logger: slog.Default(),
	}
}

// Handle registers a Handler for jobs of the given name (the queue's task
// type, which by convention matches the queue name for single-stage
// queues but may be finer-grained, e.g. "processing:summarize").
func (w *Worker) Handle(jobName string, h Handler) {
	w.mux.HandleFunc(jobName, func(ctx context.Context, t *asynq.Task) error {
		if err := h(ctx, t.Payload()); err != nil {
			w.logger.Warn("job handler failed", "job", jobName, "error", err)
			return err
		}
		return nil
	})
}

// Run blocks, consuming jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()
	if err := w.server.Run(w.mux); err != nil {
		return fmt.Errorf("running worker: %w", err)
	}
	return nil
}

// slogAdapter bridges asynq's minimal logger interface to log/slog,
// matching the teacher's habit of small adapter shims instead of pulling
// in a logging facade.
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...)) }
func (a slogAdapter) Info(args ...any)  { a.l.Info(fmt.Sprint(args...)) }
func (a slogAdapter) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...)) }
func (a slogAdapter) Error(args ...any) { a.l.Error(fmt.Sprint(args...)) }
func (a slogAdapter) Fatal(args ...any) { a.l.Error(fmt.Sprint(args...)) }
