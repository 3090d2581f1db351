// Command hivemind is the composition root: it wires the event log,
// work queue, adapters, processing pipeline, vector store, retrieval
// service, context builder, and agent loop into one process, then
// exposes the thin query façade of spec §6 over HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kalambet/hivemind/internal/adapter"
	"github.com/kalambet/hivemind/internal/adapter/slackadapter"
	"github.com/kalambet/hivemind/internal/agent"
	"github.com/kalambet/hivemind/internal/api"
	"github.com/kalambet/hivemind/internal/config"
	ctxbuild "github.com/kalambet/hivemind/internal/context"
	"github.com/kalambet/hivemind/internal/eventlog"
	"github.com/kalambet/hivemind/internal/ingest"
	"github.com/kalambet/hivemind/internal/llm"
	"github.com/kalambet/hivemind/internal/pipeline"
	"github.com/kalambet/hivemind/internal/queue"
	"github.com/kalambet/hivemind/internal/retrieval"
	"github.com/kalambet/hivemind/internal/vectorstore"
	"github.com/kalambet/hivemind/internal/vectorstore/pgvec"
	"github.com/kalambet/hivemind/internal/vectorstore/sqlitevec"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	slog.Info("hivemind starting", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, err := eventlog.Open(cfg.VectorStore.DataDir)
	if err != nil {
		return fmt.Errorf("opening event log: %w", err)
	}
	defer events.Close()

	vecStore, closeVecStore, err := openVectorStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening vector store: %w", err)
	}
	defer closeVecStore()

	accessCache, err := vectorstore.OpenAccessCache(filepath.Join(cfg.VectorStore.DataDir, "accesscache"), vecStore, 10*time.Second)
	if err != nil {
		return fmt.Errorf("opening access cache: %w", err)
	}
	stopAccessCache := make(chan struct{})
	go accessCache.Run(stopAccessCache)
	defer func() {
		close(stopAccessCache)
		accessCache.Close()
	}()

	lifecycle := vectorstore.NewLifecycle(vecStore, vectorstore.LifecycleConfig{
		HotMaxAge:         cfg.Chunk.HotToWarmAfter,
		WarmMaxAge:        cfg.Chunk.WarmToColdAfter,
		LowAccessQuantile: 0.25,
		Schedule:          "0 * * * *",
	})
	if err := lifecycle.Start(); err != nil {
		return fmt.Errorf("starting lifecycle task: %w", err)
	}
	defer lifecycle.Stop()

	manager := llm.NewManager()
	registerProviders(ctx, manager, cfg)
	chatProvider, err := manager.GetWithFallback(cfg.LLM.Default)
	if err != nil {
		return fmt.Errorf("resolving chat provider: %w", err)
	}
	embedProvider, err := manager.Get(embeddingProviderName(cfg))
	if err != nil {
		return fmt.Errorf("resolving embedding provider: %w", err)
	}

	pl, err := pipeline.New(events, vecStore, chatProvider, embedProvider, cfg.Embedding.Model)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	q := queue.New(cfg.Queue)
	defer q.Close()

	worker := queue.NewWorker(cfg.Queue, 10, queue.QueueWeights{
		queue.QueueIngestion:  1,
		queue.QueueProcessing: 3,
		queue.QueueEmbedding:  2,
		queue.QueueAgentTasks: 1,
	})
	worker.Handle(queue.QueueProcessing, func(ctx context.Context, payload []byte) error {
		var job ingest.ProcessingJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return fmt.Errorf("decoding processing job: %w", err)
		}
		return pl.Process(ctx, job.RawEventID)
	})
	go func() {
		if err := worker.Run(ctx); err != nil {
			slog.Error("queue worker stopped", "error", err)
		}
	}()

	ingestWorker := ingest.NewWorker(events, q)
	for name, rt := range startAdapters(ctx, cfg) {
		go relayAdapterEvents(ctx, name, rt, ingestWorker)
	}

	var reranker retrieval.Reranker
	if cfg.Retrieval.RerankEnabled {
		reranker = retrieval.NewLLMReranker(chatProvider, cfg.Retrieval.RerankTimeout)
	}
	retriever := retrieval.New(vecStore, embedProvider, reranker, accessCache)
	builder := ctxbuild.New(retriever)

	registry := agent.NewRegistry()
	if err := agent.RegisterMemoryTools(registry, retriever); err != nil {
		return fmt.Errorf("registering memory tools: %w", err)
	}
	loop := agent.NewLoop(chatProvider, registry)

	handler := api.NewHandler(api.AppDeps{
		Retriever:      retriever,
		ContextBuilder: builder,
		Loop:           loop,
		Token:          cfg.Server.Token,
		SystemPrompt:   defaultSystemPrompt,
		AgentOptions: agent.Options{
			MaxIterations: cfg.Agent.MaxIterations,
			Temperature:   cfg.Agent.Temperature,
			MaxTokens:     cfg.Agent.MaxTokens,
		},
		Ready: func(ctx context.Context) error {
			_, err := vecStore.Stats()
			return err
		},
	})

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("hivemind listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

const defaultSystemPrompt = "You are the collective memory assistant for an engineering team. " +
	"Use the search_memory, get_recent_events, and find_similar tools to ground every answer " +
	"in retrieved evidence; say so plainly when nothing relevant is found."

// openVectorStore selects the sqlite or postgres backend per
// cfg.VectorStore.Backend (spec §6's configuration table).
func openVectorStore(ctx context.Context, cfg config.Config) (vectorstore.Store, func() error, error) {
	switch cfg.VectorStore.Backend {
	case "postgres":
		store, err := pgvec.Open(ctx, cfg.VectorStore.PostgresURL, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		store, err := sqlitevec.Open(cfg.VectorStore.DataDir, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
}

// embeddingProviderName maps the configured embedding provider to the
// name it was registered under; ollama's embed model is distinct from
// its chat model but shares the same provider instance.
func embeddingProviderName(cfg config.Config) string {
	switch cfg.Embedding.Provider {
	case "ollama":
		return "ollama"
	case "google":
		return "google"
	default:
		return "openai"
	}
}

// registerProviders constructs and registers every LLM back-end with
// non-empty credentials; unconfigured providers are simply absent from
// the manager, so GetWithFallback falls through to whatever is available.
func registerProviders(ctx context.Context, m *llm.Manager, cfg config.Config) {
	if cfg.LLM.AnthropicAPIKey != "" {
		m.Register(llm.NewAnthropicProvider(cfg.LLM.AnthropicAPIKey, cfg.LLM.AnthropicModel))
	}
	if cfg.LLM.OpenAIAPIKey != "" {
		m.Register(llm.NewOpenAIProvider(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIModel, cfg.Embedding.Model))
	}
	if cfg.LLM.GoogleAPIKey != "" {
		if p, err := llm.NewGoogleProvider(ctx, cfg.LLM.GoogleAPIKey, cfg.LLM.GoogleModel, cfg.Embedding.Model); err == nil {
			m.Register(p)
		} else {
			slog.Warn("google provider unavailable", "error", err)
		}
	}
	if cfg.LLM.OllamaBaseURL != "" {
		m.Register(llm.NewOllamaProvider(cfg.LLM.OllamaBaseURL, cfg.LLM.OllamaChatModel, cfg.Embedding.Model))
	}
}

// startAdapters starts one adapter.Runtime per source with non-empty
// credentials; the specific wire handling of each source is out of
// scope (spec §1), only the Adapter interface matters here.
func startAdapters(ctx context.Context, cfg config.Config) map[string]*adapter.Runtime {
	runtimes := make(map[string]*adapter.Runtime)

	if cfg.Adapters.SlackBotToken != "" && cfg.Adapters.SlackAppToken != "" {
		a := slackadapter.New(cfg.Adapters.SlackBotToken, cfg.Adapters.SlackAppToken)
		rt := adapter.NewRuntime(a, cfg.Adapters.SlackSelfUser)
		go rt.Run(ctx)
		runtimes["slack"] = rt
	}

	return runtimes
}

// relayAdapterEvents forwards one adapter.Runtime's normalized events
// into the ingestion worker until its channel closes or ctx ends.
func relayAdapterEvents(ctx context.Context, name string, rt *adapter.Runtime, w *ingest.Worker) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-rt.Events():
			if !ok {
				return
			}
			if err := w.Ingest(ctx, ingest.Event{
				Source:     ev.Source,
				EventType:  ev.EventType,
				ExternalID: ev.ExternalID,
				Payload:    ev.Payload,
				Metadata:   ev.Metadata,
			}); err != nil {
				slog.Warn("ingest failed", "adapter", name, "error", err)
			}
		}
	}
}
