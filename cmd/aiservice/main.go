// Aiservice is the asynchronous document extraction and storage pipeline.
//
// The binary exposes an HTTP API for task submission and status queries,
// and runs the extraction and storage worker pools against durable NATS
// JetStream queues.
//
// Usage:
//
//	# Start with a config file
//	aiservice -config config.yaml
//
//	# Override via environment
//	AISERVICE_SERVER_PORT=9000 aiservice -config config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/lekompozer/wordai-aiservice-sub007/internal/catalog"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/chunker"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/config"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/embeddings"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/extraction"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/logging"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/objstore"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/queue"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/server"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/vectorstore"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/webhook"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional, env vars apply on top)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// run initializes all dependencies and blocks until context cancellation.
//
//  1. Loads and validates configuration
//  2. Initializes the logger
//  3. Connects to infrastructure (NATS, Postgres, Qdrant)
//  4. Creates the extraction, embedding and webhook clients
//  5. Starts the worker pools
//  6. Starts the HTTP server
//  7. Performs graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("starting aiservice",
		zap.Int("port", cfg.Server.Port),
		zap.Int("extraction_workers", cfg.Queue.ExtractionWorkers),
		zap.Int("storage_workers", cfg.Queue.StorageWorkers))

	// Infrastructure.
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer nc.Close()

	logger.Info("connected to NATS", zap.String("url", cfg.NATS.URL))

	q, err := queue.New(nc, queue.Config{
		MaxBacklog: cfg.Queue.MaxBacklog,
		StatusTTL:  cfg.Queue.StatusTTL,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing task queues: %w", err)
	}
	defer q.Close()

	catalogStore, err := catalog.NewPostgresStore(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("connecting to catalog store: %w", err)
	}
	defer catalogStore.Close()

	vectors, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		VectorSize: cfg.Qdrant.VectorSize,
		UseTLS:     cfg.Qdrant.UseTLS,
	})
	if err != nil {
		return fmt.Errorf("connecting to vector store: %w", err)
	}
	defer func() {
		_ = vectors.Close()
	}()

	if err := vectors.EnsureCollection(ctx, cfg.Qdrant.Collection); err != nil {
		return fmt.Errorf("ensuring collection %s: %w", cfg.Qdrant.Collection, err)
	}

	// Collaborator clients.
	provider, err := extraction.NewClient(extraction.Config{
		BaseURL:   cfg.Extraction.BaseURL,
		APIKey:    cfg.Extraction.APIKey,
		Timeout:   cfg.Extraction.Timeout,
		RateLimit: cfg.Extraction.RateLimit,
	})
	if err != nil {
		return fmt.Errorf("initializing extraction client: %w", err)
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		APIKey:  cfg.Embeddings.APIKey,
		Model:   cfg.Embeddings.Model,
	})
	if err != nil {
		return fmt.Errorf("initializing embedding service: %w", err)
	}

	notifier := webhook.NewNotifier(webhook.Config{Secret: cfg.Webhook.Secret}, logger)
	registrar := catalog.NewRegistrar(catalogStore, logger)
	chunks := chunker.New(chunker.Config{Encoding: cfg.Chunker.Encoding})
	fetcher := objstore.NewFetcher(60 * time.Second)

	// Worker pools. Stop order on shutdown is workers first, then the HTTP
	// server, so in-flight tasks drain before the process exits.
	var stoppers []interface{ Stop() }

	for i := 0; i < cfg.Queue.ExtractionWorkers; i++ {
		w := worker.NewExtractionWorker(
			fmt.Sprintf("extraction-%d", i),
			q, fetcher, provider, chunks, embedder, vectors,
			cfg.Qdrant.Collection, notifier, cfg.Queue.DequeueWait, logger,
		)
		w.Start(ctx)
		stoppers = append(stoppers, w)
	}

	for i := 0; i < cfg.Queue.StorageWorkers; i++ {
		w := worker.NewStorageWorker(
			fmt.Sprintf("storage-%d", i),
			q, embedder, registrar, vectors,
			cfg.Qdrant.Collection, notifier, cfg.Queue.DequeueWait, logger,
		)
		w.Start(ctx)
		stoppers = append(stoppers, w)
	}

	srv, err := server.NewServer(q, registrar, vectors, cfg.Qdrant.Collection, logger, &server.Config{Port: cfg.Server.Port})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down")

	for _, s := range stoppers {
		s.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	return nil
}
