// Package config provides configuration loading for the extraction service.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the service.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	NATS       NATSConfig       `koanf:"nats"`
	Queue      QueueConfig      `koanf:"queue"`
	Postgres   PostgresConfig   `koanf:"postgres"`
	Qdrant     QdrantConfig     `koanf:"qdrant"`
	Extraction ExtractionConfig `koanf:"extraction"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Webhook    WebhookConfig    `koanf:"webhook"`
	Chunker    ChunkerConfig    `koanf:"chunker"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig controls zap logger construction.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// NATSConfig controls the connection to the queue backend.
type NATSConfig struct {
	URL string `koanf:"url"`
}

// QueueConfig controls queue limits and worker polling.
type QueueConfig struct {
	// MaxBacklog is the maximum number of pending tasks per named queue.
	// Enqueue beyond this reports backpressure instead of accepting work.
	MaxBacklog int64 `koanf:"max_backlog"`

	// StatusTTL ages out task status records so the store stays bounded.
	StatusTTL time.Duration `koanf:"status_ttl"`

	// DequeueWait is how long a worker blocks on an empty queue per poll.
	DequeueWait time.Duration `koanf:"dequeue_wait"`

	ExtractionWorkers int `koanf:"extraction_workers"`
	StorageWorkers    int `koanf:"storage_workers"`
}

// PostgresConfig controls the catalog document store.
type PostgresConfig struct {
	DSN string `koanf:"dsn"`
}

// QdrantConfig controls the vector store connection.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	UseTLS     bool   `koanf:"use_tls"`
	Collection string `koanf:"collection"`
	VectorSize uint64 `koanf:"vector_size"`
}

// ExtractionConfig controls the AI extraction collaborator client.
type ExtractionConfig struct {
	BaseURL   string        `koanf:"base_url"`
	APIKey    string        `koanf:"api_key"`
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"`
}

// EmbeddingsConfig controls the embedding collaborator client.
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
}

// WebhookConfig controls callback delivery to the external backend.
type WebhookConfig struct {
	Secret string `koanf:"secret"`
}

// ChunkerConfig controls document chunking for whole-document embedding.
type ChunkerConfig struct {
	Encoding string `koanf:"encoding"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.Queue.MaxBacklog == 0 {
		c.Queue.MaxBacklog = 1000
	}
	if c.Queue.StatusTTL == 0 {
		c.Queue.StatusTTL = 24 * time.Hour
	}
	if c.Queue.DequeueWait == 0 {
		c.Queue.DequeueWait = 5 * time.Second
	}
	if c.Queue.ExtractionWorkers == 0 {
		c.Queue.ExtractionWorkers = 1
	}
	if c.Queue.StorageWorkers == 0 {
		c.Queue.StorageWorkers = 1
	}
	if c.Qdrant.Host == "" {
		c.Qdrant.Host = "localhost"
	}
	if c.Qdrant.Port == 0 {
		c.Qdrant.Port = 6334
	}
	if c.Qdrant.Collection == "" {
		c.Qdrant.Collection = "multi_company_data"
	}
	if c.Qdrant.VectorSize == 0 {
		c.Qdrant.VectorSize = 1536
	}
	if c.Extraction.Timeout == 0 {
		c.Extraction.Timeout = 120 * time.Second
	}
	if c.Extraction.RateLimit == 0 {
		c.Extraction.RateLimit = 2
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "text-embedding-3-small"
	}
	if c.Chunker.Encoding == "" {
		c.Chunker.Encoding = "cl100k_base"
	}
}

// Validate checks required fields after defaults are applied.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Queue.MaxBacklog <= 0 {
		return fmt.Errorf("queue max_backlog must be positive")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres dsn required")
	}
	if c.Extraction.BaseURL == "" {
		return fmt.Errorf("extraction base_url required")
	}
	if c.Embeddings.BaseURL == "" {
		return fmt.Errorf("embeddings base_url required")
	}
	if c.Webhook.Secret == "" {
		return fmt.Errorf("webhook secret required")
	}
	return nil
}
