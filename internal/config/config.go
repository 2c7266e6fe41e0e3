// Package config holds the runtime configuration bound from flags,
// environment and config file by the command layer.
package config

import "fmt"

// ExtractConfig drives the extract command.
type ExtractConfig struct {
	// Address is the host:port of the Firehose gRPC endpoint.
	Address string `mapstructure:"address"`

	// Insecure disables TLS.
	Insecure bool `mapstructure:"insecure"`

	// APIKey authenticates calls when the endpoint requires it.
	APIKey string `mapstructure:"api-key"`

	// HealthURL, when set, is probed before extraction starts.
	HealthURL string `mapstructure:"health-url"`

	// StartBlock is the first block to extract, inclusive. Ignored by the
	// server when a persisted cursor exists.
	StartBlock uint64 `mapstructure:"start-block"`

	// StopBlock bounds the extraction, inclusive. Zero follows the head.
	StopBlock uint64 `mapstructure:"stop-block"`

	// FinalOnly restricts the stream to irreversible blocks.
	FinalOnly bool `mapstructure:"final-only"`

	// Backfill fetches the [StartBlock, StopBlock] range over the Fetch
	// service instead of streaming. Requires a non-zero StopBlock.
	Backfill bool `mapstructure:"backfill"`

	// PostgresDSN selects the PostgreSQL sink when non-empty.
	PostgresDSN string `mapstructure:"postgres-dsn"`

	// OutputFile selects the JSONL sink when PostgresDSN is empty.
	OutputFile string `mapstructure:"output-file"`

	// MetricsAddr exposes Prometheus metrics when non-empty.
	MetricsAddr string `mapstructure:"metrics-addr"`

	// MaxConcurrency bounds parallel fetches during backfill.
	MaxConcurrency uint `mapstructure:"max-concurrency"`

	// MaxRetries bounds per-block fetch retries and stream reconnects.
	MaxRetries uint `mapstructure:"max-retries"`

	// MaxRecvMsgSize caps received gRPC message size in bytes.
	MaxRecvMsgSize int `mapstructure:"max-recv-msg-size"`
}

func (c ExtractConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	if c.PostgresDSN == "" && c.OutputFile == "" {
		return fmt.Errorf("either postgres-dsn or output-file is required")
	}
	if c.Backfill && c.StopBlock == 0 {
		return fmt.Errorf("backfill requires a stop block")
	}
	if c.StopBlock != 0 && c.StopBlock < c.StartBlock {
		return fmt.Errorf("stop block %d is below start block %d", c.StopBlock, c.StartBlock)
	}
	if c.MaxConcurrency == 0 {
		return fmt.Errorf("max-concurrency must be at least 1")
	}
	return nil
}
