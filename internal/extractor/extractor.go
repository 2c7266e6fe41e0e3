package extractor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/manifest-network/firehose-client/internal/client"
	"github.com/manifest-network/firehose-client/internal/config"
	"github.com/manifest-network/firehose-client/internal/healthcheck"
	"github.com/manifest-network/firehose-client/internal/metrics"
	"github.com/manifest-network/firehose-client/internal/output"
)

// Run wires the transport, sink and metrics together and performs the
// extraction the config asks for: a bounded backfill over the Fetch service,
// or live streaming with cursor resumption.
func Run(ctx context.Context, cfg config.ExtractConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.HealthURL != "" {
		if err := healthcheck.Probe(ctx, cfg.HealthURL); err != nil {
			return fmt.Errorf("endpoint health check failed: %w", err)
		}
	}

	grpcClient, err := client.NewGRPCClient(client.Config{
		Address:        cfg.Address,
		Insecure:       cfg.Insecure,
		APIKey:         cfg.APIKey,
		MaxRecvMsgSize: cfg.MaxRecvMsgSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create gRPC client: %w", err)
	}
	defer grpcClient.Close()

	outputHandler, err := newOutputHandler(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create output handler: %w", err)
	}
	defer outputHandler.Close()

	if cfg.MetricsAddr != "" {
		metrics.Serve(cfg.MetricsAddr)
	}

	if cfg.Backfill {
		start, err := resolveBackfillStart(ctx, outputHandler, cfg.StartBlock)
		if err != nil {
			return err
		}
		if start <= cfg.StopBlock {
			if err := ExtractBlockRange(ctx, grpcClient, outputHandler, start, cfg.StopBlock, cfg); err != nil {
				return err
			}
		} else {
			slog.Info("Backfill range already extracted", "stop", cfg.StopBlock)
		}
		return ProcessMissingBlocks(ctx, grpcClient, outputHandler, cfg)
	}

	return ExtractLiveBlocks(ctx, grpcClient, outputHandler, cfg)
}

func newOutputHandler(ctx context.Context, cfg config.ExtractConfig) (output.OutputHandler, error) {
	if cfg.PostgresDSN != "" {
		slog.Info("Using PostgreSQL output handler")
		return output.NewPostgresOutputHandler(ctx, cfg.PostgresDSN)
	}
	slog.Info("Using JSONL output handler", "file", cfg.OutputFile)
	return output.NewJSONLOutputHandler(cfg.OutputFile)
}
