package fireclient

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/manifest-network/firehose-client/internal/config"
	"github.com/manifest-network/firehose-client/internal/extractor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract blocks into a sink, streaming live or backfilling a range",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var cfg config.ExtractConfig
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshalling configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return extractor.Run(ctx, cfg)
	},
}

func init() {
	flags := extractCmd.Flags()
	flags.String("address", "", "Firehose gRPC endpoint (host:port)")
	flags.Bool("insecure", false, "Disable TLS")
	flags.String("api-key", "", "API key sent as x-api-key metadata")
	flags.String("health-url", "", "HTTP health endpoint probed before extraction")
	flags.Uint64("start-block", 0, "First block to extract (inclusive)")
	flags.Uint64("stop-block", 0, "Last block to extract (inclusive, 0 follows the head)")
	flags.Bool("final-only", false, "Deliver only irreversible blocks")
	flags.Bool("backfill", false, "Fetch the range over the fetch API instead of streaming")
	flags.String("postgres-dsn", "", "PostgreSQL sink DSN")
	flags.String("output-file", "", "JSONL sink path (used when no DSN is set)")
	flags.String("metrics-addr", "", "Prometheus metrics listen address (disabled when empty)")
	flags.Uint("max-concurrency", 10, "Parallel fetches during backfill")
	flags.Uint("max-retries", 3, "Per-block fetch retries and stream reconnects")
	flags.Int("max-recv-msg-size", 0, "Max gRPC message size in bytes (0 uses the default)")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(extractCmd)
}
