package fireclient

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/manifest-network/firehose-client/internal/client"
	"github.com/manifest-network/firehose-client/internal/firehose"
	"github.com/manifest-network/firehose-client/internal/models"
	"github.com/spf13/cobra"
)

var fetchHash string

var fetchCmd = &cobra.Command{
	Use:   "fetch <block-num>",
	Short: "Fetch a single block and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		num, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid block number %q: %w", args[0], err)
		}

		grpcClient, err := client.NewGRPCClient(client.Config{
			Address:  mustString(cmd, "address"),
			Insecure: mustBool(cmd, "insecure"),
			APIKey:   mustString(cmd, "api-key"),
		})
		if err != nil {
			return fmt.Errorf("creating gRPC client: %w", err)
		}
		defer grpcClient.Close()

		req := firehose.SingleBlockRequestByBlockNumber(num)
		if fetchHash != "" {
			req = firehose.SingleBlockRequestByBlockHashAndNumber(fetchHash, num)
		}

		block, err := firehose.FetchBlock(cmd.Context(), grpcClient, req, models.BlockFromSingleResponse)
		if err != nil {
			return fmt.Errorf("fetching block %d: %w", num, err)
		}

		out, err := json.MarshalIndent(block, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding block: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	flags := fetchCmd.Flags()
	flags.String("address", "", "Firehose gRPC endpoint (host:port)")
	flags.Bool("insecure", false, "Disable TLS")
	flags.String("api-key", "", "API key sent as x-api-key metadata")
	flags.StringVar(&fetchHash, "hash", "", "Fetch by hash and number instead of number alone")

	rootCmd.AddCommand(fetchCmd)
}

func mustString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(err)
	}
	return v
}

func mustBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(err)
	}
	return v
}
