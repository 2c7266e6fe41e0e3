package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/manifest-network/firehose-client/internal/config"
	"github.com/manifest-network/firehose-client/internal/firehose"
	"github.com/manifest-network/firehose-client/internal/metrics"
	"github.com/manifest-network/firehose-client/internal/models"
	"github.com/manifest-network/firehose-client/internal/output"
	"github.com/manifest-network/firehose-client/internal/utils"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// resolveBackfillStart picks the first block to fetch: the configured start,
// or one past the highest block the sink already holds when that is further
// along. Restarting a backfill therefore resumes instead of re-fetching.
func resolveBackfillStart(ctx context.Context, outputHandler output.OutputHandler, start uint64) (uint64, error) {
	latest, err := outputHandler.GetLatestBlockNum(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest stored block: %w", err)
	}
	// An empty sink reports 0, which is indistinguishable from holding only
	// the genesis block; re-fetching block 0 is an idempotent upsert either way.
	if latest != 0 && latest >= start {
		slog.Info("Resuming backfill after last stored block", "latest", latest)
		return latest + 1, nil
	}
	return start, nil
}

// ExtractBlockRange fetches blocks [start, stop] over the Fetch service and
// writes them to the output handler. Blocks are fetched in parallel; the sink
// keys on block number, so completion order does not matter.
func ExtractBlockRange(ctx context.Context, fetchClient firehose.FetchClient, outputHandler output.OutputHandler, start, stop uint64, cfg config.ExtractConfig) error {
	displayProgress := start != stop
	if displayProgress {
		slog.Info("Extracting block range", "range", fmt.Sprintf("[%d, %d]", start, stop))
	} else {
		slog.Info("Extracting block", "num", start)
	}

	var bar *progressbar.ProgressBar
	if displayProgress {
		bar = progressbar.NewOptions64(
			int64(stop-start+1),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetDescription("Fetching blocks..."),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		if err := bar.RenderBlank(); err != nil {
			return fmt.Errorf("failed to render progress bar: %w", err)
		}
	}

	if err := fetchBlocks(ctx, fetchClient, outputHandler, start, stop, cfg, bar); err != nil {
		return fmt.Errorf("failed to fetch block range: %w", err)
	}

	if bar != nil {
		if err := bar.Finish(); err != nil {
			return fmt.Errorf("failed to finish progress bar: %w", err)
		}
	}

	return nil
}

// fetchBlocks fans the range out over a bounded pool of goroutines.
func fetchBlocks(ctx context.Context, fetchClient firehose.FetchClient, outputHandler output.OutputHandler, start, stop uint64, cfg config.ExtractConfig, bar *progressbar.ProgressBar) error {
	eg, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, cfg.MaxConcurrency)

	for num := start; num <= stop; num++ {
		if ctx.Err() != nil {
			slog.Info("Extraction cancelled by user")
			return ctx.Err()
		}

		blockNum := num
		sem <- struct{}{}

		eg.Go(func() error {
			defer func() { <-sem }()

			if err := fetchSingleBlockWithRetry(ctx, fetchClient, outputHandler, blockNum, cfg.MaxRetries); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Error("Block fetch error", "num", blockNum, "error", err)
				}
				return fmt.Errorf("failed to process block %d: %w", blockNum, err)
			}

			if bar != nil {
				if err := bar.Add(1); err != nil {
					slog.Warn("Failed to update progress bar", "error", err)
				}
			}

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return fmt.Errorf("error while fetching blocks: %w", err)
	}
	return nil
}

// fetchSingleBlockWithRetry fetches one block by number with bounded retries
// and writes it to the output handler.
func fetchSingleBlockWithRetry(ctx context.Context, fetchClient firehose.FetchClient, outputHandler output.OutputHandler, num uint64, maxRetries uint) error {
	block, err := utils.WithRetry(ctx, maxRetries, func() (models.Block, error) {
		return firehose.FetchBlock(ctx, fetchClient, firehose.SingleBlockRequestByBlockNumber(num), models.BlockFromSingleResponse)
	})
	if err != nil {
		return fmt.Errorf("failed to fetch block %d: %w", num, err)
	}

	if err := outputHandler.WriteBlock(ctx, &block); err != nil {
		return fmt.Errorf("failed to write block %d: %w", num, err)
	}

	metrics.BlocksReceived.WithLabelValues("fetch").Inc()
	return nil
}

// ProcessMissingBlocks re-fetches any gaps the sink reports, one at a time.
func ProcessMissingBlocks(ctx context.Context, fetchClient firehose.FetchClient, outputHandler output.OutputHandler, cfg config.ExtractConfig) error {
	missing, err := outputHandler.GetMissingBlockNums(ctx)
	if err != nil {
		return fmt.Errorf("failed to get missing block numbers: %w", err)
	}

	if len(missing) > 0 {
		slog.Warn("Missing blocks detected", "count", len(missing))
		for _, num := range missing {
			if err := fetchSingleBlockWithRetry(ctx, fetchClient, outputHandler, num, cfg.MaxRetries); err != nil {
				return fmt.Errorf("failed to process missing block %d: %w", num, err)
			}
		}
	}
	return nil
}
