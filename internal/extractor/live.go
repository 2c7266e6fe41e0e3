package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/manifest-network/firehose-client/internal/config"
	"github.com/manifest-network/firehose-client/internal/firehose"
	"github.com/manifest-network/firehose-client/internal/metrics"
	"github.com/manifest-network/firehose-client/internal/models"
	"github.com/manifest-network/firehose-client/internal/output"
)

// ExtractLiveBlocks streams blocks and applies each fork transition to the
// output handler: new blocks are written, undone blocks retracted, final
// blocks marked irreversible. The cursor is persisted in the sink after every
// processed response, so a restarted process resumes from where it stopped.
func ExtractLiveBlocks(ctx context.Context, streamClient firehose.StreamClient, outputHandler output.OutputHandler, cfg config.ExtractConfig) error {
	cursor, err := outputHandler.LoadCursor(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cursor: %w", err)
	}
	if cursor != "" {
		slog.Info("Resuming stream from persisted cursor", "cursor", cursor)
	}

	req := firehose.Request{
		StartBlockNum:   cfg.StartBlock,
		StopBlockNum:    cfg.StopBlock,
		Cursor:          cursor,
		FinalBlocksOnly: cfg.FinalOnly,
	}
	stream := firehose.NewStream(streamClient, req, models.BlockFromResponse,
		firehose.WithMaxReconnects(cfg.MaxRetries),
		firehose.WithOnReconnect(metrics.StreamReconnects.Inc))

	// Session-local bookkeeping, used to notice undo messages for blocks this
	// session never delivered (state from before a restart).
	view := firehose.NewChainView[models.Block]()

	for {
		update, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			slog.Info("Stream completed", "stopBlock", cfg.StopBlock, "cursor", stream.Cursor())
			return nil
		}
		var decodeErr *firehose.DecodeError
		if errors.As(err, &decodeErr) {
			// Skip policy: record the failure and move on. The retained
			// cursor was not advanced, so an operator can also stop here and
			// resume to retry the message.
			metrics.DecodeFailures.Inc()
			slog.Warn("Skipping undecodable response", "cursor", decodeErr.Cursor, "error", decodeErr)
			continue
		}
		if err != nil {
			return fmt.Errorf("block stream terminated: %w", err)
		}

		metrics.BlocksReceived.WithLabelValues(update.Step.String()).Inc()

		if err := applyUpdate(ctx, outputHandler, view, update); err != nil {
			return err
		}

		if err := outputHandler.SaveCursor(ctx, update.Cursor); err != nil {
			return fmt.Errorf("failed to save cursor: %w", err)
		}
	}
}

func applyUpdate(ctx context.Context, outputHandler output.OutputHandler, view *firehose.ChainView[models.Block], update firehose.BlockUpdate[models.Block]) error {
	block := update.Block

	switch update.Step {
	case firehose.StepNew:
		if err := outputHandler.WriteBlock(ctx, &block); err != nil {
			return fmt.Errorf("failed to write block %d: %w", block.Num, err)
		}
		if err := view.Apply(firehose.StepNew, block); err != nil {
			return fmt.Errorf("failed to track block %d: %w", block.Num, err)
		}
		metrics.HeadBlockNum.Set(float64(block.Num))

	case firehose.StepUndo:
		slog.Info("Retracting reorged block", "num", block.Num, "hash", block.Hash)
		if err := outputHandler.RetractBlock(ctx, block.Num); err != nil {
			return fmt.Errorf("failed to retract block %d: %w", block.Num, err)
		}
		if err := view.Apply(firehose.StepUndo, block); err != nil {
			// The undone block predates this session; the sink delete above
			// already handled it.
			slog.Debug("Undo for block outside this session", "num", block.Num)
		}

	case firehose.StepFinal:
		if err := outputHandler.MarkFinal(ctx, block.Num); err != nil {
			return fmt.Errorf("failed to mark block %d final: %w", block.Num, err)
		}
		if err := view.Apply(firehose.StepFinal, block); err != nil {
			return fmt.Errorf("failed to finalize block %d: %w", block.Num, err)
		}
		metrics.FinalBlockNum.Set(float64(block.Num))

	default:
		return fmt.Errorf("server sent unexpected fork step %s for block %d", update.Step, block.Num)
	}

	return nil
}
