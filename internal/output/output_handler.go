package output

import (
	"context"

	"github.com/manifest-network/firehose-client/internal/models"
)

// OutputHandler is where extracted blocks land. Implementations must be
// idempotent under block redelivery: stream resumption is at-least-once, so
// the same block may be written more than once.
//
// The cursor methods satisfy firehose.CursorStore, making every sink usable
// as the resumption point store for its own stream.
type OutputHandler interface {
	// WriteBlock writes or overwrites a block.
	WriteBlock(ctx context.Context, block *models.Block) error

	// RetractBlock removes a block that was undone by a chain reorganization.
	RetractBlock(ctx context.Context, num uint64) error

	// MarkFinal marks every block at or below num as irreversible.
	MarkFinal(ctx context.Context, num uint64) error

	// LoadCursor returns the last saved stream cursor, or "" if none.
	LoadCursor(ctx context.Context) (string, error)

	// SaveCursor persists the stream cursor of the last processed response.
	SaveCursor(ctx context.Context, cursor string) error

	// GetLatestBlockNum returns the highest block number written, or 0.
	GetLatestBlockNum(ctx context.Context) (uint64, error)

	// GetMissingBlockNums returns gaps in the stored block range. Sinks that
	// cannot answer gap queries return nil.
	GetMissingBlockNums(ctx context.Context) ([]uint64, error)

	// Close releases the sink's resources.
	Close() error
}
