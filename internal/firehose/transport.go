package firehose

import "context"

// BlockStream yields the responses of one open streaming call, in server
// emission order. Recv blocks until the next response is available and
// returns io.EOF when a bounded stream completes. This layer never reorders,
// deduplicates or buffers responses.
type BlockStream interface {
	Recv() (*Response, error)
}

// StreamClient opens streaming calls. Implementations own the transport
// (connection, TLS, socket retries); this package only consumes the opened
// stream. Cancelling the context terminates delivery; no close handshake is
// required at this layer.
type StreamClient interface {
	Blocks(ctx context.Context, req *Request) (BlockStream, error)
}

// FetchClient performs single-block lookups.
type FetchClient interface {
	Block(ctx context.Context, req *SingleBlockRequest) (*SingleBlockResponse, error)
}

// CursorStore persists a stream cursor across process restarts so that a
// consumer can resume where it left off.
type CursorStore interface {
	// LoadCursor returns the last saved cursor, or "" if none was saved.
	LoadCursor(ctx context.Context) (string, error)

	// SaveCursor persists the cursor of the last successfully processed
	// response.
	SaveCursor(ctx context.Context, cursor string) error
}
