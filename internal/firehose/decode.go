package firehose

import (
	"context"
	"fmt"
)

// Block is the capability a domain block type must expose to participate in
// generic, sequence-aware stream processing. NumberOrSlot returns the single
// ordering key of the block: the block number for execution-layer blocks, the
// slot for consensus-layer blocks. It must be a pure accessor.
//
// Implementations must be safe to copy and to hand across goroutines, and
// must remain usable after the call that produced them returns.
type Block interface {
	NumberOrSlot() uint64
}

// DecodeFunc converts a streamed Response into a domain block type. It is the
// sole extension point for supporting new block representations: the same
// streaming machinery serves any type with a DecodeFunc.
//
// Implementations must be pure functions of the response, must return an
// error (never panic) on malformed or missing payload fields, and are invoked
// once per received message.
type DecodeFunc[B Block] func(resp *Response) (B, error)

// DecodeSingleFunc is the fetch-side counterpart of DecodeFunc.
type DecodeSingleFunc[B Block] func(resp *SingleBlockResponse) (B, error)

// DecodeError wraps a conversion failure. It is distinguishable from
// transport errors so consumers can skip or retry a single message without
// treating the stream as broken.
type DecodeError struct {
	// Cursor is the resumption cursor of the message that failed to decode.
	// The stream's retained cursor is not advanced past a failed message.
	Cursor string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding block at cursor %q: %v", e.Cursor, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FetchBlock performs a point lookup through the given FetchClient and
// decodes the result into the caller's block type.
func FetchBlock[B Block](ctx context.Context, client FetchClient, req SingleBlockRequest, decode DecodeSingleFunc[B]) (B, error) {
	var zero B
	resp, err := client.Block(ctx, &req)
	if err != nil {
		return zero, fmt.Errorf("fetching block: %w", err)
	}
	b, err := decode(resp)
	if err != nil {
		return zero, &DecodeError{Err: err}
	}
	return b, nil
}
