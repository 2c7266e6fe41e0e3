package firehose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const defaultMaxReconnects = 3

// BlockUpdate is one decoded unit of a stream: the typed block, the fork step
// that tells the consumer how to apply it, and the cursor to persist once it
// has been applied.
type BlockUpdate[B Block] struct {
	Block    B
	Step     ForkStep
	Cursor   string
	Metadata *BlockMetadata
}

// StreamOption configures a Stream.
type StreamOption func(*streamOptions)

type streamOptions struct {
	maxReconnects uint
	onReconnect   func()
}

// WithMaxReconnects sets how many consecutive transport failures a Stream
// absorbs by re-dialing from the retained cursor before giving up.
func WithMaxReconnects(n uint) StreamOption {
	return func(o *streamOptions) { o.maxReconnects = n }
}

// WithOnReconnect registers a callback invoked each time the stream is about
// to re-open from the retained cursor, once per reconnect attempt. Used for
// instrumentation.
func WithOnReconnect(fn func()) StreamOption {
	return func(o *streamOptions) { o.onReconnect = fn }
}

// Stream reads a single logical block stream with cursor resumption.
//
// Each successfully decoded response advances the retained cursor. When the
// transport fails mid-stream, the next call to Next re-opens the call with
// that cursor so delivery continues without gaps. Resumption is at-least-once:
// the block at the cursor boundary may be redelivered, and consumers must
// tolerate that.
//
// A Stream is owned by one goroutine; it is not safe for concurrent use.
// Separate streams share nothing and may run concurrently. Cancelling the
// context passed to Next abandons the stream.
type Stream[B Block] struct {
	client StreamClient
	decode DecodeFunc[B]
	req    Request

	opts       streamOptions
	cur        BlockStream
	cursor     string
	reconnects uint
}

// NewStream builds a stream reader over the given transport. If req.Cursor is
// set the server resumes from it, which is how a consumer continues after a
// process restart.
func NewStream[B Block](client StreamClient, req Request, decode DecodeFunc[B], opts ...StreamOption) *Stream[B] {
	o := streamOptions{maxReconnects: defaultMaxReconnects}
	for _, opt := range opts {
		opt(&o)
	}
	return &Stream[B]{
		client: client,
		decode: decode,
		req:    req,
		opts:   o,
		cursor: req.Cursor,
	}
}

// Cursor returns the resumption cursor of the last successfully decoded
// response. Callers persist it (see CursorStore) after applying the block the
// response carried. A decode failure does not advance it.
func (s *Stream[B]) Cursor() string {
	return s.cursor
}

// Next returns the next block update, re-dialing from the retained cursor on
// transport failure. It returns io.EOF when a bounded stream completes, a
// *DecodeError when a message cannot be converted (the stream stays usable
// and a further Next call moves past the message), and the underlying
// transport error once the reconnect budget is exhausted.
func (s *Stream[B]) Next(ctx context.Context) (BlockUpdate[B], error) {
	var zero BlockUpdate[B]
	for {
		if s.cur == nil {
			if err := s.open(ctx); err != nil {
				if ctx.Err() != nil {
					return zero, ctx.Err()
				}
				if s.reconnects >= s.opts.maxReconnects {
					return zero, fmt.Errorf("stream failed after %d reconnects: %w", s.opts.maxReconnects, err)
				}
				s.reconnects++
				s.notifyReconnect()
				continue
			}
		}

		resp, err := s.cur.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return zero, io.EOF
			}
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			s.cur = nil
			if s.reconnects >= s.opts.maxReconnects {
				return zero, fmt.Errorf("stream failed after %d reconnects: %w", s.opts.maxReconnects, err)
			}
			s.reconnects++
			s.notifyReconnect()
			slog.Warn("Stream interrupted, resuming from cursor",
				"cursor", s.cursor,
				"attempt", s.reconnects,
				"error", err)
			continue
		}
		s.reconnects = 0

		block, err := s.decode(resp)
		if err != nil {
			return zero, &DecodeError{Cursor: resp.Cursor, Err: err}
		}

		s.cursor = resp.Cursor
		return BlockUpdate[B]{
			Block:    block,
			Step:     resp.Step,
			Cursor:   resp.Cursor,
			Metadata: resp.Metadata,
		}, nil
	}
}

func (s *Stream[B]) notifyReconnect() {
	if s.opts.onReconnect != nil {
		s.opts.onReconnect()
	}
}

func (s *Stream[B]) open(ctx context.Context) error {
	req := s.req
	if s.cursor != "" {
		// Cursor takes precedence over StartBlockNum on the server side;
		// StartBlockNum is left as-is per the protocol contract.
		req.Cursor = s.cursor
	}
	bs, err := s.client.Blocks(ctx, &req)
	if err != nil {
		return fmt.Errorf("opening block stream: %w", err)
	}
	s.cur = bs
	return nil
}
