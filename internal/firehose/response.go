package firehose

import (
	"fmt"
	"time"
)

// ForkStep describes how a streamed block relates to canonical chain state.
type ForkStep int32

const (
	// StepUnset is the zero value; servers never emit it.
	StepUnset ForkStep = 0

	// StepNew marks a block appended to the canonical chain.
	StepNew ForkStep = 1

	// StepUndo marks a previously delivered block being retracted because of
	// a chain reorganization.
	StepUndo ForkStep = 2

	// StepFinal marks a previously delivered block as irreversible.
	StepFinal ForkStep = 3
)

func (s ForkStep) String() string {
	switch s {
	case StepUnset:
		return "unset"
	case StepNew:
		return "new"
	case StepUndo:
		return "undo"
	case StepFinal:
		return "final"
	default:
		return fmt.Sprintf("ForkStep(%d)", int32(s))
	}
}

// BlockMetadata is denormalized block identity carried alongside the payload
// so consumers can filter or track position without decoding the payload.
type BlockMetadata struct {
	Num  uint64
	Hash string
	Time time.Time
}

// Response is one unit of a block stream.
type Response struct {
	// Step tells the consumer how to apply the block: append, retract or
	// mark irreversible.
	Step ForkStep

	// Payload is the opaque, domain-specific block encoding. This layer
	// never interprets it; a DecodeFunc does.
	Payload []byte

	// Cursor is the resumption token for the position after this response.
	// Consumers must retain it after each successfully processed response
	// and feed it back into Request.Cursor to resume without gaps.
	Cursor string

	// Metadata is optional denormalized identity for the block.
	Metadata *BlockMetadata
}

// SingleBlockResponse is the result of a point lookup. Unlike a streamed
// Response it carries no fork step: a fetch has no position in a sequence.
type SingleBlockResponse struct {
	Payload  []byte
	Metadata *BlockMetadata
}
