package models

import (
	"errors"
	"time"

	"github.com/manifest-network/firehose-client/internal/firehose"
)

// Block is the tool's own domain block: the raw Firehose payload plus the
// denormalized metadata the sinks persist. The payload stays opaque bytes;
// this tool archives blocks, it does not interpret them.
type Block struct {
	Num    uint64
	Hash   string
	Time   time.Time
	Cursor string
	Final  bool
	Data   []byte
}

// NumberOrSlot implements firehose.Block.
func (b Block) NumberOrSlot() uint64 { return b.Num }

// ErrMissingMetadata reports a response without the block metadata the sinks
// key on. Such responses cannot be decoded into a Block.
var ErrMissingMetadata = errors.New("response has no block metadata")

// BlockFromResponse is the firehose.DecodeFunc for Block.
func BlockFromResponse(resp *firehose.Response) (Block, error) {
	if resp.Metadata == nil {
		return Block{}, ErrMissingMetadata
	}
	return Block{
		Num:    resp.Metadata.Num,
		Hash:   resp.Metadata.Hash,
		Time:   resp.Metadata.Time,
		Cursor: resp.Cursor,
		Final:  resp.Step == firehose.StepFinal,
		Data:   resp.Payload,
	}, nil
}

// BlockFromSingleResponse is the firehose.DecodeSingleFunc for Block.
func BlockFromSingleResponse(resp *firehose.SingleBlockResponse) (Block, error) {
	if resp.Metadata == nil {
		return Block{}, ErrMissingMetadata
	}
	return Block{
		Num:  resp.Metadata.Num,
		Hash: resp.Metadata.Hash,
		Time: resp.Metadata.Time,
		Data: resp.Payload,
	}, nil
}
