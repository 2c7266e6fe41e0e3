// Package firehose implements the client-side contract of the Firehose v2
// block streaming protocol: request construction, streamed response handling,
// cursor-based resumption and fork-step bookkeeping. The wire transport is
// supplied by the caller through the StreamClient and FetchClient interfaces.
package firehose

// Request describes a streaming block request.
//
// The zero value is a valid request: start at block 0, no stop bound, no
// cursor, all blocks delivered (including ones still subject to reorg).
// Callers set fields directly; there is no constructor because the field
// combinations are caller decisions, not invariants enforced here.
type Request struct {
	// StartBlockNum is the first block to deliver, inclusive.
	StartBlockNum uint64

	// StopBlockNum is the last block to deliver, inclusive. Zero means the
	// stream is unbounded and follows the chain head.
	StopBlockNum uint64

	// Cursor is an opaque resumption token from a previous Response. When
	// both Cursor and StartBlockNum are set the server resumes from the
	// cursor; precedence is a server-side contract and is not checked here.
	Cursor string

	// FinalBlocksOnly restricts delivery to irreversible blocks.
	FinalBlocksOnly bool

	// Transforms carries opaque, protocol-defined payload trimming filters.
	Transforms [][]byte
}

// BlockRef identifies a block in a SingleBlockRequest. Exactly one concrete
// variant is populated: BlockNumberRef, BlockHashAndNumberRef or CursorRef.
type BlockRef interface {
	isBlockRef()
}

// BlockNumberRef references a block by number alone.
type BlockNumberRef struct {
	Num uint64
}

// BlockHashAndNumberRef references a block by its hash and number. The hash
// encoding is protocol-defined and not validated by this layer.
type BlockHashAndNumberRef struct {
	Hash string
	Num  uint64
}

// CursorRef references the block at an opaque stream cursor.
type CursorRef struct {
	Cursor string
}

func (BlockNumberRef) isBlockRef()        {}
func (BlockHashAndNumberRef) isBlockRef() {}
func (CursorRef) isBlockRef()             {}

// SingleBlockRequest describes a point lookup of one block.
type SingleBlockRequest struct {
	// Reference selects the block. A nil reference is a caller error that the
	// server rejects; it is not validated locally.
	Reference BlockRef

	// Transforms carries opaque payload trimming filters, as in Request.
	Transforms [][]byte
}

// NewSingleBlockRequest builds a request for the given block number.
//
// Kept for backwards compatibility; new code should call
// SingleBlockRequestByBlockNumber.
func NewSingleBlockRequest(num uint64) SingleBlockRequest {
	return SingleBlockRequestByBlockNumber(num)
}

// SingleBlockRequestByBlockNumber builds a request referencing a block by
// number.
func SingleBlockRequestByBlockNumber(num uint64) SingleBlockRequest {
	return SingleBlockRequest{Reference: BlockNumberRef{Num: num}}
}

// SingleBlockRequestByBlockHashAndNumber builds a request referencing a block
// by hash and number. The hash is passed through to the server unvalidated.
func SingleBlockRequestByBlockHashAndNumber(hash string, num uint64) SingleBlockRequest {
	return SingleBlockRequest{Reference: BlockHashAndNumberRef{Hash: hash, Num: num}}
}

// SingleBlockRequestByCursor builds a request referencing the block at an
// opaque stream cursor.
func SingleBlockRequestByCursor(cursor string) SingleBlockRequest {
	return SingleBlockRequest{Reference: CursorRef{Cursor: cursor}}
}
