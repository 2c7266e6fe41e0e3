package firehose

import "fmt"

// ChainView tracks a consumer's canonical chain state as fork steps arrive:
// StepNew appends a block, StepUndo retracts it, StepFinal marks it
// irreversible and drops the pending-fork tracking for it and everything
// below. Blocks are keyed by NumberOrSlot, so a reorg that replaces block N
// overwrites the retracted entry when the replacement arrives.
//
// A ChainView belongs to a single stream consumer and is not safe for
// concurrent use.
type ChainView[B Block] struct {
	canonical map[uint64]B
	pending   map[uint64]struct{}
	finalNum  uint64
}

func NewChainView[B Block]() *ChainView[B] {
	return &ChainView[B]{
		canonical: make(map[uint64]B),
		pending:   make(map[uint64]struct{}),
	}
}

// Apply updates the view for one block update. Redelivery of a block already
// in the view (at-least-once resumption) is absorbed silently. Undoing a
// block the view never saw is reported as an error so the consumer can decide
// whether its local state predates the stream.
func (v *ChainView[B]) Apply(step ForkStep, block B) error {
	num := block.NumberOrSlot()
	switch step {
	case StepNew:
		v.canonical[num] = block
		if num > v.finalNum {
			v.pending[num] = struct{}{}
		}
	case StepUndo:
		if _, ok := v.canonical[num]; !ok {
			return fmt.Errorf("undo for unknown block %d", num)
		}
		delete(v.canonical, num)
		delete(v.pending, num)
	case StepFinal:
		if num > v.finalNum {
			v.finalNum = num
		}
		for n := range v.pending {
			if n <= num {
				delete(v.pending, n)
			}
		}
	default:
		return fmt.Errorf("unexpected fork step %s for block %d", step, num)
	}
	return nil
}

// Canonical returns the block currently at the given number, if any.
func (v *ChainView[B]) Canonical(num uint64) (B, bool) {
	b, ok := v.canonical[num]
	return b, ok
}

// Size returns the number of blocks in the canonical view.
func (v *ChainView[B]) Size() int {
	return len(v.canonical)
}

// FinalNum returns the highest block number marked irreversible, or 0 if
// none was.
func (v *ChainView[B]) FinalNum() uint64 {
	return v.finalNum
}

// PendingCount returns how many delivered blocks are still subject to reorg.
func (v *ChainView[B]) PendingCount() int {
	return len(v.pending)
}
