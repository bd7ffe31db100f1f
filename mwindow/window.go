// Package mwindow contains the forkchoice bookkeeping shared by the
// producer side of the monarch core:
// a bounded window of recently committed block hashes from which the
// (head, safe, finalized) triple is derived, and a monotonic clock
// assigning timestamps to produced blocks.
package mwindow

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/monarch-engine/monarch/mengine"
)

const (
	// Capacity bounds the window to the most recent 64 hashes.
	Capacity = 64

	// The safe block trails the head by 32 positions.
	safeLag = 32

	// The finalized block trails the head by 64 positions
	// (the oldest retained hash once the window is full).
	finalizedLag = 64
)

// Window is an ordered sequence of block hashes, oldest first,
// bounded to the most recent [Capacity] entries.
//
// A Window is always non-empty. It is not safe for concurrent use;
// each role owns its window exclusively.
type Window struct {
	hashes []common.Hash
}

// NewWindow returns a window seeded with the chain's current best hash.
func NewWindow(best common.Hash) *Window {
	hashes := make([]common.Hash, 1, Capacity+1)
	hashes[0] = best
	return &Window{hashes: hashes}
}

// Append records the hash of a newly committed block,
// evicting the oldest entry once the bound is exceeded.
func (w *Window) Append(h common.Hash) {
	w.hashes = append(w.hashes, h)
	if len(w.hashes) > Capacity {
		w.hashes = w.hashes[1:]
	}
}

// Len returns the number of retained hashes.
func (w *Window) Len() int {
	return len(w.hashes)
}

// Head returns the most recently appended hash.
func (w *Window) Head() common.Hash {
	return w.hashes[len(w.hashes)-1]
}

// State derives the forkchoice triple from the window.
//
// The safe and finalized offsets clamp to the oldest retained entry
// until enough blocks accumulate to trail the head by their full lag.
func (w *Window) State() mengine.ForkchoiceState {
	return mengine.ForkchoiceState{
		HeadBlockHash:      w.Head(),
		SafeBlockHash:      w.hashes[max(len(w.hashes)-safeLag, 0)],
		FinalizedBlockHash: w.hashes[max(len(w.hashes)-finalizedLag, 0)],
	}
}
