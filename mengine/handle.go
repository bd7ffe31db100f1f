package mengine

import (
	"context"

	"github.com/monarch-engine/monarch/mchain"
)

// EngineHandle accepts payloads and forkchoice updates on behalf of
// a consensus engine.
//
// Implementations must be safe for concurrent use;
// the control core clones handles freely across tasks.
type EngineHandle interface {
	// NewPayload submits a payload for validation and execution.
	NewPayload(ctx context.Context, payload ExecutionPayload) (PayloadStatus, error)

	// ForkchoiceUpdated announces the canonical (head, safe, finalized) triple.
	// When attrs is non-nil, the engine is additionally asked to start
	// building a payload on top of head, and a valid response carries
	// the id of the build job.
	ForkchoiceUpdated(ctx context.Context, state ForkchoiceState, attrs *PayloadAttributes, v Version) (ForkchoiceResult, error)
}

// ResolveKind controls how long a payload resolution may wait.
type ResolveKind uint8

const (
	// ResolveWaitForPending accepts the first buildable payload,
	// even an empty one, favoring production cadence over payload fullness.
	ResolveWaitForPending ResolveKind = iota

	// ResolveWaitForBest waits for the builder's best effort.
	ResolveWaitForBest
)

// PayloadBuilder resolves a payload build job into a built payload.
type PayloadBuilder interface {
	// Resolve returns the built payload for id, or nil if no payload
	// could be resolved.
	Resolve(ctx context.Context, id PayloadID, kind ResolveKind) (*BuiltPayload, error)
}

// ChainReader provides read-only access to the local chain state.
// The scheduler uses it exactly once, at startup, to seed its forkchoice
// window from the best known block.
type ChainReader interface {
	// BestBlockNumber returns the number of the best known block.
	BestBlockNumber(ctx context.Context) (uint64, error)

	// SealedHeader returns the header with hash at the given number,
	// or nil if it is unknown.
	SealedHeader(ctx context.Context, number uint64) (*mchain.SealedHeader, error)
}
