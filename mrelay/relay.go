// Package mrelay contains the follower-role relay:
// it subscribes to a remote node's block stream, fetches each announced
// block, normalizes the remote wire schema into the local one,
// and replays the block through the same consensus engine interface
// the producer uses.
//
// The relay keeps no rolling safety window.
// It trusts the remote authority's chain unconditionally and advances
// head, safe, and finalized together to each newly relayed block.
package mrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/monarch-engine/monarch/internal/mlog"
	"github.com/monarch-engine/monarch/mchain"
	"github.com/monarch-engine/monarch/mengine"
	"github.com/monarch-engine/monarch/mwire"
)

// ErrMalformedBlock marks a remote block that survived normalization
// but could not be decoded into the local schema.
// Whether it aborts the relay depends on the configured [DecodePolicy].
var ErrMalformedBlock = errors.New("malformed remote block")

// BlockSource is the remote node the relay mirrors.
//
// Implementations must be safe for concurrent use.
type BlockSource interface {
	// Subscribe returns a stream of new block headers in arrival order.
	// The channel closes when the subscription ends.
	Subscribe(ctx context.Context) (<-chan mchain.Header, error)

	// BlockByNumber fetches the full block (header and transaction bodies)
	// as a decoded wire tree, or nil if the block is unknown.
	BlockByNumber(ctx context.Context, number uint64) (any, error)
}

// DecodePolicy decides what a decode failure does to the relay.
type DecodePolicy uint8

const (
	// PolicySkipMalformed logs a malformed block and moves on to the
	// next notification. A malformed body alone degrades to relaying
	// the block header-only rather than dropping it.
	PolicySkipMalformed DecodePolicy = iota

	// PolicyFailFast aborts the relay on the first decode failure.
	PolicyFailFast
)

// Config holds the collaborators for a [Relay].
type Config struct {
	Engine mengine.EngineHandle
	Source BlockSource

	// SourceName identifies the remote source in diagnostics,
	// typically its URL.
	SourceName string

	Policy DecodePolicy

	// Version of the engine API messages. Defaults to [mengine.DefaultVersion].
	Version mengine.Version
}

// Relay mirrors a remote producer's blocks into the local engine.
type Relay struct {
	log *slog.Logger

	engine     mengine.EngineHandle
	source     BlockSource
	sourceName string
	policy     DecodePolicy
	version    mengine.Version

	// mu guards the snapshot fields; the run loop is the only writer.
	mu         sync.Mutex
	lastNumber uint64
	lastHash   common.Hash
	relayed    uint64
}

// New returns a relay for the given remote source.
func New(log *slog.Logger, cfg Config) (*Relay, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine handle required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("block source required")
	}
	if cfg.Version == 0 {
		cfg.Version = mengine.DefaultVersion
	}

	return &Relay{
		log:        log,
		engine:     cfg.Engine,
		source:     cfg.Source,
		sourceName: cfg.SourceName,
		policy:     cfg.Policy,
		version:    cfg.Version,
	}, nil
}

// Run consumes the remote block stream until ctx is canceled,
// the stream closes, or (under [PolicyFailFast]) a block fails to decode.
//
// A subscription failure is fatal:
// it indicates a configuration or connectivity problem, not a transient fault.
// Fetch failures and unknown blocks are logged and skipped;
// the chain continues from the next notification.
func (r *Relay) Run(ctx context.Context) error {
	headers, err := r.source.Subscribe(ctx)
	if err != nil {
		r.log.Warn("Failed to subscribe to blocks", "url", r.sourceName, mlog.Err(err))
		return fmt.Errorf("subscribe to blocks: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Relay stopping", "cause", context.Cause(ctx))
			return context.Cause(ctx)

		case h, ok := <-headers:
			if !ok {
				r.log.Info("Block stream ended", "url", r.sourceName)
				return nil
			}

			if err := r.relay(ctx, uint64(h.Number)); err != nil {
				if r.policy == PolicyFailFast && errors.Is(err, ErrMalformedBlock) {
					return err
				}
				r.log.Warn("Failed to relay block",
					"number", uint64(h.Number), "url", r.sourceName, mlog.Err(err),
				)
			}
		}
	}
}

// relay fetches, normalizes, decodes, and submits one announced block.
func (r *Relay) relay(ctx context.Context, number uint64) error {
	raw, err := r.source.BlockByNumber(ctx, number)
	if err != nil {
		return fmt.Errorf("fetch block %d: %w", number, err)
	}
	if raw == nil {
		return fmt.Errorf("block %d not found by number", number)
	}

	enc, err := mwire.Encode(mwire.Normalize(raw))
	if err != nil {
		return fmt.Errorf("%w: re-encode block %d: %v", ErrMalformedBlock, number, err)
	}

	var header mchain.Header
	if err := json.Unmarshal(enc, &header); err != nil {
		return fmt.Errorf("%w: decode header %d: %v", ErrMalformedBlock, number, err)
	}

	// The body is decoded independently of the header,
	// so a malformed body cannot block header-only convertibility.
	var body mchain.Body
	if err := json.Unmarshal(enc, &body); err != nil {
		if r.policy == PolicyFailFast {
			return fmt.Errorf("%w: decode body %d: %v", ErrMalformedBlock, number, err)
		}
		r.log.Warn("Relaying block without body", "number", number, mlog.Err(err))
		body = mchain.Body{}
	}

	sealed := mchain.NewBlock(header, body).Seal()
	payload := mengine.PayloadFromBlock(sealed)

	// The engine's verdicts do not gate the follower:
	// it trusts the remote authority's chain unconditionally.
	// Verdicts are still surfaced so a wedged engine is visible.
	status, err := r.engine.NewPayload(ctx, payload)
	if err != nil {
		r.log.Warn("New payload call failed", "number", number, mlog.Err(err))
	} else if !status.IsValid() {
		r.log.Warn("New payload not valid", "number", number, "status", string(status.Status))
	}

	fcu := mengine.ForkchoiceState{
		HeadBlockHash:      sealed.Hash,
		SafeBlockHash:      sealed.Hash,
		FinalizedBlockHash: sealed.Hash,
	}
	res, err := r.engine.ForkchoiceUpdated(ctx, fcu, nil, r.version)
	if err != nil {
		r.log.Warn("Fork choice update failed", "number", number, mlog.Err(err))
	} else if !res.IsValid() {
		r.log.Warn("Fork choice update not valid", "number", number, "status", string(res.PayloadStatus.Status))
	}

	r.mu.Lock()
	r.lastNumber = number
	r.lastHash = sealed.Hash
	r.relayed++
	r.mu.Unlock()

	r.log.Info("Relayed block", "number", number, mlog.Hash("hash", sealed.Hash))
	return nil
}

// Snapshot is a point-in-time view of the relay for operator surfaces.
type Snapshot struct {
	SourceName string      `json:"sourceName"`
	LastNumber uint64      `json:"lastNumber"`
	LastHash   common.Hash `json:"lastHash"`
	Relayed    uint64      `json:"relayed"`
}

// Snapshot returns the current relay state. Safe for concurrent use.
func (r *Relay) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{
		SourceName: r.sourceName,
		LastNumber: r.lastNumber,
		LastHash:   r.lastHash,
		Relayed:    r.relayed,
	}
}
