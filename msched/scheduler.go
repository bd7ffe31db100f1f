// Package msched contains the producer-role scheduler:
// on a fixed cadence it asks the consensus engine to build a payload,
// waits for the build, submits the result as a new payload,
// and commits the block into its forkchoice window.
//
// A faster, independent ticker re-announces the current forkchoice state
// so the engine's notion of the canonical head does not go stale
// between block productions.
package msched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/monarch-engine/monarch/internal/mlog"
	"github.com/monarch-engine/monarch/mengine"
	"github.com/monarch-engine/monarch/mwindow"
)

// Tick failures the run loop logs and retries on the next interval.
// Exported because tests and operators branch on them.
var (
	ErrInvalidForkchoice = errors.New("forkchoice update rejected by engine")
	ErrNoPayloadID       = errors.New("engine did not return a payload id")
	ErrNoPayload         = errors.New("payload build did not resolve")
	ErrInvalidPayload    = errors.New("new payload rejected by engine")
)

// AttributesBuilder builds the payload attributes describing the next block.
type AttributesBuilder interface {
	Build(timestamp uint64) mengine.PayloadAttributes
}

// LocalAttributesBuilder builds minimal attributes for a chain
// whose single authority is also the fee recipient.
type LocalAttributesBuilder struct {
	FeeRecipient common.Address
}

func (b LocalAttributesBuilder) Build(timestamp uint64) mengine.PayloadAttributes {
	return mengine.PayloadAttributes{
		Timestamp:             hexutil.Uint64(timestamp),
		SuggestedFeeRecipient: b.FeeRecipient,
	}
}

// Config holds the collaborators and cadence for a [Scheduler].
type Config struct {
	Engine     mengine.EngineHandle
	Builder    mengine.PayloadBuilder
	Chain      mengine.ChainReader
	Attributes AttributesBuilder

	// BlockInterval is the production cadence. Defaults to 5s.
	BlockInterval time.Duration

	// AnnounceInterval is the forkchoice re-announcement cadence.
	// Defaults to 1s, independent of BlockInterval.
	AnnounceInterval time.Duration

	// Version of the engine API messages. Defaults to [mengine.DefaultVersion].
	Version mengine.Version

	// Now overrides the wall clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Scheduler drives block production for the single authority.
//
// The window and clock are owned exclusively by the scheduler and are
// mutated only after a production tick fully succeeds, so the forkchoice
// state the engine observes always refers to blocks it has already accepted.
type Scheduler struct {
	log *slog.Logger

	engine  mengine.EngineHandle
	builder mengine.PayloadBuilder
	attrs   AttributesBuilder

	blockInterval    time.Duration
	announceInterval time.Duration
	version          mengine.Version
	now              func() time.Time

	// mu guards window and clock for Snapshot readers;
	// the run loop is the only writer.
	mu     sync.Mutex
	window *mwindow.Window
	clock  *mwindow.Clock
}

// New seeds a scheduler from the chain's current best block.
//
// Failure to resolve the best block is fatal:
// the authority cannot safely begin without a known head.
func New(ctx context.Context, log *slog.Logger, cfg Config) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine handle required")
	}
	if cfg.Builder == nil {
		return nil, fmt.Errorf("payload builder required")
	}
	if cfg.Chain == nil {
		return nil, fmt.Errorf("chain reader required")
	}
	if cfg.Attributes == nil {
		cfg.Attributes = LocalAttributesBuilder{}
	}
	if cfg.BlockInterval <= 0 {
		cfg.BlockInterval = 5 * time.Second
	}
	if cfg.AnnounceInterval <= 0 {
		cfg.AnnounceInterval = time.Second
	}
	if cfg.Version == 0 {
		cfg.Version = mengine.DefaultVersion
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	best, err := cfg.Chain.BestBlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve best block number: %w", err)
	}
	sealed, err := cfg.Chain.SealedHeader(ctx, best)
	if err != nil {
		return nil, fmt.Errorf("load sealed header %d: %w", best, err)
	}
	if sealed == nil {
		return nil, fmt.Errorf("no sealed header at best block %d", best)
	}

	log.Info("Starting authority at best block", "number", best, mlog.Hash("hash", sealed.Hash))

	return &Scheduler{
		log:              log,
		engine:           cfg.Engine,
		builder:          cfg.Builder,
		attrs:            cfg.Attributes,
		blockInterval:    cfg.BlockInterval,
		announceInterval: cfg.AnnounceInterval,
		version:          cfg.Version,
		now:              cfg.Now,
		window:           mwindow.NewWindow(sealed.Hash),
		clock:            mwindow.NewClock(cfg.Now()),
	}, nil
}

// Run multiplexes the production and announcement tickers until ctx is canceled.
//
// Any single tick failure is logged and abandoned;
// committed state is untouched and the next tick retries from fresh state.
// When both tickers are ready in the same instant,
// Go's select picks one at random; correctness does not depend on the order,
// since announcements read only committed state.
func (s *Scheduler) Run(ctx context.Context) error {
	blockTicker := time.NewTicker(s.blockInterval)
	defer blockTicker.Stop()
	announceTicker := time.NewTicker(s.announceInterval)
	defer announceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopping", "cause", context.Cause(ctx))
			return context.Cause(ctx)

		case <-blockTicker.C:
			if err := s.Advance(ctx); err != nil {
				s.log.Error("Error advancing the chain", mlog.Err(err))
			}

		case <-announceTicker.C:
			if err := s.Announce(ctx); err != nil {
				s.log.Error("Error updating fork choice", mlog.Err(err))
			}
		}
	}
}

// Advance produces one block:
// forkchoice update with attributes, payload resolution, new payload,
// then commit of the timestamp and hash.
//
// On any failure the scheduler's state is left exactly as it was;
// the next tick starts from the last committed state.
func (s *Scheduler) Advance(ctx context.Context) error {
	timestamp := s.clock.Next(s.now())

	attrs := s.attrs.Build(timestamp)
	res, err := s.engine.ForkchoiceUpdated(ctx, s.window.State(), &attrs, s.version)
	if err != nil {
		return fmt.Errorf("fork choice updated: %w", err)
	}
	if !res.IsValid() {
		return fmt.Errorf("%w: status %s", ErrInvalidForkchoice, res.PayloadStatus.Status)
	}
	if res.PayloadID == nil {
		return ErrNoPayloadID
	}

	built, err := s.builder.Resolve(ctx, *res.PayloadID, mengine.ResolveWaitForPending)
	if err != nil {
		return fmt.Errorf("resolve payload: %w", err)
	}
	if built == nil {
		return ErrNoPayload
	}

	status, err := s.engine.NewPayload(ctx, built.Payload)
	if err != nil {
		return fmt.Errorf("new payload: %w", err)
	}
	if !status.IsValid() {
		return fmt.Errorf("%w: status %s", ErrInvalidPayload, status.Status)
	}

	s.mu.Lock()
	s.clock.Commit(timestamp)
	s.window.Append(built.Payload.BlockHash)
	s.mu.Unlock()

	s.log.Info(
		"Produced block",
		"number", uint64(built.Payload.BlockNumber),
		mlog.Hash("hash", built.Payload.BlockHash),
		"timestamp", timestamp,
	)
	return nil
}

// Announce re-sends the current forkchoice state without payload attributes.
func (s *Scheduler) Announce(ctx context.Context) error {
	res, err := s.engine.ForkchoiceUpdated(ctx, s.window.State(), nil, s.version)
	if err != nil {
		return fmt.Errorf("fork choice updated: %w", err)
	}
	if !res.IsValid() {
		return fmt.Errorf("%w: status %s", ErrInvalidForkchoice, res.PayloadStatus.Status)
	}
	return nil
}

// Snapshot is a point-in-time view of the scheduler for operator surfaces.
type Snapshot struct {
	Head          common.Hash `json:"head"`
	WindowLen     int         `json:"windowLen"`
	LastTimestamp uint64      `json:"lastTimestamp"`
}

// Snapshot returns the current committed state. Safe for concurrent use.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Head:          s.window.Head(),
		WindowLen:     s.window.Len(),
		LastTimestamp: s.clock.Last(),
	}
}
