package mrelay_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"github.com/monarch-engine/monarch/mchain"
	"github.com/monarch-engine/monarch/mengine"
	"github.com/monarch-engine/monarch/mengine/menginetest"
	"github.com/monarch-engine/monarch/mrelay"
)

// fakeSource feeds scripted headers and wire blocks to the relay.
type fakeSource struct {
	subErr  error
	headers chan mchain.Header
	blocks  map[uint64]any
	errs    map[uint64]error

	mu      sync.Mutex
	fetches int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		headers: make(chan mchain.Header, 16),
		blocks:  make(map[uint64]any),
		errs:    make(map[uint64]error),
	}
}

func (s *fakeSource) Subscribe(context.Context) (<-chan mchain.Header, error) {
	if s.subErr != nil {
		return nil, s.subErr
	}
	return s.headers, nil
}

func (s *fakeSource) BlockByNumber(_ context.Context, n uint64) (any, error) {
	s.mu.Lock()
	s.fetches++
	s.mu.Unlock()

	if err := s.errs[n]; err != nil {
		return nil, err
	}
	return s.blocks[n], nil
}

func (s *fakeSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// announce pushes a notification for the given block number.
func (s *fakeSource) announce(number uint64) {
	s.headers <- mchain.Header{Number: hexutil.Uint64(number)}
}

// wireHeader renders a typed header into the loose wire tree form.
func wireHeader(t *testing.T, h mchain.Header) map[string]any {
	t.Helper()

	b, err := json.Marshal(h)
	require.NoError(t, err)

	var tree map[string]any
	require.NoError(t, json.Unmarshal(b, &tree))
	return tree
}

// wireBlock builds a remote block response as served over RPC:
// header fields at the top level, plus transactions and uncles.
func wireBlock(t *testing.T, number uint64, uncles any) map[string]any {
	t.Helper()

	tree := wireHeader(t, mchain.Header{
		Number:    hexutil.Uint64(number),
		Timestamp: hexutil.Uint64(1_700_000_000 + number),
		GasLimit:  30_000_000,
	})
	tree["transactions"] = []any{}
	if uncles != nil {
		tree["uncles"] = uncles
	}
	return tree
}

// expectedHash is the hash the relay must compute for a wire block.
func expectedHash(t *testing.T, tree map[string]any) mchain.SealedHeader {
	t.Helper()

	b, err := json.Marshal(tree)
	require.NoError(t, err)

	var h mchain.Header
	require.NoError(t, json.Unmarshal(b, &h))
	return h.Seal()
}

func newRelay(t *testing.T, eng *menginetest.Engine, src *fakeSource, policy mrelay.DecodePolicy) *mrelay.Relay {
	t.Helper()

	r, err := mrelay.New(slogt.New(t), mrelay.Config{
		Engine:     eng,
		Source:     src,
		SourceName: "ws://producer.test:8546",
		Policy:     policy,
	})
	require.NoError(t, err)
	return r
}

func runRelay(r *mrelay.Relay) chan error {
	done := make(chan error, 1)
	go func() {
		done <- r.Run(context.Background())
	}()
	return done
}

func waitDone(t *testing.T, done chan error) error {
	t.Helper()

	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
		return nil
	}
}

func TestRun_SubscribeFailureIsFatalWithoutFetching(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.subErr = errors.New("connection refused")

	r := newRelay(t, menginetest.NewEngine(), src, mrelay.PolicySkipMalformed)

	err := waitDone(t, runRelay(r))
	require.Error(t, err)
	require.Equal(t, 0, src.fetchCount())
}

func TestRun_RelaysAnnouncedBlock(t *testing.T) {
	t.Parallel()

	eng := menginetest.NewEngine()
	src := newFakeSource()

	ommers := []any{
		wireHeader(t, mchain.Header{Number: 98}),
		wireHeader(t, mchain.Header{Number: 99}),
	}
	block := wireBlock(t, 100, ommers)
	src.blocks[100] = block

	// The hash must match the header decoded from the same wire fields.
	want := expectedHash(t, wireBlock(t, 100, nil))

	r := newRelay(t, eng, src, mrelay.PolicyFailFast)
	done := runRelay(r)

	src.announce(100)
	close(src.headers)
	require.NoError(t, waitDone(t, done))

	// Normalization renamed the field in place at every depth.
	require.NotContains(t, block, "uncles")
	require.Len(t, block["ommers"], 2)

	pays := eng.NewPayloads()
	require.Len(t, pays, 1)
	require.Equal(t, want.Hash, pays[0].BlockHash)
	require.Equal(t, hexutil.Uint64(100), pays[0].BlockNumber)

	// The follower advances all three markers to the relayed block.
	calls := eng.ForkchoiceCalls()
	require.Len(t, calls, 1)
	require.Nil(t, calls[0].Attrs)
	require.Equal(t, want.Hash, calls[0].State.HeadBlockHash)
	require.Equal(t, want.Hash, calls[0].State.SafeBlockHash)
	require.Equal(t, want.Hash, calls[0].State.FinalizedBlockHash)

	snap := r.Snapshot()
	require.Equal(t, uint64(100), snap.LastNumber)
	require.Equal(t, want.Hash, snap.LastHash)
	require.Equal(t, uint64(1), snap.Relayed)
}

func TestRun_FetchFailureSkipsToNextNotification(t *testing.T) {
	t.Parallel()

	eng := menginetest.NewEngine()
	src := newFakeSource()
	src.errs[100] = errors.New("timeout")
	// Block 101 is announced but unknown to the source; 102 fetches fine.
	src.blocks[102] = wireBlock(t, 102, nil)

	r := newRelay(t, eng, src, mrelay.PolicySkipMalformed)
	done := runRelay(r)

	src.announce(100)
	src.announce(101)
	src.announce(102)
	close(src.headers)
	require.NoError(t, waitDone(t, done))

	require.Equal(t, 3, src.fetchCount())
	require.Len(t, eng.NewPayloads(), 1)
	require.Equal(t, uint64(102), r.Snapshot().LastNumber)
}

func TestRun_MalformedBodyDegradesToHeaderOnly(t *testing.T) {
	t.Parallel()

	eng := menginetest.NewEngine()
	src := newFakeSource()

	// Uncles as bare hash strings cannot decode into typed ommer headers.
	src.blocks[100] = wireBlock(t, 100, []any{
		"0x00000000000000000000000000000000000000000000000000000000000000aa",
	})

	r := newRelay(t, eng, src, mrelay.PolicySkipMalformed)
	done := runRelay(r)

	src.announce(100)
	close(src.headers)
	require.NoError(t, waitDone(t, done))

	// The block is still relayed, from its header alone.
	require.Len(t, eng.NewPayloads(), 1)
	require.Equal(t, uint64(1), r.Snapshot().Relayed)
}

func TestRun_MalformedBlockFailFast(t *testing.T) {
	t.Parallel()

	eng := menginetest.NewEngine()
	src := newFakeSource()

	bad := wireBlock(t, 100, nil)
	bad["number"] = true // not a quantity
	src.blocks[100] = bad

	r := newRelay(t, eng, src, mrelay.PolicyFailFast)
	done := runRelay(r)

	src.announce(100)

	err := waitDone(t, done)
	require.ErrorIs(t, err, mrelay.ErrMalformedBlock)
	require.Empty(t, eng.NewPayloads())
}

func TestRun_MalformedHeaderSkippedUnderLenientPolicy(t *testing.T) {
	t.Parallel()

	eng := menginetest.NewEngine()
	src := newFakeSource()

	bad := wireBlock(t, 100, nil)
	bad["number"] = true
	src.blocks[100] = bad
	src.blocks[101] = wireBlock(t, 101, nil)

	r := newRelay(t, eng, src, mrelay.PolicySkipMalformed)
	done := runRelay(r)

	src.announce(100)
	src.announce(101)
	close(src.headers)
	require.NoError(t, waitDone(t, done))

	require.Len(t, eng.NewPayloads(), 1)
	require.Equal(t, uint64(101), r.Snapshot().LastNumber)
}

func TestRun_EngineVerdictsDoNotGateAdvancement(t *testing.T) {
	t.Parallel()

	eng := menginetest.NewEngine()
	eng.NewPayloadStatus = mengine.StatusInvalid
	eng.ForkchoiceStatus = mengine.StatusInvalid

	src := newFakeSource()
	src.blocks[100] = wireBlock(t, 100, nil)

	r := newRelay(t, eng, src, mrelay.PolicySkipMalformed)
	done := runRelay(r)

	src.announce(100)
	close(src.headers)
	require.NoError(t, waitDone(t, done))

	// Both calls were made and the relay still advanced.
	require.Len(t, eng.NewPayloads(), 1)
	require.Len(t, eng.ForkchoiceCalls(), 1)
	require.Equal(t, uint64(1), r.Snapshot().Relayed)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	r := newRelay(t, menginetest.NewEngine(), src, mrelay.PolicySkipMalformed)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx)
	}()

	cancel()
	require.ErrorIs(t, waitDone(t, done), context.Canceled)
}
