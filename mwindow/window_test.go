package mwindow_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/monarch-engine/monarch/mwindow"
)

func hashOf(i int) common.Hash {
	return common.BytesToHash([]byte{byte(i >> 8), byte(i)})
}

func TestWindow_SafeAndFinalizedPinToOldestWhileSmall(t *testing.T) {
	t.Parallel()

	w := mwindow.NewWindow(hashOf(0))

	st := w.State()
	require.Equal(t, hashOf(0), st.HeadBlockHash)
	require.Equal(t, st.HeadBlockHash, st.SafeBlockHash)
	require.Equal(t, st.HeadBlockHash, st.FinalizedBlockHash)

	// Below 32 entries, safe stays pinned to the oldest hash.
	for i := 1; i < 31; i++ {
		w.Append(hashOf(i))
	}
	st = w.State()
	require.Equal(t, hashOf(30), st.HeadBlockHash)
	require.Equal(t, hashOf(0), st.SafeBlockHash)
	require.Equal(t, hashOf(0), st.FinalizedBlockHash)
}

func TestWindow_SafeLagsBy32(t *testing.T) {
	t.Parallel()

	w := mwindow.NewWindow(hashOf(0))
	for i := 1; i <= 40; i++ {
		w.Append(hashOf(i))
	}

	// 41 entries, hashes 0..40. Safe sits at offset len-32.
	st := w.State()
	require.Equal(t, hashOf(40), st.HeadBlockHash)
	require.Equal(t, hashOf(41-32), st.SafeBlockHash)
	require.Equal(t, hashOf(0), st.FinalizedBlockHash)
}

func TestWindow_EvictsOldestBeyond64(t *testing.T) {
	t.Parallel()

	w := mwindow.NewWindow(hashOf(0))
	for i := 1; i <= 63; i++ {
		w.Append(hashOf(i))
	}
	require.Equal(t, 64, w.Len())

	st := w.State()
	require.Equal(t, hashOf(63), st.HeadBlockHash)
	require.Equal(t, hashOf(0), st.FinalizedBlockHash)

	// The 65th append evicts hash 0 exactly.
	w.Append(hashOf(64))
	require.Equal(t, 64, w.Len())

	st = w.State()
	require.Equal(t, hashOf(64), st.HeadBlockHash)
	require.Equal(t, hashOf(1), st.FinalizedBlockHash)
	require.Equal(t, hashOf(33), st.SafeBlockHash)

	// The bound holds for any longer sequence.
	for i := 65; i < 200; i++ {
		w.Append(hashOf(i))
		require.Equal(t, 64, w.Len())
	}
}

func TestClock_TracksWallClockWhenAhead(t *testing.T) {
	t.Parallel()

	start := time.Unix(1_700_000_000, 0)
	c := mwindow.NewClock(start)

	ts := c.Next(start.Add(5 * time.Second))
	require.Equal(t, uint64(1_700_000_005), ts)
}

func TestClock_StrictlyIncreasesUnderFrozenWallClock(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	c := mwindow.NewClock(now)

	var prev uint64 = 1_700_000_000
	for i := 0; i < 10; i++ {
		ts := c.Next(now) // wall clock never advances
		require.Greater(t, ts, prev)
		c.Commit(ts)
		prev = ts
	}
}

func TestClock_NeverRegressesBehindLastBlock(t *testing.T) {
	t.Parallel()

	c := mwindow.NewClock(time.Unix(1_700_000_100, 0))

	// Wall clock jumped backwards past the last block's timestamp.
	ts := c.Next(time.Unix(1_700_000_050, 0))
	require.Equal(t, uint64(1_700_000_101), ts)
}

func TestClock_NextDoesNotAdvanceWithoutCommit(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	c := mwindow.NewClock(now)

	first := c.Next(now)
	second := c.Next(now)
	require.Equal(t, first, second)
}
