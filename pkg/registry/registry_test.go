package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcompute/schedulerbackend/pkg/wire"
)

type fakePeer struct{ addr string }

func (p *fakePeer) Address() string    { return p.addr }
func (p *fakePeer) Send(msg any) error { return nil }

func record(id string, cores int) *Record {
	return &Record{
		ExecutorID: id,
		HostPort:   wire.HostPort{Host: "10.0.0.1", Port: 7000},
		Address:    id + "-addr",
		Peer:       &fakePeer{addr: id + "-addr"},
		Cores:      cores,
	}
}

func TestInsertAndLookup(t *testing.T) {
	r := New()
	rec := record("exec-1", 4)

	require.NoError(t, r.Insert(rec))
	assert.Equal(t, 4, r.TotalCoreCount())
	assert.Equal(t, 1, r.Count())

	got, err := r.Lookup("exec-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	id, err := r.LookupByPeer(rec.Peer)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", id)

	id, err = r.LookupByAddress("exec-1-addr")
	require.NoError(t, err)
	assert.Equal(t, "exec-1", id)
}

func TestInsertDuplicateRejected(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(record("exec-1", 4)))

	err := r.Insert(record("exec-1", 2))
	assert.True(t, errors.Is(err, ErrDuplicateExecutor))
	assert.Equal(t, 4, r.TotalCoreCount())
}

func TestLookupMissingReturnsNotFound(t *testing.T) {
	r := New()
	_, err := r.Lookup("missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = r.LookupByAddress("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTakeAllFreeZeroesCounter(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(record("exec-1", 4)))

	free, ok := r.TakeAllFree("exec-1")
	assert.True(t, ok)
	assert.Equal(t, 4, free)

	free, ok = r.TakeAllFree("exec-1")
	assert.True(t, ok)
	assert.Equal(t, 0, free)
}

func TestAdjustFreeOnMissingExecutorIsNoop(t *testing.T) {
	r := New()
	assert.NotPanics(t, func() { r.AdjustFree("ghost", 3) })
}

// TestRemoveDecrementsByOriginalCoresRegardlessOfFree verifies that a dead
// executor's entire pledged capacity leaves the aggregate, not just its
// free cores: cores reserved by an in-flight offer are reclaimed too.
func TestRemoveDecrementsByOriginalCoresRegardlessOfFree(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(record("exec-1", 4)))

	_, ok := r.TakeAllFree("exec-1") // reserve all 4 cores, as an offer would
	require.True(t, ok)

	_, err := r.Remove("exec-1")
	require.NoError(t, err)

	assert.Equal(t, 0, r.TotalCoreCount(), "the executor's full original capacity is reclaimed on removal")
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := New()
	rec := record("exec-1", 4)
	require.NoError(t, r.Insert(rec))

	_, err := r.Remove("exec-1")
	require.NoError(t, err)

	_, err = r.Remove("exec-1")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = r.LookupByPeer(rec.Peer)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = r.LookupByAddress(rec.Address)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSnapshotsReflectFreeCores(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(record("exec-1", 4)))
	r.AdjustFree("exec-1", -1)

	snaps := r.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, 3, snaps[0].FreeCores)
	assert.Equal(t, 4, snaps[0].Cores)
}

func TestWithPeerLockedInvokesCallbackAndPropagatesError(t *testing.T) {
	r := New()
	rec := record("exec-1", 4)
	require.NoError(t, r.Insert(rec))

	var seen wire.PeerHandle
	err := r.WithPeerLocked("exec-1", func(peer wire.PeerHandle) error {
		seen = peer
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, rec.Peer, seen)

	boom := errors.New("boom")
	err = r.WithPeerLocked("exec-1", func(peer wire.PeerHandle) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = r.WithPeerLocked("missing", func(peer wire.PeerHandle) error {
		t.Fatal("must not be called for a missing executor")
		return nil
	})
	assert.True(t, errors.Is(err, ErrNotFound))
}
