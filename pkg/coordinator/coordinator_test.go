package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcompute/schedulerbackend/pkg/clusterscheduler"
	"github.com/fluxcompute/schedulerbackend/pkg/config"
	"github.com/fluxcompute/schedulerbackend/pkg/registry"
	"github.com/fluxcompute/schedulerbackend/pkg/wire"
)

type recordingPeer struct {
	mu   sync.Mutex
	addr string
	sent []any
}

func newRecordingPeer(addr string) *recordingPeer {
	return &recordingPeer{addr: addr}
}

func (p *recordingPeer) Address() string { return p.addr }

func (p *recordingPeer) Send(msg any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return nil
}

func (p *recordingPeer) messages() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.sent...)
}

func testSnapshot() config.Snapshot {
	return config.Snapshot{
		AskTimeout: 2 * time.Second,
		Properties: map[string]string{"spark.executor.memory": "1g"},
	}
}

func startCoordinator(t *testing.T, scheduler clusterscheduler.ClusterScheduler) (*Coordinator, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	c := New(reg, scheduler, testSnapshot())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)

	return c, reg
}

func registerAndWait(t *testing.T, c *Coordinator, executorID string, cores int, peer *recordingPeer) {
	t.Helper()
	require.NoError(t, c.RegisterExecutor(wire.RegisterExecutor{
		ExecutorID: executorID,
		HostPort:   "10.0.0.1:7000",
		Cores:      cores,
	}, peer, peer.Address()))

	require.Eventually(t, func() bool {
		return len(peer.messages()) > 0
	}, time.Second, time.Millisecond)
}

func TestRegisterExecutorSuccess(t *testing.T) {
	scheduler := clusterscheduler.NewReference()
	c, reg := startCoordinator(t, scheduler)

	peer := newRecordingPeer("10.0.0.1:41000")
	registerAndWait(t, c, "exec-1", 4, peer)

	msgs := peer.messages()
	require.Len(t, msgs, 1)
	registered, ok := msgs[0].(wire.RegisteredExecutor)
	require.True(t, ok)
	assert.Equal(t, "1g", registered.Properties["spark.executor.memory"])

	assert.Equal(t, 4, reg.TotalCoreCount())

	require.Eventually(t, func() bool {
		return len(scheduler.OfferBatches) > 0
	}, time.Second, time.Millisecond)
}

func TestRegisterExecutorDuplicateRejected(t *testing.T) {
	scheduler := clusterscheduler.NewReference()
	c, _ := startCoordinator(t, scheduler)

	peer1 := newRecordingPeer("10.0.0.1:1")
	registerAndWait(t, c, "exec-1", 4, peer1)

	peer2 := newRecordingPeer("10.0.0.1:2")
	require.NoError(t, c.RegisterExecutor(wire.RegisterExecutor{
		ExecutorID: "exec-1",
		HostPort:   "10.0.0.1:7001",
		Cores:      2,
	}, peer2, peer2.Address()))

	require.Eventually(t, func() bool {
		return len(peer2.messages()) > 0
	}, time.Second, time.Millisecond)

	_, ok := peer2.messages()[0].(wire.RegisterExecutorFailed)
	assert.True(t, ok)
}

func TestRegisterExecutorMalformedRejected(t *testing.T) {
	scheduler := clusterscheduler.NewReference()
	c, _ := startCoordinator(t, scheduler)

	peer := newRecordingPeer("10.0.0.1:1")
	require.NoError(t, c.RegisterExecutor(wire.RegisterExecutor{
		ExecutorID: "exec-1",
		HostPort:   "not-a-hostport",
		Cores:      2,
	}, peer, peer.Address()))

	require.Eventually(t, func() bool {
		return len(peer.messages()) > 0
	}, time.Second, time.Millisecond)

	_, ok := peer.messages()[0].(wire.RegisterExecutorFailed)
	assert.True(t, ok)
}

func TestStatusUpdateFinishedFreesOneCoreAndOffersIt(t *testing.T) {
	scheduler := clusterscheduler.NewReference()
	c, reg := startCoordinator(t, scheduler)

	peer := newRecordingPeer("10.0.0.1:1")
	registerAndWait(t, c, "exec-1", 4, peer)

	rec, err := reg.Lookup("exec-1")
	require.NoError(t, err)
	assert.NotNil(t, rec)

	require.NoError(t, c.StatusUpdateFromPeer(wire.StatusUpdate{
		ExecutorID: "exec-1",
		TaskID:     "task-1",
		State:      wire.TaskFinished,
	}))

	require.Eventually(t, func() bool {
		ref := scheduler
		// Offers[0] is the 4-core registration batch; the single-executor
		// offer that follows the terminal update carries the one freed core.
		return len(ref.StatusUpdates) == 1 && len(ref.Offers) == 2 && ref.Offers[1].Cores == 1
	}, time.Second, time.Millisecond)
}

func TestStatusUpdateNonTerminalDoesNotOffer(t *testing.T) {
	scheduler := clusterscheduler.NewReference()
	c, _ := startCoordinator(t, scheduler)

	peer := newRecordingPeer("10.0.0.1:1")
	registerAndWait(t, c, "exec-1", 4, peer)

	ref := scheduler
	offersBefore := len(ref.Offers)

	require.NoError(t, c.StatusUpdateFromPeer(wire.StatusUpdate{
		ExecutorID: "exec-1",
		TaskID:     "task-1",
		State:      wire.TaskRunning,
	}))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, offersBefore, len(ref.Offers))
}

func TestFreeCoresThenReviveOffersRoundTrip(t *testing.T) {
	scheduler := clusterscheduler.NewReference()
	c, _ := startCoordinator(t, scheduler)

	peer := newRecordingPeer("10.0.0.1:1")
	registerAndWait(t, c, "exec-1", 4, peer) // consumes the registration-time offer

	ref := scheduler
	batchesBefore := len(ref.OfferBatches)

	require.NoError(t, c.FreeCores(map[string]int{"exec-1": 2}))
	require.NoError(t, c.ReviveOffers())

	require.Eventually(t, func() bool {
		return len(ref.OfferBatches) > batchesBefore
	}, time.Second, time.Millisecond)

	last := ref.OfferBatches[len(ref.OfferBatches)-1]
	require.Len(t, last, 1)
	assert.Equal(t, 2, last[0].Cores)
}

func TestRemoveExecutorReportsExecutorLostExactlyOnce(t *testing.T) {
	scheduler := clusterscheduler.NewReference()
	c, reg := startCoordinator(t, scheduler)

	peer := newRecordingPeer("10.0.0.1:1")
	registerAndWait(t, c, "exec-1", 4, peer)

	require.NoError(t, c.RemoveExecutor(context.Background(), "exec-1", "test removal"))
	require.NoError(t, c.RemoveExecutor(context.Background(), "exec-1", "second removal races the first"))

	_, err := reg.Lookup("exec-1")
	assert.Error(t, err)

	ref := scheduler
	require.Len(t, ref.Lost, 1)
	assert.Equal(t, "test removal", ref.Lost[0].Reason.Reason)
}

func TestPeerDisconnectedRemovesByAddress(t *testing.T) {
	scheduler := clusterscheduler.NewReference()
	c, reg := startCoordinator(t, scheduler)

	peer := newRecordingPeer("10.0.0.1:1")
	registerAndWait(t, c, "exec-1", 4, peer)

	require.NoError(t, c.NotifyPeerDisconnected("10.0.0.1:1"))

	require.Eventually(t, func() bool {
		_, err := reg.Lookup("exec-1")
		return err != nil
	}, time.Second, time.Millisecond)
}

func TestPeerTerminatedRemovesByPeerHandle(t *testing.T) {
	scheduler := clusterscheduler.NewReference()
	c, reg := startCoordinator(t, scheduler)

	peer := newRecordingPeer("10.0.0.1:1")
	registerAndWait(t, c, "exec-1", 4, peer)

	require.NoError(t, c.NotifyPeerTerminated(peer))

	require.Eventually(t, func() bool {
		_, err := reg.Lookup("exec-1")
		return err != nil
	}, time.Second, time.Millisecond)
}

func TestStopAcksAndFutureSubmitsFail(t *testing.T) {
	scheduler := clusterscheduler.NewReference()
	c, _ := startCoordinator(t, scheduler)

	require.NoError(t, c.Stop(context.Background()))

	err := c.ReviveOffers()
	assert.ErrorIs(t, err, ErrStopped)

	// Stop is idempotent from the caller's perspective once the
	// Coordinator has already shut down.
	assert.NoError(t, c.Stop(context.Background()))
}

func TestRegistrationRateLimitPerAddress(t *testing.T) {
	scheduler := clusterscheduler.NewReference()
	c, _ := startCoordinator(t, scheduler)

	addr := "10.0.0.1:1"
	var lastPeer *recordingPeer
	for i := 0; i < 10; i++ {
		lastPeer = newRecordingPeer(addr)
		require.NoError(t, c.RegisterExecutor(wire.RegisterExecutor{
			ExecutorID: "exec-burst",
			HostPort:   "10.0.0.1:7000",
			Cores:      1,
		}, lastPeer, addr))
	}

	require.Eventually(t, func() bool {
		return len(lastPeer.messages()) > 0
	}, time.Second, time.Millisecond)

	_, failed := lastPeer.messages()[0].(wire.RegisterExecutorFailed)
	assert.True(t, failed, "bursting past the per-address limit should be rejected without reaching the registry")
}
