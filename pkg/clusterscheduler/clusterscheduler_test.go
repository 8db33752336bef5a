package clusterscheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcompute/schedulerbackend/pkg/wire"
)

func TestReferenceRecordsUpcalls(t *testing.T) {
	r := NewReference()

	r.StatusUpdate("task-1", wire.TaskRunning, nil)
	require.Len(t, r.StatusUpdates, 1)
	assert.Equal(t, "task-1", r.StatusUpdates[0].TaskID)
	assert.Equal(t, wire.TaskRunning, r.StatusUpdates[0].State)

	offer := wire.WorkerOffer{ExecutorID: "exec-1", HostPort: "10.0.0.1:7000", Cores: 2}
	r.AddResourceOffer(offer)
	assert.Equal(t, []wire.WorkerOffer{offer}, r.Offers)

	batch := []wire.WorkerOffer{offer}
	r.AddResourceOffers(batch)
	require.Len(t, r.OfferBatches, 1)
	assert.Equal(t, batch, r.OfferBatches[0])
	assert.Len(t, r.Offers, 2)

	r.ExecutorLost("exec-1", ExecutorLostReason{Reason: "peer terminated"})
	require.Len(t, r.Lost, 1)
	assert.Equal(t, "exec-1", r.Lost[0].ExecutorID)
}

func TestReferenceLaunchFuncInvokedPerOffer(t *testing.T) {
	r := NewReference()
	var launched []string
	r.LaunchFunc = func(offer wire.WorkerOffer) {
		launched = append(launched, offer.ExecutorID)
	}

	r.AddResourceOffers([]wire.WorkerOffer{
		{ExecutorID: "exec-1", Cores: 1},
		{ExecutorID: "exec-2", Cores: 1},
	})

	assert.Equal(t, []string{"exec-1", "exec-2"}, launched)
}
