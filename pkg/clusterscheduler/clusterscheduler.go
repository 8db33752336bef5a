// Package clusterscheduler specifies the external collaborator this backend
// offers resources to. The cluster scheduler's placement policy is out of
// scope; this package only specifies the upcalls the backend performs on
// it and ships a minimal in-memory reference implementation used by tests
// and the demo cmd/backend entry point.
package clusterscheduler

import (
	"github.com/fluxcompute/schedulerbackend/pkg/wire"
)

// ExecutorLostReason describes why an executor disappeared.
type ExecutorLostReason struct {
	Reason string
}

// ClusterScheduler is the set of upcalls the Driver Coordinator performs on
// the external placement decision-maker. Every method is invoked from the
// Coordinator's single event-loop goroutine and must not block on anything
// that could in turn wait on the Coordinator, or the system deadlocks.
type ClusterScheduler interface {
	// StatusUpdate forwards a task's progress report, unconditionally.
	StatusUpdate(taskID string, state wire.TaskState, data []byte)

	// AddResourceOffer delivers a single-executor offer, used by
	// generateOffer after a terminal StatusUpdate.
	AddResourceOffer(offer wire.WorkerOffer)

	// AddResourceOffers delivers a bulk offer across every registered
	// executor, used by generateAllOffers.
	AddResourceOffers(offers []wire.WorkerOffer)

	// ExecutorLost reports that id is no longer reachable, exactly once
	// per removal.
	ExecutorLost(executorID string, reason ExecutorLostReason)
}

// Reference is a minimal in-memory ClusterScheduler used by tests and the
// demo binary: it records every upcall it receives for later assertion and,
// when LaunchFunc is set, calls it once for each offer it receives.
type Reference struct {
	StatusUpdates []ReferenceStatusUpdate
	Offers        []wire.WorkerOffer
	OfferBatches  [][]wire.WorkerOffer
	Lost          []ReferenceLost

	// LaunchFunc, if set, is called synchronously from AddResourceOffer
	// and AddResourceOffers so tests can simulate a scheduler that
	// immediately places work on an offer.
	LaunchFunc func(offer wire.WorkerOffer)
}

// ReferenceStatusUpdate is one recorded StatusUpdate upcall.
type ReferenceStatusUpdate struct {
	TaskID string
	State  wire.TaskState
	Data   []byte
}

// ReferenceLost is one recorded ExecutorLost upcall.
type ReferenceLost struct {
	ExecutorID string
	Reason     ExecutorLostReason
}

// NewReference returns an empty Reference scheduler.
func NewReference() *Reference {
	return &Reference{}
}

func (r *Reference) StatusUpdate(taskID string, state wire.TaskState, data []byte) {
	r.StatusUpdates = append(r.StatusUpdates, ReferenceStatusUpdate{TaskID: taskID, State: state, Data: data})
}

func (r *Reference) AddResourceOffer(offer wire.WorkerOffer) {
	r.Offers = append(r.Offers, offer)
	if r.LaunchFunc != nil {
		r.LaunchFunc(offer)
	}
}

func (r *Reference) AddResourceOffers(offers []wire.WorkerOffer) {
	r.OfferBatches = append(r.OfferBatches, offers)
	r.Offers = append(r.Offers, offers...)
	if r.LaunchFunc != nil {
		for _, o := range offers {
			r.LaunchFunc(o)
		}
	}
}

func (r *Reference) ExecutorLost(executorID string, reason ExecutorLostReason) {
	r.Lost = append(r.Lost, ReferenceLost{ExecutorID: executorID, Reason: reason})
}
