// Package registry maintains the in-memory index of connected executors on
// behalf of the Driver Coordinator: the Coordinator is its only writer, and
// the Launch Pump worker, the metrics collector, and the admin /stats
// handler read it concurrently.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fluxcompute/schedulerbackend/pkg/wire"
)

// ErrDuplicateExecutor is returned by Insert when executorId is already
// present.
var ErrDuplicateExecutor = errors.New("registry: duplicate executor id")

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("registry: executor not found")

// Record is the registry's per-executor bookkeeping entry. Only the
// Coordinator mutates a Record's fields; the Launch Pump worker only reads
// Peer under the registry's lock.
type Record struct {
	ExecutorID string
	HostPort   wire.HostPort
	Address    string
	Peer       wire.PeerHandle
	Cores      int // cores offered at registration time, fixed for the record's life
}

// Registry is the four-index executor map described by the component
// design: by executor id, by peer handle, by remote address, plus a
// per-executor free-core counter, all under one mutex. The aggregate
// total-core counter is atomic so defaultParallelism() can read it without
// acquiring the lock.
type Registry struct {
	mu         sync.Mutex
	byID       map[string]*Record
	byPeer     map[wire.PeerHandle]string
	byAddress  map[string]string
	freeCores  map[string]int
	totalCores int64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byID:      make(map[string]*Record),
		byPeer:    make(map[wire.PeerHandle]string),
		byAddress: make(map[string]string),
		freeCores: make(map[string]int),
	}
}

// Insert installs all four index entries for rec and increments the
// aggregate core counter by rec.Cores. It fails with ErrDuplicateExecutor
// if rec.ExecutorID is already present.
func (r *Registry) Insert(rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[rec.ExecutorID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateExecutor, rec.ExecutorID)
	}

	r.byID[rec.ExecutorID] = rec
	r.byPeer[rec.Peer] = rec.ExecutorID
	r.byAddress[rec.Address] = rec.ExecutorID
	r.freeCores[rec.ExecutorID] = rec.Cores
	atomic.AddInt64(&r.totalCores, int64(rec.Cores))
	return nil
}

// Lookup returns the record for executorId, or ErrNotFound.
func (r *Registry) Lookup(executorID string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[executorID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, executorID)
	}
	return rec, nil
}

// LookupByPeer resolves a transport peer handle to its executorId.
func (r *Registry) LookupByPeer(handle wire.PeerHandle) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPeer[handle]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

// LookupByAddress resolves a remote address to its executorId.
func (r *Registry) LookupByAddress(addr string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byAddress[addr]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

// Remove drops all four index entries for executorId and decrements the
// aggregate core counter by the executor's original Cores, not its current
// free-core count. An executor's entire pledged capacity leaves the
// aggregate when it dies, whether those cores were sitting free, reserved
// pending a scheduler decision, or backing a task the executor was mid-way
// through running: the task itself is reported lost via ExecutorLost, and
// its cores never separately return through AdjustFree once the record is
// gone. See DESIGN.md, Open Question (b).
func (r *Registry) Remove(executorID string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[executorID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, executorID)
	}

	delete(r.byID, executorID)
	delete(r.byPeer, rec.Peer)
	delete(r.byAddress, rec.Address)
	delete(r.freeCores, executorID)

	atomic.AddInt64(&r.totalCores, -int64(rec.Cores))
	return rec, nil
}

// AdjustFree applies delta to executorId's free-core counter. A missing
// executorId is a silent no-op: FreeCores may race a removal.
func (r *Registry) AdjustFree(executorID string, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[executorID]; !ok {
		return
	}
	r.freeCores[executorID] += delta
}

// TakeAllFree snapshots executorId's free-core counter and zeroes it
// atomically with respect to other registry operations, returning the
// snapshot. This is the "reserved pending scheduler decision" step: cores
// are invisible to further offer rounds until FreeCores restores them.
func (r *Registry) TakeAllFree(executorID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[executorID]; !ok {
		return 0, false
	}
	free := r.freeCores[executorID]
	r.freeCores[executorID] = 0
	return free, true
}

// Snapshot is a read-only view of one registered executor, used to build
// offers and admin/metrics output without holding the lock longer than
// necessary.
type Snapshot struct {
	ExecutorID string
	HostPort   wire.HostPort
	Address    string
	FreeCores  int
	Cores      int
}

// Snapshots returns a point-in-time copy of every registered executor, for
// generateAllOffers and for the admin HTTP surface.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.byID))
	for id, rec := range r.byID {
		out = append(out, Snapshot{
			ExecutorID: id,
			HostPort:   rec.HostPort,
			Address:    rec.Address,
			FreeCores:  r.freeCores[id],
			Cores:      rec.Cores,
		})
	}
	return out
}

// TotalCoreCount returns the aggregate core counter. Safe to call from any
// goroutine without acquiring the registry lock.
func (r *Registry) TotalCoreCount() int {
	return int(atomic.LoadInt64(&r.totalCores))
}

// Count returns the number of currently registered executors.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// WithPeerLocked resolves executorId to its peer handle and invokes fn
// while holding the registry lock, so the Launch Pump worker can look up
// and send without racing a concurrent Remove. Holding the lock across the
// send is an intentional concurrency simplification: sends are local
// enqueues onto the transport, so contention is rare.
func (r *Registry) WithPeerLocked(executorID string, fn func(peer wire.PeerHandle) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[executorID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, executorID)
	}
	return fn(rec.Peer)
}
