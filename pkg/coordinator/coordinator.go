// Package coordinator implements the Driver Coordinator: a single-consumer
// event loop that owns the executor registry, processes inbound wire
// messages and transport liveness events, generates resource offers, and
// handles executor removal. All Coordinator state except the per-address
// registration rate limiters is touched from exactly one goroutine; other
// packages reach it by submitting events onto its channel. The limiters
// are consulted on the caller's goroutine under their own mutex.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fluxcompute/schedulerbackend/pkg/clusterscheduler"
	"github.com/fluxcompute/schedulerbackend/pkg/config"
	"github.com/fluxcompute/schedulerbackend/pkg/log"
	"github.com/fluxcompute/schedulerbackend/pkg/metrics"
	"github.com/fluxcompute/schedulerbackend/pkg/registry"
	"github.com/fluxcompute/schedulerbackend/pkg/wire"
)

// ErrStopped is returned by Submit once the Coordinator's mailbox has been
// closed by a prior StopDriver.
var ErrStopped = errors.New("coordinator: stopped")

// ErrAskTimeout is returned when an ask-reply call does not observe an
// acknowledgement within the configured timeout.
var ErrAskTimeout = errors.New("coordinator: ask timed out")

type registerRequest struct {
	msg     wire.RegisterExecutor
	peer    wire.PeerHandle
	address string
}

type statusUpdateRequest struct {
	msg wire.StatusUpdate
}

type reviveOffersRequest struct{}

type removeExecutorRequest struct {
	executorID string
	reason     string
	ack        chan error
}

type stopDriverRequest struct {
	ack chan struct{}
}

type freeCoresRequest struct {
	delta map[string]int
}

type peerTerminatedRequest struct {
	handle wire.PeerHandle
}

type peerDisconnectedRequest struct {
	address string
}

type peerShutdownRequest struct {
	address string
}

// Coordinator is the single-consumer event handler described by the
// component design. Construct with New, start its loop with Run, and stop
// it with Stop.
type Coordinator struct {
	reg       *registry.Registry
	scheduler clusterscheduler.ClusterScheduler
	cfg       config.Snapshot

	events chan any
	done   chan struct{}

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// New constructs a Coordinator over reg and scheduler, configured by cfg.
// The returned Coordinator's loop must be started with Run before any
// event is submitted.
func New(reg *registry.Registry, scheduler clusterscheduler.ClusterScheduler, cfg config.Snapshot) *Coordinator {
	return &Coordinator{
		reg:       reg,
		scheduler: scheduler,
		cfg:       cfg,
		events:    make(chan any, 256),
		done:      make(chan struct{}),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Run drains the event channel until a StopDriver event is handled, or ctx
// is cancelled. It must be run in its own goroutine; it returns when the
// Coordinator has fully shut down.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case ev := <-c.events:
			_, stopping := ev.(stopDriverRequest)
			c.dispatch(ev)
			if stopping {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// dispatch routes one event to its handler under a recover() so a handler
// panic never terminates the event loop, per the UnexpectedEvent policy.
func (c *Coordinator) dispatch(ev any) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CoordinatorPanicsTotal.Inc()
			log.Logger.Error().
				Interface("panic", r).
				Str("component", "coordinator").
				Msg("recovered panic in event handler")
		}
	}()

	kind := eventKind(ev)
	metrics.CoordinatorEventsTotal.WithLabelValues(kind).Inc()
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CoordinatorHandlerDuration, kind)

	switch e := ev.(type) {
	case registerRequest:
		c.handleRegisterExecutor(e)
	case statusUpdateRequest:
		c.handleStatusUpdate(e)
	case reviveOffersRequest:
		c.generateAllOffers()
	case removeExecutorRequest:
		c.handleRemoveExecutor(e)
	case stopDriverRequest:
		c.handleStopDriver(e)
	case freeCoresRequest:
		c.handleFreeCores(e)
	case peerTerminatedRequest:
		c.handlePeerTerminated(e)
	case peerDisconnectedRequest:
		c.handleRemovalByAddress(e.address, "peer disconnected")
	case peerShutdownRequest:
		c.handleRemovalByAddress(e.address, "peer shutdown")
	default:
		log.Logger.Warn().Str("component", "coordinator").Msg("unexpected event type")
	}
}

func eventKind(ev any) string {
	switch ev.(type) {
	case registerRequest:
		return "RegisterExecutor"
	case statusUpdateRequest:
		return "StatusUpdate"
	case reviveOffersRequest:
		return "ReviveOffers"
	case removeExecutorRequest:
		return "RemoveExecutor"
	case stopDriverRequest:
		return "StopDriver"
	case freeCoresRequest:
		return "FreeCores"
	case peerTerminatedRequest:
		return "PeerTerminated"
	case peerDisconnectedRequest:
		return "PeerDisconnected"
	case peerShutdownRequest:
		return "PeerShutdown"
	default:
		return "Unknown"
	}
}

// Submit enqueues ev onto the Coordinator's mailbox. It is the only way
// any other package reaches the Coordinator's state.
func (c *Coordinator) Submit(ev any) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrStopped
	}
}

// RegisterExecutor submits a registration attempt from addr, rate-limited
// per remote address so a looping peer cannot flood the mailbox.
func (c *Coordinator) RegisterExecutor(msg wire.RegisterExecutor, peer wire.PeerHandle, addr string) error {
	if !c.allowRegistration(addr) {
		metrics.RegistrationRateLimitedTotal.Inc()
		_ = peer.Send(wire.RegisterExecutorFailed{Reason: "registration rate limit exceeded for " + addr})
		return nil
	}
	return c.Submit(registerRequest{msg: msg, peer: peer, address: addr})
}

func (c *Coordinator) allowRegistration(addr string) bool {
	c.limiterMu.Lock()
	defer c.limiterMu.Unlock()
	lim, ok := c.limiters[addr]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Second), 5)
		c.limiters[addr] = lim
	}
	return lim.Allow()
}

// StatusUpdateFromPeer submits a StatusUpdate received from an executor.
func (c *Coordinator) StatusUpdateFromPeer(msg wire.StatusUpdate) error {
	return c.Submit(statusUpdateRequest{msg: msg})
}

// ReviveOffers signals the Coordinator to regenerate offers for every
// registered executor, including those with zero free cores.
func (c *Coordinator) ReviveOffers() error {
	return c.Submit(reviveOffersRequest{})
}

// FreeCores bulk-restores cores, e.g. when the scheduler declines an
// offer or a launch never actually reaches the executor.
func (c *Coordinator) FreeCores(delta map[string]int) error {
	return c.Submit(freeCoresRequest{delta: delta})
}

// NotifyPeerTerminated submits a transport-level clean-exit event.
func (c *Coordinator) NotifyPeerTerminated(handle wire.PeerHandle) error {
	return c.Submit(peerTerminatedRequest{handle: handle})
}

// NotifyPeerDisconnected submits a transport-level unexpected-close event.
func (c *Coordinator) NotifyPeerDisconnected(addr string) error {
	return c.Submit(peerDisconnectedRequest{address: addr})
}

// NotifyPeerShutdown submits a transport-level local-shutdown event.
func (c *Coordinator) NotifyPeerShutdown(addr string) error {
	return c.Submit(peerShutdownRequest{address: addr})
}

// RemoveExecutor blocks up to the configured ask timeout for the removal
// to be acknowledged.
func (c *Coordinator) RemoveExecutor(ctx context.Context, executorID, reason string) error {
	ack := make(chan error, 1)
	if err := c.Submit(removeExecutorRequest{executorID: executorID, reason: reason, ack: ack}); err != nil {
		return err
	}
	return c.await(ctx, ack)
}

// Stop requests graceful shutdown and blocks up to the ask timeout for
// acknowledgement. On timeout it returns ErrAskTimeout, which
// SchedulerBackend.Stop wraps in its own error.
func (c *Coordinator) Stop(ctx context.Context) error {
	ack := make(chan struct{}, 1)
	if err := c.Submit(stopDriverRequest{ack: ack}); err != nil {
		if errors.Is(err, ErrStopped) {
			return nil
		}
		return err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.cfg.AskTimeout)
	defer cancel()
	select {
	case <-ack:
		return nil
	case <-timeoutCtx.Done():
		return ErrAskTimeout
	}
}

func (c *Coordinator) await(ctx context.Context, ack chan error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.cfg.AskTimeout)
	defer cancel()
	select {
	case err := <-ack:
		return err
	case <-timeoutCtx.Done():
		return ErrAskTimeout
	}
}

// --- handlers ---

func (c *Coordinator) handleRegisterExecutor(req registerRequest) {
	execLog := log.WithExecutorID(req.msg.ExecutorID)

	if err := req.msg.Validate(); err != nil {
		execLog.Warn().Err(err).Msg("rejecting malformed RegisterExecutor")
		metrics.ExecutorsRejectedTotal.WithLabelValues("malformed hostPort").Inc()
		_ = req.peer.Send(wire.RegisterExecutorFailed{Reason: err.Error()})
		return
	}

	hostPort, _ := wire.ParseHostPort(req.msg.HostPort)

	rec := &registry.Record{
		ExecutorID: req.msg.ExecutorID,
		HostPort:   hostPort,
		Address:    req.address,
		Peer:       req.peer,
		Cores:      req.msg.Cores,
	}

	if err := c.reg.Insert(rec); err != nil {
		execLog.Warn().Err(err).Msg("rejecting duplicate executor id")
		metrics.ExecutorsRejectedTotal.WithLabelValues("duplicate executor id").Inc()
		_ = req.peer.Send(wire.RegisterExecutorFailed{Reason: fmt.Sprintf("Duplicate executor ID: %s", req.msg.ExecutorID)})
		return
	}

	metrics.ExecutorsRegisteredTotal.Inc()
	execLog.Info().Int("cores", req.msg.Cores).Str("hostPort", req.msg.HostPort).Msg("executor registered")

	_ = req.peer.Send(wire.RegisteredExecutor{Properties: c.cfg.Properties})

	c.generateAllOffers()
}

func (c *Coordinator) handleStatusUpdate(req statusUpdateRequest) {
	msg := req.msg
	metrics.StatusUpdatesTotal.WithLabelValues(string(msg.State)).Inc()

	c.scheduler.StatusUpdate(msg.TaskID, msg.State, msg.Data)

	if !msg.State.IsFinished() {
		return
	}

	c.reg.AdjustFree(msg.ExecutorID, 1)
	c.generateOffer(msg.ExecutorID)
}

func (c *Coordinator) handleRemoveExecutor(req removeExecutorRequest) {
	c.removeExecutor(req.executorID, req.reason)
	if req.ack != nil {
		req.ack <- nil
	}
}

func (c *Coordinator) handleStopDriver(req stopDriverRequest) {
	if req.ack != nil {
		req.ack <- struct{}{}
	}
	close(c.done)
}

func (c *Coordinator) handleFreeCores(req freeCoresRequest) {
	for id, delta := range req.delta {
		c.reg.AdjustFree(id, delta)
	}
}

func (c *Coordinator) handlePeerTerminated(req peerTerminatedRequest) {
	id, err := c.reg.LookupByPeer(req.handle)
	if err != nil {
		return
	}
	c.removeExecutor(id, "peer terminated")
}

func (c *Coordinator) handleRemovalByAddress(addr, reason string) {
	id, err := c.reg.LookupByAddress(addr)
	if err != nil {
		return
	}
	c.removeExecutor(id, reason)
}

// removeExecutor is idempotent: a terminate event may race an explicit
// removal. Only the Remove call that actually finds the record produces an
// ExecutorLost upcall.
func (c *Coordinator) removeExecutor(executorID, reason string) {
	if _, err := c.reg.Remove(executorID); err != nil {
		return
	}

	metrics.ExecutorsRemovedTotal.WithLabelValues(reason).Inc()
	execLog := log.WithExecutorID(executorID)
	execLog.Info().Str("reason", reason).Msg("executor removed")

	c.scheduler.ExecutorLost(executorID, clusterscheduler.ExecutorLostReason{Reason: reason})
}

// generateAllOffers snapshots and zeroes every executor's free cores and
// hands the resulting offers to the cluster scheduler in one batch. Cores
// are treated as reserved pending scheduler decision from the moment they
// appear in the offer; a decline restores them via FreeCores.
func (c *Coordinator) generateAllOffers() {
	snapshots := c.reg.Snapshots()
	offers := make([]wire.WorkerOffer, 0, len(snapshots))

	for _, s := range snapshots {
		free, ok := c.reg.TakeAllFree(s.ExecutorID)
		if !ok {
			continue
		}
		offers = append(offers, wire.WorkerOffer{
			ExecutorID: s.ExecutorID,
			HostPort:   s.HostPort.String(),
			Cores:      free,
		})
	}

	metrics.OffersGeneratedTotal.Inc()
	for _, o := range offers {
		metrics.OfferedCoresTotal.Add(float64(o.Cores))
	}

	c.scheduler.AddResourceOffers(offers)
}

// generateOffer is the single-executor variant, used after a terminal
// StatusUpdate restores exactly one core.
func (c *Coordinator) generateOffer(executorID string) {
	rec, err := c.reg.Lookup(executorID)
	if err != nil {
		return
	}
	free, ok := c.reg.TakeAllFree(executorID)
	if !ok {
		return
	}

	offer := wire.WorkerOffer{
		ExecutorID: executorID,
		HostPort:   rec.HostPort.String(),
		Cores:      free,
	}

	metrics.OffersGeneratedTotal.Inc()
	metrics.OfferedCoresTotal.Add(float64(free))

	c.scheduler.AddResourceOffer(offer)
}
