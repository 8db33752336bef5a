// Package launchpump implements the Launch Pump: a FIFO queue (a channel
// buffered to 4096 entries) of task descriptions drained by a single worker that resolves each
// task's target executor and sends it a LaunchTask message. It exists to
// decouple the cluster scheduler's synchronous launchTask call from the
// network send.
package launchpump

import (
	"context"
	"errors"

	"github.com/fluxcompute/schedulerbackend/pkg/coordinator"
	"github.com/fluxcompute/schedulerbackend/pkg/log"
	"github.com/fluxcompute/schedulerbackend/pkg/metrics"
	"github.com/fluxcompute/schedulerbackend/pkg/registry"
	"github.com/fluxcompute/schedulerbackend/pkg/wire"
)

// Pump is the FIFO queue plus worker. Enqueue is safe to call from any
// goroutine, including from within the cluster scheduler's offer-handling
// critical section.
type Pump struct {
	reg   *registry.Registry
	coord *coordinator.Coordinator

	queue chan queued
}

type queued struct {
	task  wire.TaskDescription
	timer *metrics.Timer
}

// New returns a Pump that resolves launch targets against reg and, on send
// failure, reports the failure back through coord as a synthesized
// StatusUpdate(LOST) so the cluster scheduler's upcall contract is never
// silently violated.
func New(reg *registry.Registry, coord *coordinator.Coordinator) *Pump {
	return &Pump{
		reg:   reg,
		coord: coord,
		queue: make(chan queued, 4096),
	}
}

// Enqueue appends task to the FIFO queue. The queue is bounded at 4096
// entries: Enqueue returns immediately while there is room, and blocks
// until the worker dequeues a task once 4096 tasks are already waiting.
func (p *Pump) Enqueue(task wire.TaskDescription) {
	metrics.LaunchQueueDepth.Inc()
	p.queue <- queued{task: task, timer: metrics.NewTimer()}
}

// Run drains the queue until ctx is cancelled. It is a daemon: it does not
// keep the process alive on its own, and in-flight launches may be lost if
// the process exits while it is running.
func (p *Pump) Run(ctx context.Context) {
	for {
		select {
		case q := <-p.queue:
			metrics.LaunchQueueDepth.Dec()
			q.timer.ObserveDuration(metrics.LaunchLatency)
			p.send(q.task)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pump) send(task wire.TaskDescription) {
	taskLog := log.WithTaskID(task.TaskID)

	err := p.reg.WithPeerLocked(task.ExecutorID, func(peer wire.PeerHandle) error {
		return peer.Send(wire.LaunchTask{Task: task})
	})

	if err != nil {
		cause := "send"
		if errors.Is(err, registry.ErrNotFound) {
			cause = "lookup"
		}
		metrics.LaunchesFailedTotal.WithLabelValues(cause).Inc()
		taskLog.Error().Err(err).Str("executor_id", task.ExecutorID).Msg("launch send failed, synthesizing LOST status")

		if submitErr := p.coord.StatusUpdateFromPeer(wire.StatusUpdate{
			ExecutorID: task.ExecutorID,
			TaskID:     task.TaskID,
			State:      wire.TaskLost,
			Data:       nil,
		}); submitErr != nil {
			taskLog.Error().Err(submitErr).Msg("failed to submit synthesized LOST status, dropping")
		}
		return
	}

	metrics.LaunchesSentTotal.Inc()
	taskLog.Debug().Str("executor_id", task.ExecutorID).Msg("launch sent")
}
