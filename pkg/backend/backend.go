// Package backend assembles the Driver Coordinator, Launch Pump, gRPC
// transport, admin HTTP server, and metrics collector into the scheduler
// backend's external interface: start, stop, launchTask, reviveOffers,
// defaultParallelism, and removeExecutor.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/fluxcompute/schedulerbackend/pkg/clusterscheduler"
	"github.com/fluxcompute/schedulerbackend/pkg/config"
	"github.com/fluxcompute/schedulerbackend/pkg/coordinator"
	"github.com/fluxcompute/schedulerbackend/pkg/launchpump"
	"github.com/fluxcompute/schedulerbackend/pkg/log"
	"github.com/fluxcompute/schedulerbackend/pkg/metrics"
	"github.com/fluxcompute/schedulerbackend/pkg/registry"
	"github.com/fluxcompute/schedulerbackend/pkg/transport"
	"github.com/fluxcompute/schedulerbackend/pkg/wire"
)

// SchedulerBackend is the top-level assembly. It is the only type external
// callers (the cluster scheduler implementation, cmd/backend) construct
// directly.
type SchedulerBackend struct {
	cfg config.Snapshot

	reg       *registry.Registry
	coord     *coordinator.Coordinator
	pump      *launchpump.Pump
	collector *metrics.Collector

	grpcServer  *grpc.Server
	adminServer *http.Server

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New wires together a SchedulerBackend around scheduler, the cluster
// scheduler implementation that will receive offers, status updates, and
// executor-lost notifications.
func New(cfg config.Snapshot, scheduler clusterscheduler.ClusterScheduler) *SchedulerBackend {
	reg := registry.New()
	coord := coordinator.New(reg, scheduler, cfg)
	pump := launchpump.New(reg, coord)
	collector := metrics.NewCollector(reg)

	grpcServer := grpc.NewServer(transport.ServerOptions()...)
	transport.NewServer(coord).Register(grpcServer)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	mux.HandleFunc("/stats", statsHandler(reg))

	return &SchedulerBackend{
		cfg:         cfg,
		reg:         reg,
		coord:       coord,
		pump:        pump,
		collector:   collector,
		grpcServer:  grpcServer,
		adminServer: &http.Server{Addr: cfg.AdminAddress, Handler: mux},
	}
}

// Start implements start(): it binds the gRPC listener, then launches the
// Coordinator loop, the Launch Pump worker, the gRPC server, the admin HTTP
// server, and the metrics collector in the background and returns. The
// admin server binds its address in the background, so a failure to bind
// it is not reported by Start. A failure in a background server cancels
// the shared context, which stops the Coordinator loop and the Launch Pump
// worker; the gRPC and admin servers keep running until Stop, which
// returns that failure.
func (b *SchedulerBackend) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	group, groupCtx := errgroup.WithContext(ctx)
	b.group = group

	listener, err := net.Listen("tcp", b.cfg.ListenAddress)
	if err != nil {
		cancel()
		return fmt.Errorf("backend: listening on %q: %w", b.cfg.ListenAddress, err)
	}

	metrics.UpdateComponent("coordinator", true, "running")
	metrics.UpdateComponent("launchpump", true, "running")
	metrics.UpdateComponent("transport", false, "starting")

	group.Go(func() error {
		b.coord.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		b.pump.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		metrics.UpdateComponent("transport", true, "listening")
		if err := b.grpcServer.Serve(listener); err != nil && groupCtx.Err() == nil {
			return fmt.Errorf("backend: grpc serve: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		if err := b.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("backend: admin server: %w", err)
		}
		return nil
	})

	b.collector.Start()

	log.Logger.Info().
		Str("listen", b.cfg.ListenAddress).
		Str("admin", b.cfg.AdminAddress).
		Msg("scheduler backend started")

	return nil
}

// Stop implements stop(): it asks the Coordinator to shut down gracefully,
// bounded by the configured ask timeout, then tears down the transport and
// admin surfaces regardless of whether the graceful ask succeeded.
func (b *SchedulerBackend) Stop() error {
	stopErr := b.coord.Stop(context.Background())

	b.collector.Stop()
	b.grpcServer.GracefulStop()
	_ = b.adminServer.Close()

	if b.cancel != nil {
		b.cancel()
	}
	var groupErr error
	if b.group != nil {
		groupErr = b.group.Wait()
	}

	if stopErr != nil {
		return fmt.Errorf("backend: stop: %w", stopErr)
	}
	if groupErr != nil {
		return fmt.Errorf("backend: background component: %w", groupErr)
	}
	return nil
}

// LaunchTask implements launchTask(desc): it enqueues desc onto the Launch
// Pump. It returns immediately unless the pump's 4096-entry queue is full,
// in which case it blocks until the worker makes room.
func (b *SchedulerBackend) LaunchTask(task wire.TaskDescription) {
	b.pump.Enqueue(task)
}

// ReviveOffers implements reviveOffers().
func (b *SchedulerBackend) ReviveOffers() error {
	return b.coord.ReviveOffers()
}

// DefaultParallelism implements defaultParallelism().
func (b *SchedulerBackend) DefaultParallelism() int {
	return b.cfg.DefaultParallelismOrFallback(b.reg.TotalCoreCount())
}

// RemoveExecutor implements removeExecutor(executorId, reason).
func (b *SchedulerBackend) RemoveExecutor(executorID, reason string) error {
	return b.coord.RemoveExecutor(context.Background(), executorID, reason)
}

func statsHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Executors      []registry.Snapshot `json:"executors"`
			TotalCoreCount int                  `json:"totalCoreCount"`
		}{
			Executors:      reg.Snapshots(),
			TotalCoreCount: reg.TotalCoreCount(),
		})
	}
}
