// Package steps holds godog step definitions for the scheduler backend's
// end-to-end scenarios (spec.md §8).
package steps

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cucumber/godog"

	"github.com/fluxcompute/schedulerbackend/pkg/clusterscheduler"
	"github.com/fluxcompute/schedulerbackend/pkg/config"
	"github.com/fluxcompute/schedulerbackend/pkg/coordinator"
	"github.com/fluxcompute/schedulerbackend/pkg/launchpump"
	"github.com/fluxcompute/schedulerbackend/pkg/registry"
	"github.com/fluxcompute/schedulerbackend/pkg/wire"
)

type recordingPeer struct {
	mu   sync.Mutex
	addr string
	sent []any
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

// backendContext holds the state one scenario exercises.
type backendContext struct {
	reg       *registry.Registry
	coord     *coordinator.Coordinator
	pump      *launchpump.Pump
	scheduler *clusterscheduler.Reference
	cfg       config.Snapshot

	peers map[string]*recordingPeer
	addrs map[string]string // executorId -> address, since "again at" reuses the id

	cancel context.CancelFunc
}

func (b *backendContext) reset(cfg config.Snapshot) {
	b.reg = registry.New()
	b.scheduler = clusterscheduler.NewReference()
	b.cfg = cfg
	b.coord = coordinator.New(b.reg, b.scheduler, cfg)
	b.peers = make(map[string]*recordingPeer)
	b.addrs = make(map[string]string)

	b.pump = launchpump.New(b.reg, b.coord)

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go b.coord.Run(ctx)
	go b.pump.Run(ctx)
}

func (b *backendContext) register(executorID, hostPort string, cores int) error {
	addr := hostPort + "-addr"
	peer := &recordingPeer{addr: addr}
	b.peers[executorID] = peer
	b.addrs[executorID] = addr

	if err := b.coord.RegisterExecutor(wire.RegisterExecutor{
		ExecutorID: executorID,
		HostPort:   hostPort,
		Cores:      cores,
	}, peer, addr); err != nil {
		return err
	}
	return waitFor(func() bool { return len(peer.messages()) > 0 })
}

func waitFor(cond func() bool) error {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	if cond() {
		return nil
	}
	return fmt.Errorf("condition not met before deadline")
}

// InitializeScenario registers every step definition for the scheduler
// backend feature.
func InitializeScenario(sc *godog.ScenarioContext) {
	b := &backendContext{}

	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		return ctx, nil
	})
	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		if b.cancel != nil {
			b.cancel()
		}
		return ctx, err
	})

	sc.Step(`^a fresh scheduler backend$`, func() error {
		b.reset(config.Snapshot{AskTimeout: 2 * time.Second})
		return nil
	})
	sc.Step(`^a fresh scheduler backend with no default parallelism override$`, func() error {
		b.reset(config.Snapshot{AskTimeout: 2 * time.Second})
		return nil
	})
	sc.Step(`^a fresh scheduler backend with a default parallelism override of (\d+)$`, func(n int) error {
		b.reset(config.Snapshot{AskTimeout: 2 * time.Second, DefaultParallelism: &n})
		return nil
	})

	sc.Step(`^executor "([^"]+)" registers at "([^"]+)" with (\d+) cores$`, func(id, hostPort string, cores int) error {
		return b.register(id, hostPort, cores)
	})
	sc.Step(`^executor "([^"]+)" registers again at "([^"]+)" with (\d+) cores$`, func(id, hostPort string, cores int) error {
		addr := hostPort + "-again-addr"
		peer := &recordingPeer{addr: addr}
		b.peers[id] = peer
		if err := b.coord.RegisterExecutor(wire.RegisterExecutor{ExecutorID: id, HostPort: hostPort, Cores: cores}, peer, addr); err != nil {
			return err
		}
		return waitFor(func() bool { return len(peer.messages()) > 0 })
	})

	sc.Step(`^executor "([^"]+)" receives a successful registration reply$`, func(id string) error {
		msgs := b.peers[id].messages()
		if len(msgs) == 0 {
			return fmt.Errorf("executor %s received no messages", id)
		}
		if _, ok := msgs[len(msgs)-1].(wire.RegisteredExecutor); !ok {
			return fmt.Errorf("executor %s's last message was not RegisteredExecutor: %#v", id, msgs[len(msgs)-1])
		}
		return nil
	})

	sc.Step(`^executor "([^"]+)" receives a registration failure mentioning "([^"]+)"$`, func(id, substr string) error {
		msgs := b.peers[id].messages()
		last := msgs[len(msgs)-1]
		failed, ok := last.(wire.RegisterExecutorFailed)
		if !ok {
			return fmt.Errorf("executor %s's last message was not RegisterExecutorFailed: %#v", id, last)
		}
		if failed.Reason != substr {
			return fmt.Errorf("expected reason %q, got %q", substr, failed.Reason)
		}
		return nil
	})

	sc.Step(`^the cluster scheduler receives an offer batch containing executor "([^"]+)" with (\d+) cores$`, func(id string, cores int) error {
		return waitFor(func() bool {
			for _, batch := range b.scheduler.OfferBatches {
				for _, o := range batch {
					if o.ExecutorID == id && o.Cores == cores {
						return true
					}
				}
			}
			return false
		})
	})

	sc.Step(`^the total core count is (\d+)$`, func(n int) error {
		if b.reg.TotalCoreCount() != n {
			return fmt.Errorf("expected total core count %d, got %d", n, b.reg.TotalCoreCount())
		}
		return nil
	})

	sc.Step(`^executor "([^"]+)" reports task "([^"]+)" as FINISHED$`, func(id, taskID string) error {
		return b.coord.StatusUpdateFromPeer(wire.StatusUpdate{ExecutorID: id, TaskID: taskID, State: wire.TaskFinished})
	})

	sc.Step(`^the cluster scheduler receives a status update for task "([^"]+)" with state FINISHED$`, func(taskID string) error {
		return waitFor(func() bool {
			for _, su := range b.scheduler.StatusUpdates {
				if su.TaskID == taskID && su.State == wire.TaskFinished {
					return true
				}
			}
			return false
		})
	})

	sc.Step(`^the cluster scheduler receives a single offer for executor "([^"]+)" with (\d+) cores$`, func(id string, cores int) error {
		return waitFor(func() bool {
			for _, o := range b.scheduler.Offers {
				if o.ExecutorID == id && o.Cores == cores {
					return true
				}
			}
			return false
		})
	})

	sc.Step(`^the transport reports executor "([^"]+)" disconnected$`, func(id string) error {
		return b.coord.NotifyPeerDisconnected(b.addrs[id])
	})

	sc.Step(`^the cluster scheduler is told executor "([^"]+)" was lost$`, func(id string) error {
		return waitFor(func() bool {
			for _, l := range b.scheduler.Lost {
				if l.ExecutorID == id {
					return true
				}
			}
			return false
		})
	})

	sc.Step(`^reviving offers produces no offer for executor "([^"]+)"$`, func(id string) error {
		before := len(b.scheduler.OfferBatches)
		if err := b.coord.ReviveOffers(); err != nil {
			return err
		}
		if err := waitFor(func() bool { return len(b.scheduler.OfferBatches) > before }); err != nil {
			return err
		}
		for _, o := range b.scheduler.OfferBatches[len(b.scheduler.OfferBatches)-1] {
			if o.ExecutorID == id {
				return fmt.Errorf("executor %s unexpectedly received an offer after removal", id)
			}
		}
		return nil
	})

	sc.Step(`^task "([^"]+)" is launched onto executor "([^"]+)"$`, func(taskID, executorID string) error {
		b.pump.Enqueue(wire.TaskDescription{TaskID: taskID, ExecutorID: executorID})
		return nil
	})

	sc.Step(`^executor "([^"]+)" receives launch "([^"]+)" before launch "([^"]+)"$`, func(id, first, second string) error {
		countLaunches := func() int {
			n := 0
			for _, m := range b.peers[id].messages() {
				if _, ok := m.(wire.LaunchTask); ok {
					n++
				}
			}
			return n
		}
		if err := waitFor(func() bool { return countLaunches() >= 2 }); err != nil {
			return err
		}
		var order []string
		for _, m := range b.peers[id].messages() {
			lt, ok := m.(wire.LaunchTask)
			if !ok {
				continue
			}
			order = append(order, lt.Task.TaskID)
		}
		firstIdx, secondIdx := -1, -1
		for i, taskID := range order {
			if taskID == first {
				firstIdx = i
			}
			if taskID == second {
				secondIdx = i
			}
		}
		if firstIdx < 0 || secondIdx < 0 || firstIdx > secondIdx {
			return fmt.Errorf("expected %s before %s, got order %v", first, second, order)
		}
		return nil
	})

	sc.Step(`^the default parallelism is (\d+)$`, func(n int) error {
		got := b.cfg.DefaultParallelismOrFallback(b.reg.TotalCoreCount())
		if got != n {
			return fmt.Errorf("expected default parallelism %d, got %d", n, got)
		}
		return nil
	})
}
