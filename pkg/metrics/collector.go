package metrics

import (
	"time"

	"github.com/fluxcompute/schedulerbackend/pkg/registry"
)

// Collector periodically samples the executor registry and publishes the
// aggregate gauges. Per-event counters (registrations, offers, launches)
// are incremented at the call site instead of here, since polling cannot
// observe events between ticks.
type Collector struct {
	reg    *registry.Registry
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over reg.
func NewCollector(reg *registry.Registry) *Collector {
	return &Collector{
		reg:    reg,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15-second tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	snapshots := c.reg.Snapshots()

	ExecutorsTotal.Set(float64(len(snapshots)))
	TotalCoreCount.Set(float64(c.reg.TotalCoreCount()))

	free := 0
	for _, s := range snapshots {
		free += s.FreeCores
	}
	FreeCoreCount.Set(float64(free))
}
