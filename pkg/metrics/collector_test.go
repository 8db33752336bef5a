package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcompute/schedulerbackend/pkg/registry"
	"github.com/fluxcompute/schedulerbackend/pkg/wire"
)

type fakePeer struct{ addr string }

func (p *fakePeer) Address() string    { return p.addr }
func (p *fakePeer) Send(msg any) error { return nil }

func TestCollectorCollectPublishesAggregateGauges(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Insert(&registry.Record{
		ExecutorID: "exec-1",
		HostPort:   wire.HostPort{Host: "10.0.0.1", Port: 7000},
		Address:    "10.0.0.1:7000",
		Peer:       &fakePeer{addr: "10.0.0.1:7000"},
		Cores:      4,
	}))
	reg.AdjustFree("exec-1", -1)

	c := NewCollector(reg)
	c.collect()

	assert.Equal(t, float64(1), testutil.ToFloat64(ExecutorsTotal))
	assert.Equal(t, float64(4), testutil.ToFloat64(TotalCoreCount))
	assert.Equal(t, float64(3), testutil.ToFloat64(FreeCoreCount))
}

func TestCollectorStartAndStop(t *testing.T) {
	reg := registry.New()
	c := NewCollector(reg)
	c.Start()
	time.Sleep(10 * time.Millisecond)
	assert.NotPanics(t, func() { c.Stop() })
}
