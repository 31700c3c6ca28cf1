package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOperationCounters(t *testing.T) {
	m := New()

	m.Operation("transfer", "ok")
	m.Operation("transfer", "ok")
	m.Operation("transfer", "self_transfer")
	m.CoinsMoved("transfer", 150)
	m.CoinsMoved("transfer", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("transfer", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("transfer", "self_transfer")))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.coinsMoved.WithLabelValues("transfer")))
}

func TestCommandAndLimiterCounters(t *testing.T) {
	m := New()

	m.Command("pay", "ok", 20*time.Millisecond)
	m.RateLimited("rob")
	m.Purged(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("pay", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.commandDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited.WithLabelValues("rob")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.purged))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Operation("daily", "claimed")
		m.CoinsMoved("daily", 10)
		m.Command("daily", "ok", time.Second)
		m.RateLimited("daily")
		m.Purged(1)
	})
}

func TestMustRegisterExposesExternalCollectors(t *testing.T) {
	m := New()
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: "db_pool_total_conns", Help: "test"}, func() float64 { return 4 })

	m.MustRegister(g)

	count, err := testutil.GatherAndCount(m.Registry(), "db_pool_total_conns")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Panics(t, func() { m.MustRegister(g) })

	var empty *Metrics
	assert.NotPanics(t, func() { empty.MustRegister(g) })
}
