package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordEcho()
	m.RecordEcho()
	m.RecordReady()
	m.RecordDropped()
	m.RecordDelivery("post", "ok")
	m.RecordRequest("read", "OK", time.Millisecond)
	m.RecordRetry()
	m.RecordQuorum("agreed")
	m.UpdateState(2, 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EchoesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReadiesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DroppedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("post", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("read", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuorumResultsTotal.WithLabelValues("agreed")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Announcements))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordEcho()
		m.RecordReady()
		m.RecordDropped()
		m.RecordDelivery("post", "ok")
		m.RecordRequest("read", "OK", time.Second)
		m.RecordRetry()
		m.RecordQuorum("agreed")
		m.UpdateState(1, 1)
	})
}
