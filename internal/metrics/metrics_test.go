package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordRequest_CountsTotalAndFailed(t *testing.T) {
	m := New()
	m.RecordRequest(false)
	m.RecordRequest(true)
	m.RecordRequest(true)

	snap := m.Snapshot()
	assert.Equal(t, uint64(3), snap.RequestsTotal)
	assert.Equal(t, uint64(2), snap.RequestsFailed)
}

func TestPercentile_KnownDistribution(t *testing.T) {
	m := New()
	for i := 1; i <= 100; i++ {
		m.RecordLatency(float64(i))
	}
	assert.Equal(t, 50.0, m.Percentile(0.50))
	assert.Equal(t, 99.0, m.Percentile(0.99))
}

func TestPercentile_EmptyReservoir(t *testing.T) {
	m := New()
	assert.Equal(t, 0.0, m.Percentile(0.50))
}

func TestRecordLatency_DrainsOnOverflow(t *testing.T) {
	m := New()
	for i := 0; i < reservoirCap+1; i++ {
		m.RecordLatency(float64(i))
	}
	m.mu.Lock()
	n := len(m.reservoir)
	m.mu.Unlock()
	assert.LessOrEqual(t, n, reservoirCap)
}

func TestBytesServed_Accumulates(t *testing.T) {
	m := New()
	m.RecordBytesServed(10)
	m.RecordBytesServed(22)
	assert.Equal(t, uint64(32), m.Snapshot().BytesServed)
}
