package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"telemetry-rudp-go/source/wire"
)

func TestDeliveryRatioGuardsZeroAndMissingSummary(t *testing.T) {
	r := NewRecorder()
	assert.Equal(t, float64(0), r.Snapshot().DeliveryRatio())

	r.SetSentTotals(0, 0)
	assert.Equal(t, float64(0), r.Snapshot().DeliveryRatio())

	r.RecordReceived(wire.ChannelReliable, 10, 5, time.Now())
	r.RecordSuccess(wire.ChannelReliable)
	r.SetSentTotals(2, 0)
	assert.InDelta(t, 50.0, r.Snapshot().DeliveryRatio(), 0.001)
}

func TestJitterAccumulatesRFC3550(t *testing.T) {
	r := NewRecorder()
	now := time.Now()
	r.RecordReceived(wire.ChannelReliable, 1, 100, now)
	assert.Equal(t, float64(0), r.Snapshot().Jitter)

	r.RecordReceived(wire.ChannelReliable, 1, 116, now) // |116-100|=16, J += (16-0)/16 = 1
	assert.InDelta(t, 1.0, r.Snapshot().Jitter, 0.0001)
}

func TestWriteSummaryNoPanicWithoutSummary(t *testing.T) {
	r := NewRecorder()
	var buf bytes.Buffer
	r.WriteSummary(&buf)
	assert.Contains(t, buf.String(), "unavailable")
}

func TestAverageLatencyMsComputesMean(t *testing.T) {
	r := NewRecorder()
	assert.Equal(t, float64(0), r.Snapshot().Reliable.AverageLatencyMs())

	now := time.Now()
	r.RecordReceived(wire.ChannelReliable, 1, 100, now)
	r.RecordReceived(wire.ChannelReliable, 1, 120, now)
	assert.InDelta(t, 110.0, r.Snapshot().Reliable.AverageLatencyMs(), 0.0001)

	r.RecordReceived(wire.ChannelUnreliable, 1, 50, now)
	assert.InDelta(t, 50.0, r.Snapshot().Unreliable.AverageLatencyMs(), 0.0001)
}

func TestCountersPerChannel(t *testing.T) {
	r := NewRecorder()
	r.RecordDuplicate(wire.ChannelReliable)
	r.RecordOutOfOrder(wire.ChannelReliable)
	r.RecordTimeout(wire.ChannelReliable)
	r.RecordDuplicate(wire.ChannelUnreliable)

	s := r.Snapshot()
	assert.Equal(t, uint64(1), s.Reliable.Duplicates)
	assert.Equal(t, uint64(1), s.Reliable.OutOfOrder)
	assert.Equal(t, uint64(1), s.Reliable.Timeouts)
	assert.Equal(t, uint64(1), s.Unreliable.Duplicates)
}
