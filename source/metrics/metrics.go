// Package metrics implements the per-channel counters, latency samples
// and derived statistics of spec section 4.5: delivery ratio, average
// latency, RFC 3550 jitter, byte throughput and elapsed duration. A
// Recorder owns its
// state single-threadedly relative to the receiver's receive loop
// (spec section 5); its reads tolerate eventual consistency from a
// concurrent reporter, matching the teacher's lock-only-around-shared-
// state discipline in source/protocol/raknet.go's Session.
package metrics

import (
	"fmt"
	"io"
	"sync"
	"time"

	"telemetry-rudp-go/source/wire"
)

// ChannelCounters mirrors spec section 3's per-channel, per-direction
// counter set.
type ChannelCounters struct {
	Received      uint64
	Duplicates    uint64
	OutOfOrder    uint64
	Timeouts      uint64
	BytesReceived uint64

	// Success counts distinct in-window new arrivals only (spec section
	// 4.5's total_reliable_success), which is not the same as Received:
	// Received increments on every arrival including duplicates and
	// out-of-window drops, step 2 of spec section 4.3.
	Success uint64

	// LatencySumMs/LatencyCount accumulate every arrival's one-way
	// latency sample for this channel, mirroring the original
	// implementation's per-channel average (gameNetServer.py's
	// avg_latency_ms: sum(latencies)/len(latencies)). AverageLatencyMs
	// divides the two, guarding the empty case.
	LatencySumMs float64
	LatencyCount uint64
}

// AverageLatencyMs returns the channel's mean one-way latency sample in
// milliseconds, or 0 if no packet has arrived on this channel yet.
func (c ChannelCounters) AverageLatencyMs() float64 {
	if c.LatencyCount == 0 {
		return 0
	}
	return c.LatencySumMs / float64(c.LatencyCount)
}

// Recorder accumulates counters and latency samples for the reliable
// and unreliable channels, plus the per-channel sent totals learned
// from the session summary.
type Recorder struct {
	mu sync.Mutex

	reliable   ChannelCounters
	unreliable ChannelCounters

	// latencies is the reliable channel's ordered latency-sample
	// sequence, used for the RFC 3550 jitter estimate (spec 4.5). The
	// unreliable channel's samples are not kept here; they only feed
	// that channel's LatencySumMs/LatencyCount.
	latencies []float64
	jitter    float64

	firstArrival time.Time
	lastArrival  time.Time

	haveSummary         bool
	totalReliableSent   int
	totalUnreliableSent int
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) counters(ch wire.Channel) *ChannelCounters {
	if ch == wire.ChannelUnreliable {
		return &r.unreliable
	}
	return &r.reliable
}

func (r *Recorder) touchArrival(now time.Time) {
	if r.firstArrival.IsZero() {
		r.firstArrival = now
	}
	r.lastArrival = now
}

// RecordReceived records a successful arrival (new or duplicate) of a
// packet of the given byte length and observed one-way latency.
func (r *Recorder) RecordReceived(ch wire.Channel, bytes int, latencyMs float64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.counters(ch)
	c.Received++
	c.BytesReceived += uint64(bytes)
	c.LatencySumMs += latencyMs
	c.LatencyCount++
	r.touchArrival(now)

	if ch == wire.ChannelReliable {
		r.updateJitter(latencyMs)
	}
}

// updateJitter folds latencyMs into the RFC 3550 smoothed inter-arrival
// jitter estimate: J <- J + (|D_i - D_{i-1}| - J)/16, J_0 = 0, where
// D_i is the i-th latency sample. Must be called with mu held.
func (r *Recorder) updateJitter(latencyMs float64) {
	if len(r.latencies) > 0 {
		prev := r.latencies[len(r.latencies)-1]
		d := latencyMs - prev
		if d < 0 {
			d = -d
		}
		r.jitter += (d - r.jitter) / 16
	}
	r.latencies = append(r.latencies, latencyMs)
}

// RecordSuccess records a distinct in-window new arrival (spec section
// 4.3 step 4, the branch that buffers a packet for the first time) —
// the numerator of the reliable delivery ratio.
func (r *Recorder) RecordSuccess(ch wire.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters(ch).Success++
}

// RecordDuplicate records a reliable-channel duplicate detection (spec
// section 4.3 steps 3 and 5).
func (r *Recorder) RecordDuplicate(ch wire.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters(ch).Duplicates++
}

// RecordOutOfOrder records a reliable-channel packet that buffered
// ahead of the delivery cursor.
func (r *Recorder) RecordOutOfOrder(ch wire.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters(ch).OutOfOrder++
}

// RecordTimeout records a gap-skip event.
func (r *Recorder) RecordTimeout(ch wire.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters(ch).Timeouts++
}

// SetSentTotals records the per-channel totals learned from the
// client's session summary (spec section 4.4).
func (r *Recorder) SetSentTotals(totalReliableSent, totalUnreliableSent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.haveSummary = true
	r.totalReliableSent = totalReliableSent
	r.totalUnreliableSent = totalUnreliableSent
}

// Snapshot is a consistent, lock-free copy of the recorder's state for
// reporting.
type Snapshot struct {
	Reliable            ChannelCounters
	Unreliable          ChannelCounters
	Jitter              float64
	Elapsed             time.Duration
	HaveSummary         bool
	TotalReliableSent   int
	TotalUnreliableSent int
}

// Snapshot returns a point-in-time copy of the recorder's state.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var elapsed time.Duration
	if !r.firstArrival.IsZero() {
		elapsed = r.lastArrival.Sub(r.firstArrival)
	}
	return Snapshot{
		Reliable:            r.reliable,
		Unreliable:          r.unreliable,
		Jitter:              r.jitter,
		Elapsed:             elapsed,
		HaveSummary:         r.haveSummary,
		TotalReliableSent:   r.totalReliableSent,
		TotalUnreliableSent: r.totalUnreliableSent,
	}
}

// DeliveryRatio returns the reliable channel's delivery ratio as a
// percentage: total_reliable_success / total_reliable_sent * 100,
// where total_reliable_success counts distinct in-window new arrivals
// (Success, which the receiver records once per sequence it buffers for
// the first time — unlike Received, which counts every arrival). Guards against
// division by zero and a missing summary per spec section 9.
func (s Snapshot) DeliveryRatio() float64 {
	if !s.HaveSummary || s.TotalReliableSent == 0 {
		return 0
	}
	return float64(s.Reliable.Success) / float64(s.TotalReliableSent) * 100
}

// Throughput returns the aggregate byte rate (both channels combined)
// since the first packet arrived.
func (s Snapshot) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	total := s.Reliable.BytesReceived + s.Unreliable.BytesReceived
	return float64(total) / s.Elapsed.Seconds()
}

// WriteSummary writes the human-facing metric dump spec section 1 and
// 4.5 call for — average latency, delivery ratio, jitter, byte
// throughput and elapsed duration — in plain text.
func (r *Recorder) WriteSummary(w io.Writer) {
	s := r.Snapshot()
	fmt.Fprintf(w, "elapsed: %s\n", s.Elapsed)
	fmt.Fprintf(w, "reliable:   received=%d duplicates=%d out_of_order=%d timeouts=%d bytes=%d avg_latency_ms=%.2f\n",
		s.Reliable.Received, s.Reliable.Duplicates, s.Reliable.OutOfOrder, s.Reliable.Timeouts, s.Reliable.BytesReceived, s.Reliable.AverageLatencyMs())
	fmt.Fprintf(w, "unreliable: received=%d duplicates=%d out_of_order=%d timeouts=%d bytes=%d avg_latency_ms=%.2f\n",
		s.Unreliable.Received, s.Unreliable.Duplicates, s.Unreliable.OutOfOrder, s.Unreliable.Timeouts, s.Unreliable.BytesReceived, s.Unreliable.AverageLatencyMs())
	fmt.Fprintf(w, "jitter_ms: %.3f\n", s.Jitter)
	fmt.Fprintf(w, "throughput_bytes_per_sec: %.2f\n", s.Throughput())
	if s.HaveSummary {
		fmt.Fprintf(w, "delivery_ratio_pct: %.2f (sent reliable=%d unreliable=%d)\n",
			s.DeliveryRatio(), s.TotalReliableSent, s.TotalUnreliableSent)
	} else {
		fmt.Fprintln(w, "delivery_ratio_pct: unavailable (no session summary received)")
	}
}
