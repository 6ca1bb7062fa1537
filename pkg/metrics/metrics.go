package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector aggregates metrics from the bus, firewall and senders.
type Collector struct {
	// Receive path
	datagramsReceived atomic.Uint64
	bytesReceived     atomic.Uint64
	rateLimited       atomic.Uint64
	readErrors        atomic.Uint64

	// Firewall verdicts
	decodeFailures   atomic.Uint64
	unauthorized     atomic.Uint64
	authFailures     atomic.Uint64
	commandsAccepted atomic.Uint64

	decodeMu     sync.Mutex
	decodeByKind map[string]uint64

	// Execution
	commandsExecuted atomic.Uint64
	handlerErrors    atomic.Uint64

	// Send path
	packetsSent atomic.Uint64
	bytesSent   atomic.Uint64
	sendErrors  atomic.Uint64

	// Performance histograms
	inspectLatency *Histogram

	// Creation time for uptime tracking
	createdAt time.Time

	// Labels for this collector instance
	labels Labels
}

// Labels represents key-value pairs for metric labeling.
type Labels map[string]string

// NewCollector creates a new metrics collector.
func NewCollector(labels Labels) *Collector {
	if labels == nil {
		labels = make(Labels)
	}

	return &Collector{
		decodeByKind:   make(map[string]uint64),
		inspectLatency: NewHistogram(LatencyBuckets),
		createdAt:      time.Now(),
		labels:         labels,
	}
}

// LatencyBuckets for packet inspection (microseconds).
var LatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}

// --- Receive Metrics ---

// RecordDatagram counts one received datagram of n bytes.
func (c *Collector) RecordDatagram(n int) {
	c.datagramsReceived.Add(1)
	c.bytesReceived.Add(uint64(n))
}

// RecordRateLimited counts a datagram dropped before inspection.
func (c *Collector) RecordRateLimited() {
	c.rateLimited.Add(1)
}

// RecordReadError counts a failed socket read.
func (c *Collector) RecordReadError() {
	c.readErrors.Add(1)
}

// --- Firewall Metrics ---

// RecordDecodeFailure counts a structurally invalid packet.
// kind is the validation step that failed.
func (c *Collector) RecordDecodeFailure(kind string) {
	c.decodeFailures.Add(1)
	c.decodeMu.Lock()
	c.decodeByKind[kind]++
	c.decodeMu.Unlock()
}

// RecordUnauthorized counts a packet from a ground station not on the allow-list.
func (c *Collector) RecordUnauthorized() {
	c.unauthorized.Add(1)
}

// RecordAuthFailure counts a packet whose tag did not verify.
func (c *Collector) RecordAuthFailure() {
	c.authFailures.Add(1)
}

// RecordAccepted counts a packet that passed every check.
func (c *Collector) RecordAccepted() {
	c.commandsAccepted.Add(1)
}

// RecordInspectLatency records how long one inspection took.
func (c *Collector) RecordInspectLatency(d time.Duration) {
	c.inspectLatency.Observe(float64(d.Microseconds()))
}

// --- Execution Metrics ---

// RecordExecuted counts a command handed to the command handler.
func (c *Collector) RecordExecuted() {
	c.commandsExecuted.Add(1)
}

// RecordHandlerError counts a command handler failure.
func (c *Collector) RecordHandlerError() {
	c.handlerErrors.Add(1)
}

// --- Send Metrics ---

// RecordPacketSent counts one transmitted packet of n bytes.
func (c *Collector) RecordPacketSent(n int) {
	c.packetsSent.Add(1)
	c.bytesSent.Add(uint64(n))
}

// RecordSendError counts a failed transmission.
func (c *Collector) RecordSendError() {
	c.sendErrors.Add(1)
}

// --- Snapshot ---

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	// Timestamp of the snapshot
	Timestamp time.Time

	// Uptime since collector creation
	Uptime time.Duration

	// Receive path
	DatagramsReceived uint64
	BytesReceived     uint64
	RateLimited       uint64
	ReadErrors        uint64

	// Firewall verdicts
	DecodeFailures       uint64
	DecodeFailuresByKind map[string]uint64
	Unauthorized         uint64
	AuthFailures         uint64
	CommandsAccepted     uint64

	// Execution
	CommandsExecuted uint64
	HandlerErrors    uint64

	// Send path
	PacketsSent uint64
	BytesSent   uint64
	SendErrors  uint64

	// Histogram summaries
	InspectLatency HistogramSummary

	// Labels
	Labels Labels
}

// Rejected returns the number of packets rejected by the firewall.
func (s Snapshot) Rejected() uint64 {
	return s.DecodeFailures + s.Unauthorized + s.AuthFailures
}

// DecodeKinds returns the keys of DecodeFailuresByKind, sorted.
func (s Snapshot) DecodeKinds() []string {
	kinds := make([]string, 0, len(s.DecodeFailuresByKind))
	for k := range s.DecodeFailuresByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.decodeMu.Lock()
	byKind := make(map[string]uint64, len(c.decodeByKind))
	for k, v := range c.decodeByKind {
		byKind[k] = v
	}
	c.decodeMu.Unlock()

	return Snapshot{
		Timestamp:            time.Now(),
		Uptime:               time.Since(c.createdAt),
		DatagramsReceived:    c.datagramsReceived.Load(),
		BytesReceived:        c.bytesReceived.Load(),
		RateLimited:          c.rateLimited.Load(),
		ReadErrors:           c.readErrors.Load(),
		DecodeFailures:       c.decodeFailures.Load(),
		DecodeFailuresByKind: byKind,
		Unauthorized:         c.unauthorized.Load(),
		AuthFailures:         c.authFailures.Load(),
		CommandsAccepted:     c.commandsAccepted.Load(),
		CommandsExecuted:     c.commandsExecuted.Load(),
		HandlerErrors:        c.handlerErrors.Load(),
		PacketsSent:          c.packetsSent.Load(),
		BytesSent:            c.bytesSent.Load(),
		SendErrors:           c.sendErrors.Load(),
		InspectLatency:       c.inspectLatency.Summary(),
		Labels:               c.labels,
	}
}

// Reset clears all metrics (useful for testing).
func (c *Collector) Reset() {
	c.datagramsReceived.Store(0)
	c.bytesReceived.Store(0)
	c.rateLimited.Store(0)
	c.readErrors.Store(0)
	c.decodeFailures.Store(0)
	c.unauthorized.Store(0)
	c.authFailures.Store(0)
	c.commandsAccepted.Store(0)
	c.commandsExecuted.Store(0)
	c.handlerErrors.Store(0)
	c.packetsSent.Store(0)
	c.bytesSent.Store(0)
	c.sendErrors.Store(0)
	c.decodeMu.Lock()
	c.decodeByKind = make(map[string]uint64)
	c.decodeMu.Unlock()
	c.inspectLatency.Reset()
	c.createdAt = time.Now()
}

// --- Global Collector ---

var (
	globalCollector     *Collector
	globalCollectorOnce sync.Once
)

// Global returns the global metrics collector.
// Creates one with default settings if not already initialized.
func Global() *Collector {
	globalCollectorOnce.Do(func() {
		if globalCollector == nil {
			globalCollector = NewCollector(Labels{"instance": "default"})
		}
	})
	return globalCollector
}

// SetGlobal sets the global metrics collector.
// Should be called during initialization before any metrics are recorded.
func SetGlobal(c *Collector) {
	globalCollectorOnce.Do(func() {})
	globalCollector = c
}
