package bus

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pzverkov/satcom-uplink/internal/constants"
	"github.com/pzverkov/satcom-uplink/pkg/ccsds"
	"github.com/pzverkov/satcom-uplink/pkg/firewall"
	"github.com/pzverkov/satcom-uplink/pkg/metrics"
)

var testKey = []byte("integration-test-key")

// recorder is a CommandHandler that remembers what it executed.
type recorder struct {
	mu       sync.Mutex
	commands []string
	done     chan string
	err      error
}

func newRecorder() *recorder {
	return &recorder{done: make(chan string, 64)}
}

func (r *recorder) Execute(_ context.Context, p *ccsds.ParsedPacket, _ string) error {
	r.mu.Lock()
	r.commands = append(r.commands, p.Command)
	r.mu.Unlock()
	r.done <- p.Command
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commands)
}

type rateCapture struct {
	mu      sync.Mutex
	sources []string
}

func (c *rateCapture) OnRateLimited(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, source)
}

func newTestFirewall(t *testing.T) *firewall.Firewall {
	t.Helper()
	fw, err := firewall.New(firewall.Config{
		Key:                   testKey,
		AllowedGroundStations: []string{"GS-ALPHA"},
	})
	require.NoError(t, err)
	return fw
}

func newTestBus(t *testing.T, mutate func(*Config)) (*Bus, *recorder, *metrics.Collector) {
	t.Helper()
	rec := newRecorder()
	collector := metrics.NewCollector(nil)
	cfg := Config{
		Firewall:  newTestFirewall(t),
		Handler:   rec,
		Collector: collector,
		Logger:    metrics.NullLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	b, err := New(cfg)
	require.NoError(t, err)
	return b, rec, collector
}

func buildPacket(t *testing.T, key []byte, command, groundID string) []byte {
	t.Helper()
	builder, err := ccsds.NewBuilder(key)
	require.NoError(t, err)
	packet, err := builder.Build(command, groundID)
	require.NoError(t, err)
	return packet
}

var testSource = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}

func TestNewRequiresFirewall(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoFirewall)
}

func TestNewDefaults(t *testing.T) {
	b, _, _ := newTestBus(t, nil)

	assert.Equal(t, "127.0.0.1:5000", b.Address())
	assert.Equal(t, 1, b.cfg.Workers)
	assert.Equal(t, constants.MaxPacketSize, b.cfg.MaxDatagramSize)
	assert.Nil(t, b.limiter)
	assert.Nil(t, b.Addr())
}

func TestNewRejectsBadPort(t *testing.T) {
	_, err := New(Config{Firewall: newTestFirewall(t), Port: 70000})
	assert.Error(t, err)
}

func TestHandleDatagramAccepted(t *testing.T) {
	b, rec, collector := newTestBus(t, nil)

	packet := buildPacket(t, testKey, "CMD: ORIENT +10", "GS-ALPHA")
	assert.True(t, b.HandleDatagram(context.Background(), packet, testSource))

	assert.Equal(t, []string{"CMD: ORIENT +10"}, rec.commands)
	snap := collector.Snapshot()
	assert.Equal(t, uint64(1), snap.DatagramsReceived)
	assert.Equal(t, uint64(len(packet)), snap.BytesReceived)
	assert.Equal(t, uint64(1), snap.CommandsExecuted)
	assert.Equal(t, uint64(1), snap.InspectLatency.Count)
}

func TestHandleDatagramRejected(t *testing.T) {
	b, rec, collector := newTestBus(t, nil)

	tests := map[string][]byte{
		"spoofed":      buildPacket(t, []byte("attacker-chosen-key!"), "CMD: DEORBIT", "GS-ALPHA"),
		"unauthorized": buildPacket(t, testKey, "CMD: DEORBIT", "GS-EVIL"),
		"malformed":    make([]byte, 24),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			assert.False(t, b.HandleDatagram(context.Background(), raw, testSource))
		})
	}

	assert.Zero(t, rec.count())
	snap := collector.Snapshot()
	assert.Equal(t, uint64(3), snap.DatagramsReceived)
	assert.Zero(t, snap.CommandsExecuted)
}

func TestHandleDatagramHandlerError(t *testing.T) {
	b, rec, collector := newTestBus(t, nil)
	rec.err = errors.New("actuator offline")

	packet := buildPacket(t, testKey, "CMD: ORIENT +10", "GS-ALPHA")
	assert.False(t, b.HandleDatagram(context.Background(), packet, testSource))

	snap := collector.Snapshot()
	assert.Equal(t, uint64(1), snap.HandlerErrors)
	assert.Zero(t, snap.CommandsExecuted)
}

func TestHandleDatagramSpans(t *testing.T) {
	tracer := metrics.NewSimpleTracer()
	metrics.SetTracer(tracer)
	defer metrics.SetTracer(metrics.NoOpTracer{})

	b, _, _ := newTestBus(t, nil)
	b.HandleDatagram(context.Background(), buildPacket(t, testKey, "PING", "GS-ALPHA"), testSource)
	b.HandleDatagram(context.Background(), make([]byte, 24), testSource)

	var datagrams, inspects, executes, failed int
	roots := make(map[string]bool)
	for _, s := range tracer.Spans() {
		switch s.Name {
		case metrics.SpanDatagram:
			datagrams++
			roots[s.SpanID] = true
			if s.Error != nil {
				failed++
			}
		case metrics.SpanInspect:
			inspects++
		case metrics.SpanExecute:
			executes++
		}
	}
	assert.Equal(t, 2, datagrams)
	assert.Equal(t, 2, inspects)
	assert.Equal(t, 1, executes)
	assert.Equal(t, 1, failed)

	for _, s := range tracer.Spans() {
		if s.Name == metrics.SpanInspect || s.Name == metrics.SpanExecute {
			assert.True(t, roots[s.ParentID], "%s should be a child of a datagram span", s.Name)
		}
	}
}

func TestRateLimitDropsFlood(t *testing.T) {
	obs := &rateCapture{}
	b, rec, _ := newTestBus(t, func(c *Config) {
		c.RateLimit = RateLimitConfig{PerSource: 0.001, Burst: 2}
		c.RateLimitObserver = obs
	})

	packet := buildPacket(t, testKey, "PING", "GS-ALPHA")
	for i := 0; i < 5; i++ {
		b.HandleDatagram(context.Background(), packet, testSource)
	}

	assert.Equal(t, 2, rec.count())
	assert.Len(t, obs.sources, 3)
	assert.Equal(t, testSource.String(), obs.sources[0])

	// Another source has its own bucket.
	other := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 2), Port: 40000}
	assert.True(t, b.HandleDatagram(context.Background(), packet, other))
}

func TestRateLimitDefaultObserverCounts(t *testing.T) {
	b, _, collector := newTestBus(t, func(c *Config) {
		c.RateLimit = RateLimitConfig{PerSource: 0.001, Burst: 1}
	})

	packet := buildPacket(t, testKey, "PING", "GS-ALPHA")
	b.HandleDatagram(context.Background(), packet, testSource)
	b.HandleDatagram(context.Background(), packet, testSource)

	assert.Equal(t, uint64(1), collector.Snapshot().RateLimited)
}

func listenLoopback(t *testing.T) net.PacketConn {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, to net.Addr, packets ...[]byte) {
	t.Helper()
	client, err := net.Dial("udp", to.String())
	require.NoError(t, err)
	defer client.Close()
	for _, p := range packets {
		_, err := client.Write(p)
		require.NoError(t, err)
	}
}

func waitFor(t *testing.T, rec *recorder, n int) []string {
	t.Helper()
	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case c := <-rec.done:
			got = append(got, c)
		case <-timeout:
			t.Fatalf("executed %d of %d commands before timeout", len(got), n)
		}
	}
	return got
}

func TestServeUDP(t *testing.T) {
	b, rec, _ := newTestBus(t, nil)
	conn := listenLoopback(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Serve(ctx, conn) }()

	send(t, conn.LocalAddr(),
		make([]byte, 24),
		buildPacket(t, testKey, "CMD: ORIENT +10", "GS-ALPHA"),
	)
	assert.Equal(t, []string{"CMD: ORIENT +10"}, waitFor(t, rec, 1))
	assert.Equal(t, conn.LocalAddr().String(), b.Addr().String())

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeRejectsOversizeDatagram(t *testing.T) {
	fits := buildPacket(t, testKey, "PING", "GS-ALPHA")
	tooLong := buildPacket(t, testKey, "PING "+strings.Repeat("X", 100), "GS-ALPHA")

	tracer := metrics.NewSimpleTracer()
	metrics.SetTracer(tracer)
	defer metrics.SetTracer(nil)

	b, rec, collector := newTestBus(t, func(c *Config) { c.MaxDatagramSize = len(fits) })
	conn := listenLoopback(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- b.Serve(ctx, conn) }()

	send(t, conn.LocalAddr(), tooLong, fits)
	assert.Equal(t, []string{"PING"}, waitFor(t, rec, 1))

	snap := collector.Snapshot()
	assert.Equal(t, uint64(2), snap.DatagramsReceived)
	assert.Equal(t, uint64(1), snap.DecodeFailuresByKind["oversize"])
	assert.Equal(t, 1, rec.count())

	var oversize int
	for _, span := range tracer.Spans() {
		if span.Name == metrics.SpanDatagram && errors.Is(span.Error, ErrDatagramOversize) {
			oversize++
		}
	}
	assert.Equal(t, 1, oversize)

	cancel()
	assert.NoError(t, <-errCh)
}

func TestServeWorkers(t *testing.T) {
	b, rec, _ := newTestBus(t, func(c *Config) { c.Workers = 4 })
	conn := listenLoopback(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- b.Serve(ctx, conn) }()

	builder, err := ccsds.NewBuilder(testKey)
	require.NoError(t, err)
	var packets [][]byte
	for i := 0; i < 20; i++ {
		p, err := builder.Build("PING", "GS-ALPHA")
		require.NoError(t, err)
		packets = append(packets, p)
	}
	send(t, conn.LocalAddr(), packets...)

	assert.Len(t, waitFor(t, rec, 20), 20)

	cancel()
	assert.NoError(t, <-errCh)
}

func TestServeClosedConnReturnsNil(t *testing.T) {
	b, _, _ := newTestBus(t, nil)
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- b.Serve(context.Background(), conn) }()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, conn.Close())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after close")
	}
}

func TestServeCancelledBeforeStart(t *testing.T) {
	b, _, _ := newTestBus(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, b.Serve(ctx, listenLoopback(t)))
}

func TestListenAndServeBindError(t *testing.T) {
	taken := listenLoopback(t)
	port := taken.LocalAddr().(*net.UDPAddr).Port

	b, _, _ := newTestBus(t, func(c *Config) { c.Port = port })
	err := b.ListenAndServe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus: bind")
}

func TestListenAndServeResolveError(t *testing.T) {
	b, _, _ := newTestBus(t, func(c *Config) { c.Host = "host.invalid." })
	err := b.ListenAndServe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus: resolve")
}

func TestLogHandler(t *testing.T) {
	var buf syncBuffer
	h := LogHandler{Logger: metrics.TestLogger(&buf)}
	packet, err := ccsds.Parse(buildPacket(t, testKey, "CMD: ORIENT +10", "GS-ALPHA"))
	require.NoError(t, err)

	require.NoError(t, h.Execute(context.Background(), packet, "127.0.0.1:1"))
	assert.Contains(t, buf.String(), "executing command")
	assert.Contains(t, buf.String(), `command="CMD: ORIENT +10"`)
	assert.Contains(t, buf.String(), "ground_station_id=GS-ALPHA")
}

func TestHandlerFunc(t *testing.T) {
	called := false
	h := HandlerFunc(func(context.Context, *ccsds.ParsedPacket, string) error {
		called = true
		return nil
	})
	require.NoError(t, h.Execute(context.Background(), &ccsds.ParsedPacket{}, ""))
	assert.True(t, called)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
