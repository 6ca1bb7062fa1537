// Package bus implements the satellite side of the uplink: a UDP listener
// that passes every datagram through the firewall and hands accepted
// commands to a CommandHandler.
//
// Datagrams are processed one at a time by default. With Workers > 1 they
// are fanned out to a bounded worker pool and handled in no particular
// order. An optional per-source token bucket drops floods before they reach
// the firewall.
package bus

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/pzverkov/satcom-uplink/internal/constants"
	qerrors "github.com/pzverkov/satcom-uplink/internal/errors"
	"github.com/pzverkov/satcom-uplink/pkg/firewall"
	"github.com/pzverkov/satcom-uplink/pkg/metrics"
)

// ErrNoFirewall is returned by New when Config.Firewall is nil.
var ErrNoFirewall = qerrors.ErrNoFirewall

// ErrDatagramOversize ends the span of a datagram longer than MaxDatagramSize.
var ErrDatagramOversize = qerrors.ErrDatagramOversize

// Inspector decides whether a datagram may execute. *firewall.Firewall
// implements it.
type Inspector interface {
	Inspect(raw []byte, source string) firewall.Decision
}

// Config configures a Bus.
type Config struct {
	// Host and Port are the bind address for ListenAndServe
	// (default 127.0.0.1:5000).
	Host string
	Port int

	// Firewall inspects every datagram. Required.
	Firewall Inspector

	// Handler executes accepted commands (default LogHandler).
	Handler CommandHandler

	// Workers is the number of concurrent datagram handlers (default 1).
	Workers int

	// MaxDatagramSize is the longest datagram the bus accepts (default
	// constants.MaxDatagramSize, the largest packet). Longer datagrams are
	// dropped before inspection and counted as decode failures of kind
	// "oversize".
	MaxDatagramSize int

	// RateLimit configures per-source limiting (disabled by default).
	RateLimit RateLimitConfig

	// RateLimitObserver is notified of dropped datagrams
	// (default metrics.RateLimitObserver on Collector).
	RateLimitObserver RateLimitObserver

	// Collector receives bus and execution counters (default metrics.Global()).
	Collector *metrics.Collector

	// Logger is the bus logger (default metrics.GetLogger()).
	Logger *metrics.Logger
}

// Bus is the uplink listener.
type Bus struct {
	cfg       Config
	handler   CommandHandler
	limiter   *SourceLimiter
	observer  RateLimitObserver
	collector *metrics.Collector
	logger    *metrics.Logger
	buffers   *bufferPool

	mu   sync.RWMutex
	addr net.Addr
}

// New validates cfg, applies defaults and returns a Bus.
func New(cfg Config) (*Bus, error) {
	if cfg.Firewall == nil {
		return nil, ErrNoFirewall
	}
	if cfg.Host == "" {
		cfg.Host = constants.DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = constants.DefaultPort
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, errors.Errorf("bus: port %d out of range", cfg.Port)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxDatagramSize <= 0 {
		cfg.MaxDatagramSize = constants.MaxDatagramSize
	}
	if cfg.Collector == nil {
		cfg.Collector = metrics.Global()
	}
	if cfg.Logger == nil {
		cfg.Logger = metrics.GetLogger()
	}

	logger := cfg.Logger.Named("bus")

	handler := cfg.Handler
	if handler == nil {
		handler = LogHandler{Logger: logger}
	}

	b := &Bus{
		cfg:       cfg,
		handler:   handler,
		collector: cfg.Collector,
		logger:    logger,
		buffers:   newBufferPool(cfg.MaxDatagramSize + 1), // one spare byte exposes truncation
	}

	if cfg.RateLimit.Enabled() {
		b.limiter = NewSourceLimiter(cfg.RateLimit)
		b.observer = cfg.RateLimitObserver
		if b.observer == nil {
			b.observer = metrics.NewRateLimitObserver(cfg.Collector, cfg.Logger)
		}
	}

	return b, nil
}

// Address returns the configured bind address as host:port.
func (b *Bus) Address() string {
	return net.JoinHostPort(b.cfg.Host, strconv.Itoa(b.cfg.Port))
}

// Addr returns the bound socket address, or nil before Serve starts.
func (b *Bus) Addr() net.Addr {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.addr
}

// ListenAndServe binds the configured UDP address and serves until ctx is
// cancelled. A bind failure is returned immediately.
func (b *Bus) ListenAndServe(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", b.Address())
	if err != nil {
		return errors.Wrapf(err, "bus: resolve %s", b.Address())
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return errors.Wrapf(err, "bus: bind %s", b.Address())
	}
	defer conn.Close()

	return b.Serve(ctx, conn)
}

// Serve reads datagrams from conn until ctx is cancelled or conn is closed,
// in which case it returns nil. Any other read error stops the bus and is
// returned. Serve does not close conn.
func (b *Bus) Serve(ctx context.Context, conn net.PacketConn) error {
	b.mu.Lock()
	b.addr = conn.LocalAddr()
	b.mu.Unlock()

	// Unblock the pending read on cancellation.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	b.logger.Info("satellite bus listening", metrics.Fields{
		"addr":     conn.LocalAddr().String(),
		"workers":  b.cfg.Workers,
		"protocol": constants.ProtocolName,
	})

	var (
		jobs chan datagram
		wg   sync.WaitGroup
	)
	if b.cfg.Workers > 1 {
		jobs = make(chan datagram, b.cfg.Workers)
		for i := 0; i < b.cfg.Workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for d := range jobs {
					b.process(ctx, d)
				}
			}()
		}
	}
	drain := func() {
		if jobs != nil {
			close(jobs)
			wg.Wait()
		}
	}

	for {
		buf := b.buffers.get()
		n, src, err := conn.ReadFrom(*buf)
		if err != nil {
			b.buffers.put(buf)
			drain()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				b.logger.Info("satellite bus stopped")
				return nil
			}
			b.collector.RecordReadError()
			return errors.Wrap(err, "bus: read")
		}

		d := datagram{buf: buf, n: n, src: src}
		if jobs == nil {
			b.process(ctx, d)
			continue
		}
		jobs <- d
	}
}

type datagram struct {
	buf *[]byte
	n   int
	src net.Addr
}

func (b *Bus) process(ctx context.Context, d datagram) {
	defer b.buffers.put(d.buf)
	if d.n > b.cfg.MaxDatagramSize {
		b.rejectOversize(ctx, d.n, d.src)
		return
	}
	b.HandleDatagram(ctx, (*d.buf)[:d.n], d.src)
}

// kindOversize labels datagrams the socket truncated.
const kindOversize = "oversize"

func (b *Bus) rejectOversize(ctx context.Context, n int, src net.Addr) {
	source := src.String()
	b.collector.RecordDatagram(n)
	b.collector.RecordDecodeFailure(kindOversize)

	_, end := metrics.StartSpan(ctx, metrics.SpanDatagram,
		metrics.WithSpanKind(metrics.SpanKindServer),
		metrics.WithAttributes(metrics.SpanAttributes{Source: source, Bytes: n}.ToMap()),
	)
	end(ErrDatagramOversize)

	b.logger.Warn("datagram rejected: exceeds receive buffer", metrics.Fields{
		"source": source,
		"limit":  b.cfg.MaxDatagramSize,
	})
}

// HandleDatagram runs one datagram through rate limiting, the firewall and,
// if accepted, the command handler. It reports whether the command executed.
// raw is not retained.
func (b *Bus) HandleDatagram(ctx context.Context, raw []byte, src net.Addr) bool {
	source := src.String()
	b.collector.RecordDatagram(len(raw))

	ctx, end := metrics.StartSpan(ctx, metrics.SpanDatagram,
		metrics.WithSpanKind(metrics.SpanKindServer),
		metrics.WithAttributes(metrics.SpanAttributes{Source: source, Bytes: len(raw)}.ToMap()),
	)

	if b.limiter != nil && !b.limiter.Allow(sourceKey(src)) {
		b.observer.OnRateLimited(source)
		end(errors.New("rate limited"))
		return false
	}

	_, endInspect := metrics.StartSpan(ctx, metrics.SpanInspect)
	start := time.Now()
	decision := b.cfg.Firewall.Inspect(raw, source)
	b.collector.RecordInspectLatency(time.Since(start))

	if !decision.Accepted {
		rejected := errors.Errorf("%s: %s", decision.Verdict, decision.Reason)
		endInspect(rejected)
		end(rejected)
		return false
	}
	endInspect(nil)

	err := b.execute(ctx, decision, source)
	end(err)
	return err == nil
}

func (b *Bus) execute(ctx context.Context, d firewall.Decision, source string) error {
	_, end := metrics.StartSpan(ctx, metrics.SpanExecute,
		metrics.WithAttributes(metrics.SpanAttributes{
			GroundStationID: d.Packet.GroundStationID,
			Command:         d.Packet.Command,
			SequenceCount:   int(d.Packet.SequenceCount),
		}.ToMap()),
	)

	err := b.handler.Execute(ctx, d.Packet, source)
	end(err)
	if err != nil {
		b.collector.RecordHandlerError()
		b.logger.Error("command handler failed", metrics.Fields{
			"command": d.Packet.Command,
			"source":  source,
			"error":   err.Error(),
		})
		return err
	}
	b.collector.RecordExecuted()
	return nil
}
