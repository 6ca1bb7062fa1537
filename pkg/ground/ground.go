// Package ground implements the legitimate ground station: it builds
// authenticated command packets and transmits each as one UDP datagram.
package ground

import (
	"context"
	"net"
	"strconv"

	"github.com/pkg/errors"

	"github.com/pzverkov/satcom-uplink/internal/constants"
	"github.com/pzverkov/satcom-uplink/pkg/ccsds"
	"github.com/pzverkov/satcom-uplink/pkg/metrics"
)

// Config configures a Station.
type Config struct {
	// Host and Port locate the bus (default 127.0.0.1:5000).
	Host string
	Port int

	// Key is the shared HMAC key.
	Key []byte

	// GroundStationID is the identity placed in every packet (default GS-ALPHA).
	GroundStationID string

	// Builder options: APID, digest, sequence policy. APID is used as
	// given; 0 is a valid APID.
	APID           int
	Digest         constants.DigestAlgorithm
	SequencePolicy ccsds.SequencePolicy

	Collector *metrics.Collector
	Logger    *metrics.Logger
}

// Station sends commands to the bus over UDP.
type Station struct {
	builder   *ccsds.Builder
	id        string
	target    string
	dialer    net.Dialer
	collector *metrics.Collector
	logger    *metrics.Logger
}

// New creates a Station.
func New(cfg Config) (*Station, error) {
	if cfg.Host == "" {
		cfg.Host = constants.DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = constants.DefaultPort
	}
	if cfg.GroundStationID == "" {
		cfg.GroundStationID = constants.DefaultGroundStationID
	}
	if cfg.Digest == 0 {
		cfg.Digest = constants.DigestHMACSHA256
	}
	if cfg.Collector == nil {
		cfg.Collector = metrics.Global()
	}
	if cfg.Logger == nil {
		cfg.Logger = metrics.GetLogger()
	}

	builder, err := ccsds.NewBuilder(cfg.Key,
		ccsds.WithAPID(cfg.APID),
		ccsds.WithDigest(cfg.Digest),
		ccsds.WithSequencePolicy(cfg.SequencePolicy),
	)
	if err != nil {
		return nil, err
	}

	return &Station{
		builder:   builder,
		id:        cfg.GroundStationID,
		target:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		collector: cfg.Collector,
		logger:    cfg.Logger.Named("ground"),
	}, nil
}

// Target returns the bus address as host:port.
func (s *Station) Target() string {
	return s.target
}

// GroundStationID returns the identity the station claims.
func (s *Station) GroundStationID() string {
	return s.id
}

// Builder returns the station's packet builder.
func (s *Station) Builder() *ccsds.Builder {
	return s.builder
}

// Send builds one packet for command and transmits it. The returned
// metadata carries the sequence count read back from the built header, so it
// matches the packet sent even when other goroutines share the builder.
func (s *Station) Send(ctx context.Context, command string) (ccsds.CommandMetadata, error) {
	ctx, end := metrics.StartSpan(ctx, metrics.SpanSend,
		metrics.WithSpanKind(metrics.SpanKindClient),
		metrics.WithAttributes(metrics.SpanAttributes{
			GroundStationID: s.id,
			Command:         command,
		}.ToMap()),
	)

	meta := s.builder.Describe(command, s.id)
	_, endBuild := metrics.StartSpan(ctx, metrics.SpanBuild)
	packet, err := s.builder.Build(command, s.id)
	endBuild(err)
	if err != nil {
		end(err)
		return meta, err
	}
	meta.SequenceCount = ccsds.DecodePrimaryHeader(packet).SequenceCount

	if err := s.transmit(ctx, packet); err != nil {
		s.collector.RecordSendError()
		end(err)
		return meta, err
	}
	s.collector.RecordPacketSent(len(packet))

	s.logger.Info("command dispatched", metrics.Fields{
		"command":           meta.Command,
		"ground_station_id": meta.GroundStationID,
		"sequence":          meta.SequenceCount,
		"apid":              meta.APID,
		"bytes":             len(packet),
		"target":            s.target,
	})
	end(nil)
	return meta, nil
}

func (s *Station) transmit(ctx context.Context, packet []byte) error {
	conn, err := s.dialer.DialContext(ctx, "udp", s.target)
	if err != nil {
		return errors.Wrapf(err, "ground: dial %s", s.target)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(packet); err != nil {
		return errors.Wrapf(err, "ground: send to %s", s.target)
	}
	return nil
}
