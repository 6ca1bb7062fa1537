// Package rogue implements an adversarial transmitter for exercising the
// firewall: spoofed packets signed with a key the bus does not know, random
// junk, and byte-for-byte replays of captured traffic.
package rogue

import (
	"context"
	"net"
	"strconv"

	"github.com/pkg/errors"

	"github.com/pzverkov/satcom-uplink/internal/constants"
	"github.com/pzverkov/satcom-uplink/pkg/ccsds"
	"github.com/pzverkov/satcom-uplink/pkg/crypto"
	"github.com/pzverkov/satcom-uplink/pkg/metrics"
)

// spoofKeySize is the length of the random key used for spoofed packets.
const spoofKeySize = 32

// Transmitter sends attack traffic to the bus.
type Transmitter struct {
	target string
	dialer net.Dialer
	logger *metrics.Logger
}

// New creates a Transmitter aimed at host:port. Empty values fall back to
// the bus defaults.
func New(host string, port int, logger *metrics.Logger) *Transmitter {
	if host == "" {
		host = constants.DefaultHost
	}
	if port == 0 {
		port = constants.DefaultPort
	}
	if logger == nil {
		logger = metrics.GetLogger()
	}
	return &Transmitter{
		target: net.JoinHostPort(host, strconv.Itoa(port)),
		logger: logger.Named("rogue"),
	}
}

// Target returns the bus address as host:port.
func (t *Transmitter) Target() string {
	return t.target
}

// SendRaw transmits payload as one datagram, unmodified.
func (t *Transmitter) SendRaw(ctx context.Context, payload []byte) error {
	conn, err := t.dialer.DialContext(ctx, "udp", t.target)
	if err != nil {
		return errors.Wrapf(err, "rogue: dial %s", t.target)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(payload); err != nil {
		return errors.Wrapf(err, "rogue: send to %s", t.target)
	}
	return nil
}

// Spoof builds a well-formed packet claiming groundID, signs it with a fresh
// random key and sends it. It returns the packet sent.
func (t *Transmitter) Spoof(ctx context.Context, command, groundID string) ([]byte, error) {
	if groundID == "" {
		groundID = constants.DefaultGroundStationID
	}
	key, err := crypto.SecureRandomBytes(spoofKeySize)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(key)

	builder, err := ccsds.NewBuilder(key)
	if err != nil {
		return nil, err
	}
	packet, err := builder.Build(command, groundID)
	if err != nil {
		return nil, err
	}
	if err := t.SendRaw(ctx, packet); err != nil {
		return nil, err
	}
	t.logger.Warn("spoofed command transmitted", metrics.Fields{
		"command":           command,
		"ground_station_id": groundID,
		"target":            t.target,
	})
	return packet, nil
}

// SendMalformed sends 24 random bytes. It returns the bytes sent.
func (t *Transmitter) SendMalformed(ctx context.Context) ([]byte, error) {
	junk, err := crypto.SecureRandomBytes(constants.MalformedPacketSize)
	if err != nil {
		return nil, err
	}
	if err := t.SendRaw(ctx, junk); err != nil {
		return nil, err
	}
	t.logger.Warn("malformed packet transmitted", metrics.Fields{
		"bytes":  len(junk),
		"target": t.target,
	})
	return junk, nil
}

// Replay retransmits a previously captured packet byte for byte.
func (t *Transmitter) Replay(ctx context.Context, packet []byte) error {
	if err := t.SendRaw(ctx, packet); err != nil {
		return err
	}
	t.logger.Warn("captured packet replayed", metrics.Fields{
		"bytes":  len(packet),
		"target": t.target,
	})
	return nil
}

// ReplayPcap replays every UDP payload in the capture at path. When dstPort
// is non-zero only datagrams addressed to that port are replayed. It returns
// the number of datagrams sent.
func (t *Transmitter) ReplayPcap(ctx context.Context, path string, dstPort int) (int, error) {
	payloads, err := ReadPcap(path, dstPort)
	if err != nil {
		return 0, err
	}
	for i, p := range payloads {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := t.Replay(ctx, p); err != nil {
			return i, err
		}
	}
	return len(payloads), nil
}
