package bus

import (
	"context"

	"github.com/pzverkov/satcom-uplink/pkg/ccsds"
	"github.com/pzverkov/satcom-uplink/pkg/metrics"
)

// CommandHandler executes commands that passed the firewall.
type CommandHandler interface {
	Execute(ctx context.Context, packet *ccsds.ParsedPacket, source string) error
}

// HandlerFunc adapts a function to CommandHandler.
type HandlerFunc func(ctx context.Context, packet *ccsds.ParsedPacket, source string) error

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, packet *ccsds.ParsedPacket, source string) error {
	return f(ctx, packet, source)
}

// LogHandler logs each accepted command and does nothing else.
type LogHandler struct {
	Logger *metrics.Logger
}

// Execute logs "executing command".
func (h LogHandler) Execute(_ context.Context, packet *ccsds.ParsedPacket, source string) error {
	logger := h.Logger
	if logger == nil {
		logger = metrics.GetLogger()
	}
	logger.Info("executing command", metrics.Fields{
		"command":           packet.Command,
		"ground_station_id": packet.GroundStationID,
		"sequence":          packet.SequenceCount,
		"apid":              packet.APID,
		"source":            source,
	})
	return nil
}

// RateLimitObserver receives notifications when a source exceeds its rate.
type RateLimitObserver interface {
	// OnRateLimited is called for each datagram dropped before inspection.
	OnRateLimited(source string)
}

var _ RateLimitObserver = (*metrics.RateLimitObserver)(nil)
