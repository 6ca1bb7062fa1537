package metrics

import (
	"github.com/pzverkov/satcom-uplink/pkg/firewall"
)

// FirewallObserver implements firewall.Observer and records metrics.
// Rejections are logged as security telemetry; spoofing and policy
// violations are logged at CRITICAL.
type FirewallObserver struct {
	collector *Collector
	logger    *Logger
}

var _ firewall.Observer = (*FirewallObserver)(nil)

// NewFirewallObserver creates an observer that records verdicts in collector
// and logs them through logger. Nil arguments fall back to the globals.
func NewFirewallObserver(collector *Collector, logger *Logger) *FirewallObserver {
	if collector == nil {
		collector = Global()
	}
	if logger == nil {
		logger = GetLogger()
	}

	return &FirewallObserver{
		collector: collector,
		logger:    logger.Named("firewall"),
	}
}

// OnDecodeFailure records a malformed packet.
func (o *FirewallObserver) OnDecodeFailure(e firewall.Event) {
	o.collector.RecordDecodeFailure(e.Kind.String())
	o.logger.Warn("Packet Decode Failure", Fields{
		"source": e.Source,
		"reason": e.Reason,
		"kind":   e.Kind.String(),
		"size":   e.Size,
	})
}

// OnUnauthorized records a packet from a ground station not on the allow-list.
func (o *FirewallObserver) OnUnauthorized(e firewall.Event) {
	o.collector.RecordUnauthorized()
	o.logger.Critical("CRITICAL SECURITY ALERT: Unauthorized ground station", packetFields(e))
}

// OnAuthFailure records a packet whose tag did not verify.
func (o *FirewallObserver) OnAuthFailure(e firewall.Event) {
	o.collector.RecordAuthFailure()
	o.logger.Critical("CRITICAL SECURITY ALERT: Uplink Spoof Attempt Detected", packetFields(e))
}

// OnAccepted records a packet that passed every check.
func (o *FirewallObserver) OnAccepted(e firewall.Event) {
	o.collector.RecordAccepted()
	o.logger.Info("Command accepted", packetFields(e))
}

func packetFields(e firewall.Event) Fields {
	return Fields{
		"source":            e.Source,
		"command":           e.Command,
		"ground_station_id": e.GroundStationID,
		"sequence":          e.SequenceCount,
		"reason":            e.Reason,
	}
}
