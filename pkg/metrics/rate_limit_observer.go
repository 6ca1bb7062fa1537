package metrics

// RateLimitObserver records datagrams dropped by the bus rate limiter.
// It satisfies bus.RateLimitObserver.
type RateLimitObserver struct {
	collector *Collector
	logger    *Logger
}

// NewRateLimitObserver creates a rate limit observer that records metrics and logs events.
func NewRateLimitObserver(collector *Collector, logger *Logger) *RateLimitObserver {
	if collector == nil {
		collector = Global()
	}
	if logger == nil {
		logger = GetLogger()
	}

	return &RateLimitObserver{
		collector: collector,
		logger:    logger.Named("rate_limit"),
	}
}

// OnRateLimited records a datagram dropped because its source exceeded the limit.
func (o *RateLimitObserver) OnRateLimited(source string) {
	o.collector.RecordRateLimited()
	if source != "" {
		o.logger.Warn("uplink rate limit exceeded", Fields{"source": source})
		return
	}
	o.logger.Warn("uplink rate limit exceeded")
}
