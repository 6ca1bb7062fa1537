// Package metrics is the observability layer of the satcom uplink: counters,
// structured logs, spans and the HTTP endpoints operators scrape.
//
// A Collector counts what happens on the uplink. The bus records datagrams,
// rate-limit drops and executions; a FirewallObserver turns each firewall
// Decision into exactly one counter increment and, for spoofed or
// unauthorized packets, a CRITICAL log entry; ground stations record sends.
//
//	collector := metrics.NewCollector(metrics.Labels{"instance": "bus-1"})
//	fw, err := firewall.New(firewall.Config{
//		Key:                   key,
//		AllowedGroundStations: []string{"GS-ALPHA"},
//		Observer:              metrics.NewFirewallObserver(collector, logger),
//	})
//
// Decode failures are kept per validation step and exported with a kind
// label, so a flood of truncated datagrams is distinguishable from
// fragmented or oversize ones.
//
// # Logging
//
// Logger writes text for consoles or JSON for log shipping. Loggers derived
// with Named or With share one output and one level.
//
//	logger := metrics.NewLogger(
//		metrics.WithLevel(metrics.LevelInfo),
//		metrics.WithFormat(metrics.FormatJSON),
//		metrics.WithFields(metrics.Fields{"service": "satcom-bus"}),
//	)
//	logger.Named("firewall").Critical("CRITICAL SECURITY ALERT: Uplink Spoof Attempt Detected",
//		metrics.Fields{"ground_station_id": id})
//
// # Tracing
//
// Spans cover the datagram, its inspection and the command execution on the
// bus side, and the build and send on the ground side. SimpleTracer keeps
// recent spans in memory; OTelTracer forwards them to OpenTelemetry when the
// binary is built with -tags otel.
//
//	metrics.SetTracer(metrics.NewSimpleTracer(metrics.WithSpanLogger(logger)))
//	ctx, end := metrics.StartSpan(ctx, metrics.SpanInspect)
//	defer end(nil)
//
// # HTTP
//
//	server := metrics.NewServer(metrics.ServerConfig{
//		Collector:        collector,
//		Version:          version.String(),
//		Namespace:        "satcom",
//		EnablePrometheus: true,
//		EnableHealth:     true,
//	})
//	server.AddHealthCheck("self_test", metrics.SelfTestCheck(crypto.SelfTestPassed))
//	go server.Run(ctx, ":9090")
//
// Routes: /metrics (Prometheus text), /health (JSON detail, 503 when a
// check fails), /healthz (liveness) and /readyz (readiness). Firewall
// rejections never degrade health; local read, handler and send errors do.
package metrics
