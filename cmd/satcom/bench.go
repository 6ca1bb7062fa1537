package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pzverkov/satcom-uplink/pkg/ccsds"
	"github.com/pzverkov/satcom-uplink/pkg/firewall"
	"github.com/pzverkov/satcom-uplink/pkg/metrics"
)

// benchBuckets are latency bucket bounds in microseconds.
var benchBuckets = []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 1000}

type benchResult struct {
	name  string
	total time.Duration
	hist  *metrics.Histogram
}

func newBenchCmd(a *app) *cobra.Command {
	var (
		iterations int
		command    string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark packet build, parse and inspection",
		Example: `  satcom bench --iterations 100000
  satcom bench --command DEPLOY_SOLAR_PANELS`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if iterations <= 0 {
				return fmt.Errorf("--iterations must be positive")
			}
			return a.runBench(iterations, command)
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", 10000, "operations per benchmark")
	cmd.Flags().StringVar(&command, "command", "PING", "command carried by each packet")
	return cmd
}

func (a *app) runBench(iterations int, command string) error {
	key := []byte("benchmark-key-not-for-flight")
	groundID := a.cfg.Uplink.GroundStationID

	builder, err := ccsds.NewBuilder(key,
		ccsds.WithAPID(a.cfg.Uplink.APID),
		ccsds.WithDigest(a.cfg.DigestAlgorithm()),
		ccsds.WithSequencePolicy(a.cfg.SequencePolicy()),
	)
	if err != nil {
		return err
	}
	fw, err := firewall.New(firewall.Config{
		Key:                   key,
		Digest:                a.cfg.DigestAlgorithm(),
		AllowedGroundStations: []string{groundID},
	})
	if err != nil {
		return err
	}
	packet, err := builder.Build(command, groundID)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Benchmarking uplink (%d iterations, %s, %d-byte packet)\n",
		iterations, builder.Algorithm(), len(packet))
	fmt.Fprintln(a.out, strings.Repeat("─", 60))

	results := []benchResult{
		measure("Build", iterations, func() error {
			_, err := builder.Build(command, groundID)
			return err
		}),
		measure("Parse", iterations, func() error {
			_, err := ccsds.Parse(packet)
			return err
		}),
		measure("Inspect", iterations, func() error {
			if d := fw.Inspect(packet, "bench"); !d.Accepted {
				return fmt.Errorf("inspect rejected the packet: %s", d.Reason)
			}
			return nil
		}),
	}

	for _, r := range results {
		if r.hist == nil {
			return fmt.Errorf("%s benchmark failed", r.name)
		}
		a.printBenchResult(r, iterations)
	}
	return nil
}

// measure runs op n times, timing each call. hist is nil if op failed.
func measure(name string, n int, op func() error) benchResult {
	hist := metrics.NewHistogram(benchBuckets)
	start := time.Now()
	for i := 0; i < n; i++ {
		t := time.Now()
		if err := op(); err != nil {
			return benchResult{name: name}
		}
		hist.Observe(float64(time.Since(t).Nanoseconds()) / 1e3)
	}
	return benchResult{name: name, total: time.Since(start), hist: hist}
}

func (a *app) printBenchResult(r benchResult, n int) {
	fmt.Fprintf(a.out, "\n%s:\n", r.name)
	fmt.Fprintf(a.out, "  Total:      %v\n", r.total)
	fmt.Fprintf(a.out, "  Average:    %.2fµs\n", r.hist.Mean())
	fmt.Fprintf(a.out, "  p50:        %.2fµs\n", r.hist.Percentile(0.50))
	fmt.Fprintf(a.out, "  p99:        %.2fµs\n", r.hist.Percentile(0.99))
	fmt.Fprintf(a.out, "  Throughput: %.0f ops/sec\n", float64(n)/r.total.Seconds())
}
