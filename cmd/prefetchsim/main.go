// cmd/prefetchsim/main.go
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/prefetchsim/prefetchsim/prefetch"
	"github.com/prefetchsim/prefetchsim/prefetch/epi"
	"github.com/prefetchsim/prefetchsim/prefetch/mana"
	"github.com/prefetchsim/prefetchsim/prefetch/scooby"
)

var (
	policyName  string
	tracePath   string
	logLevel    string
	scoobyBasic bool
)

var rootCmd = &cobra.Command{
	Use:   "prefetchsim",
	Short: "Drive a synthetic address trace through a prefetch policy",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one policy against a trace and report hit-rate statistics",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg := defaultTrace()
		if tracePath != "" {
			cfg, err = loadTraceConfig(tracePath)
			if err != nil {
				logrus.Fatalf("loading trace: %v", err)
			}
		}

		policy, err := buildPolicy(policyName, scoobyBasic)
		if err != nil {
			logrus.Fatalf("building policy: %v", err)
		}

		policy.Initialize(0)
		driver := NewDriver(cfg.Latency, logrus.StandardLogger())

		logrus.Infof("running %s against %d stream(s), latency=%d cycles", policyName, len(cfg.Streams), cfg.Latency)
		for _, addr := range interleave(cfg.Streams) {
			driver.Access(policy, addr)
		}
		driver.Drain(policy)
		policy.FinalStats()

		p50, p90, p99 := driver.HitRateQuantiles()
		s := driver.stats
		fmt.Printf("accesses=%d hits=%d misses=%d hit_rate=%.3f\n",
			s.Accesses, s.Hits, s.Misses, float64(s.Hits)/float64(max64(s.Accesses, 1)))
		fmt.Printf("prefetches_issued=%d prefetches_rejected=%d\n", s.PrefetchesIssued, s.PrefetchesRejected)
		fmt.Printf("windowed_hit_rate p50=%.3f p90=%.3f p99=%.3f\n", p50, p90, p99)
	},
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// buildPolicy constructs the named policy's controller. All three satisfy
// prefetch.Prefetcher identically despite very different internal state
// (§6's uniform entry-point contract).
func buildPolicy(name string, basic bool) (prefetch.Prefetcher, error) {
	log := logrus.StandardLogger()
	switch name {
	case "epi":
		return epi.New(cacheSets, cacheWays, log), nil
	case "mana":
		return mana.New(log), nil
	case "scooby":
		return scooby.New(log, !basic), nil
	default:
		return nil, fmt.Errorf("unknown policy %q (want epi, mana, or scooby)", name)
	}
}

// interleave round-robins each stream's addresses into a single sequence,
// so concurrent working sets contend for the same driver the way multiple
// live streams would in a real trace.
func interleave(streams []StreamConfig) []uint64 {
	var seq []uint64
	for {
		progressed := false
		for i := range streams {
			s := &streams[i]
			if s.Count <= 0 {
				continue
			}
			seq = append(seq, s.Base)
			s.Base = uint64(int64(s.Base) + s.Stride*prefetch.BlockSize)
			s.Count--
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return seq
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	runCmd.Flags().StringVar(&policyName, "policy", "epi", "Prefetch policy to run (epi, mana, scooby)")
	runCmd.Flags().StringVar(&tracePath, "trace", "", "Path to a YAML trace config (default: built-in demo trace)")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&scoobyBasic, "scooby-basic", false, "Use Scooby's basic dense-Q engine instead of the featurewise engine")

	rootCmd.AddCommand(runCmd)
}

func main() {
	Execute()
}
