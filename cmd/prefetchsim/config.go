package main

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TraceConfig describes a synthetic address trace (not the cache simulator
// itself — out of scope per SPEC_FULL.md §1 — just enough of a stand-in
// driver to exercise a policy end-to-end).
type TraceConfig struct {
	// Streams is a list of independent access streams, each a base address
	// plus a stride repeated Count times; streams are interleaved
	// round-robin to resemble concurrent working sets.
	Streams []StreamConfig `yaml:"streams"`
	// Latency is the fixed miss latency (in cycles) applied to every
	// simulated demand miss.
	Latency uint64 `yaml:"latency"`
	// Seed drives the trace's pseudo-random jitter, if any.
	Seed int64 `yaml:"seed"`
}

// StreamConfig describes one address stream.
type StreamConfig struct {
	Base   uint64 `yaml:"base"`
	Stride int64  `yaml:"stride"`
	Count  int    `yaml:"count"`
}

// loadTraceConfig parses path into a TraceConfig, rejecting unknown fields
// so a typo'd key fails loudly rather than silently falling back to a
// zero value.
func loadTraceConfig(path string) (TraceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TraceConfig{}, fmt.Errorf("reading trace config: %w", err)
	}

	var cfg TraceConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return TraceConfig{}, fmt.Errorf("parsing trace config: %w", err)
	}
	return cfg, nil
}

// defaultTrace is used when no --trace file is given: three strided
// streams (stride 1, 3 and 11 blocks), enough to exercise basic blocks,
// entangled successors, and Scooby's action set.
func defaultTrace() TraceConfig {
	return TraceConfig{
		Latency: 100,
		Streams: []StreamConfig{
			{Base: 0x100000, Stride: 1, Count: 200},
			{Base: 0x400000, Stride: 3, Count: 120},
			{Base: 0x800000, Stride: 11, Count: 60},
		},
	}
}
