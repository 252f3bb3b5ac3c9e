// Package epi implements the entangling instruction prefetcher (§4.3–4.6
// of the specification): a history window keyed by measured miss latency
// discovers pairs of a triggering block and a distant future block whose
// prefetch would have hidden that latency ("entangled pairs"), recorded in
// a set-associative table with compressed multi-successor storage and
// per-successor confidence counters.
package epi
