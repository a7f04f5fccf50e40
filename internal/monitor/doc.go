// Package monitor samples GPU, memory and network telemetry from connected
// hosts.
//
// # Sampling
//
// A Collector runs one sampling task per online connection (registered
// through host.Registry.OnConnect), so sampling stops the moment a session
// is dropped. Each tick runs a single batched command over the borrowed
// session and parses its "---" separated sections:
//
//  0. /proc/meminfo
//  1. /proc/net/dev
//  2. nvidia-smi CSV (optional, empty when the host has no GPU)
//
// # Session deltas
//
// The first good sample after a connect records a Baseline of the chosen
// interface's counters. Later samples report counters minus that baseline.
// A counter that went backwards means the host rebooted: the baseline is
// reset to the current reading and the deltas restart from zero.
//
// # History
//
// History keeps the last N samples per connection in ring buffers for live
// charts. Every Nth sample is also written to the store, and History
// requests for longer windows merge both sources.
//
// A failed sample never clears history; it is reported alongside the last
// good sample until the next success replaces it.
package monitor
