// Package parsers turns the raw text of the batched metrics command into
// typed readings.
package parsers

// GPUMetrics aggregates every GPU nvidia-smi reported on a host.
type GPUMetrics struct {
	Name    string
	Count   int
	Percent float64

	// Memory in MiB. Unified is set when the driver reports [N/A] for
	// memory, as on GB10 systems sharing RAM with the CPU.
	MemoryUsedMB  int64
	MemoryTotalMB int64
	Unified       bool

	Temperature     int
	PowerWatts      float64
	PowerLimitWatts float64
}

// MemoryMetrics is system RAM in bytes.
type MemoryMetrics struct {
	UsedBytes  int64
	TotalBytes int64
	Cached     int64
	Available  int64
}

// NetworkInterface holds the cumulative counters of one interface.
type NetworkInterface struct {
	Name       string
	BytesIn    uint64
	BytesOut   uint64
	PacketsIn  uint64
	PacketsOut uint64
}
