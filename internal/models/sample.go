package models

import "time"

// Sample is one telemetry reading from a connected host.
//
// RxBytes/TxBytes/RxPackets/TxPackets are the host's cumulative counters
// since boot. The Session* fields are relative to the baseline captured on
// the first successful sample after connect.
type Sample struct {
	ID           int64     `json:"-" db:"id"`
	ConnectionID string    `json:"connection_id" db:"connection_id"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`

	GPUName        string  `json:"gpu_name,omitempty" db:"gpu_name"`
	GPUCount       int     `json:"gpu_count" db:"gpu_count"`
	GPUUtilization float64 `json:"gpu_utilization" db:"gpu_utilization"`
	MemoryUsedMB   int64   `json:"memory_used_mb" db:"memory_used_mb"`
	MemoryTotalMB  int64   `json:"memory_total_mb" db:"memory_total_mb"`
	TemperatureC   int     `json:"temperature_c" db:"temperature_c"`
	PowerDrawW     float64 `json:"power_draw_w" db:"power_draw_w"`
	PowerLimitW    float64 `json:"power_limit_w" db:"power_limit_w"`

	// System RAM, reported alongside GPU memory. Unified-memory GPUs report
	// their own memory as [N/A], in which case the GPU memory fields mirror
	// these.
	SystemMemUsedMB  int64 `json:"system_mem_used_mb" db:"system_mem_used_mb"`
	SystemMemTotalMB int64 `json:"system_mem_total_mb" db:"system_mem_total_mb"`

	Interface string `json:"interface,omitempty" db:"interface"`
	RxBytes   uint64 `json:"rx_bytes" db:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes" db:"tx_bytes"`
	RxPackets uint64 `json:"rx_packets" db:"rx_packets"`
	TxPackets uint64 `json:"tx_packets" db:"tx_packets"`

	SessionRxBytes   uint64 `json:"session_rx_bytes" db:"session_rx_bytes"`
	SessionTxBytes   uint64 `json:"session_tx_bytes" db:"session_tx_bytes"`
	SessionRxPackets uint64 `json:"session_rx_packets" db:"session_rx_packets"`
	SessionTxPackets uint64 `json:"session_tx_packets" db:"session_tx_packets"`
}

// MemoryPercent returns used/total GPU memory as a percentage, 0 when unknown.
func (s *Sample) MemoryPercent() float64 {
	if s.MemoryTotalMB <= 0 {
		return 0
	}
	return float64(s.MemoryUsedMB) / float64(s.MemoryTotalMB) * 100
}

// MetricsSnapshot is the current view of a connection's telemetry: the
// latest good sample plus the error from the most recent attempt, if it
// failed.
type MetricsSnapshot struct {
	ConnectionID string    `json:"connection_id"`
	Sample       *Sample   `json:"sample,omitempty"`
	Error        string    `json:"error,omitempty"`
	ErrorAt      time.Time `json:"error_at,omitempty"`
}
