package monitor

import "github.com/rileyhilliard/dgxops/internal/monitor/parsers"

// Baseline is the network counter reading session deltas are measured
// from.
type Baseline struct {
	Interface  string
	RxBytes    uint64
	TxBytes    uint64
	RxPackets  uint64
	TxPackets  uint64
	Generation int
}

// Deltas are counters relative to a baseline.
type Deltas struct {
	RxBytes   uint64
	TxBytes   uint64
	RxPackets uint64
	TxPackets uint64
}

// NewBaseline records iface's counters as the zero point.
func NewBaseline(iface parsers.NetworkInterface) *Baseline {
	return &Baseline{
		Interface: iface.Name,
		RxBytes:   iface.BytesIn,
		TxBytes:   iface.BytesOut,
		RxPackets: iface.PacketsIn,
		TxPackets: iface.PacketsOut,
	}
}

// Delta returns iface's counters minus the baseline. If any counter went
// backwards, or iface is a different interface, the baseline is reset to
// the current reading and all deltas are zero. Reports whether that
// happened.
func (b *Baseline) Delta(iface parsers.NetworkInterface) (Deltas, bool) {
	if iface.Name != b.Interface ||
		iface.BytesIn < b.RxBytes || iface.BytesOut < b.TxBytes ||
		iface.PacketsIn < b.RxPackets || iface.PacketsOut < b.TxPackets {
		gen := b.Generation + 1
		*b = *NewBaseline(iface)
		b.Generation = gen
		return Deltas{}, true
	}

	return Deltas{
		RxBytes:   iface.BytesIn - b.RxBytes,
		TxBytes:   iface.BytesOut - b.TxBytes,
		RxPackets: iface.PacketsIn - b.RxPackets,
		TxPackets: iface.PacketsOut - b.TxPackets,
	}, false
}
