package parsers

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseLinuxMemory reads /proc/meminfo. Used memory is MemTotal less
// MemAvailable, or on kernels without MemAvailable, less free, buffers and
// page cache.
func ParseLinuxMemory(procMeminfo string) (*MemoryMetrics, error) {
	kb := make(map[string]int64)
	sc := bufio.NewScanner(strings.NewReader(procMeminfo))
	for sc.Scan() {
		name, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		if v, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
			kb[strings.TrimSpace(name)] = v
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading meminfo: %w", err)
	}

	total := kb["MemTotal"]
	avail, haveAvail := kb["MemAvailable"]
	free, haveFree := kb["MemFree"]
	if total == 0 || !(haveAvail || haveFree) {
		return nil, fmt.Errorf("meminfo has no MemTotal/MemAvailable/MemFree")
	}

	cache := kb["Buffers"] + kb["Cached"]
	used := total - avail
	if !haveAvail {
		used = total - free - cache
	}
	return &MemoryMetrics{
		TotalBytes: total * 1024,
		UsedBytes:  max(used, 0) * 1024,
		Available:  avail * 1024,
		Cached:     cache * 1024,
	}, nil
}

// netDevColumns are the /proc/net/dev fields kept: rx bytes, rx packets,
// tx bytes, tx packets.
var netDevColumns = [4]int{0, 1, 8, 9}

// ParseLinuxNetwork reads the cumulative counters from /proc/net/dev.
// The two header lines are skipped.
func ParseLinuxNetwork(procNetDev string) ([]NetworkInterface, error) {
	var out []NetworkInterface
	sc := bufio.NewScanner(strings.NewReader(procNetDev))
	for sc.Scan() {
		name, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok || strings.Contains(name, "|") {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 16 {
			continue
		}
		name = strings.TrimSpace(name)

		var c [4]uint64
		for i, col := range netDevColumns {
			v, err := strconv.ParseUint(fields[col], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: bad counter in column %d: %w", name, col, err)
			}
			c[i] = v
		}
		out = append(out, NetworkInterface{Name: name, BytesIn: c[0], PacketsIn: c[1], BytesOut: c[2], PacketsOut: c[3]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading net/dev: %w", err)
	}
	return out, nil
}

// virtualPrefixes name interfaces that never carry the host's own traffic.
var virtualPrefixes = []string{"lo", "docker", "veth", "br-", "virbr", "cni", "flannel", "tailscale"}

// PickInterface returns the interface to report: preferred when present,
// otherwise the physical interface that has moved the most bytes. ok is
// false when nothing qualifies.
func PickInterface(ifaces []NetworkInterface, preferred string) (NetworkInterface, bool) {
	if preferred != "" {
		for _, iface := range ifaces {
			if iface.Name == preferred {
				return iface, true
			}
		}
	}

	candidates := make([]NetworkInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		if isVirtual(iface.Name) {
			continue
		}
		candidates = append(candidates, iface)
	}
	if len(candidates) == 0 {
		return NetworkInterface{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].BytesIn+candidates[i].BytesOut > candidates[j].BytesIn+candidates[j].BytesOut
	})
	return candidates[0], true
}

func isVirtual(name string) bool {
	for _, p := range virtualPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
