package analysis

import (
	"argus/core"

	"github.com/cespare/xxhash/v2"
)

// PartitionOf returns the partition index of an IP for p partitions.
func PartitionOf(ip string, p int) int {
	if p <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(ip) % uint64(p))
}

// Partition splits records into p groups by source IP. Records keep their
// relative order inside a group, and every rule group lands in exactly one
// partition because group keys always start with the IP.
func Partition(records []core.LogEntry, p int) [][]core.LogEntry {
	if p < 1 {
		p = 1
	}
	parts := make([][]core.LogEntry, p)
	if p == 1 {
		parts[0] = records
		return parts
	}
	hint := len(records)/p + 1
	for i := range parts {
		parts[i] = make([]core.LogEntry, 0, hint)
	}
	for _, rec := range records {
		i := PartitionOf(rec.IPAddress, p)
		parts[i] = append(parts[i], rec)
	}
	return parts
}
