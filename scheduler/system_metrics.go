package scheduler

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/candelahq/trellis/errors"
)

// MemoryStats is a point-in-time view of system memory, reported by the
// poller heartbeat and the health endpoint.
type MemoryStats struct {
	TotalGB     float64 `json:"total_gb"`
	UsedGB      float64 `json:"used_gb"`
	UsedPercent float64 `json:"used_percent"`
}

// GetMemoryStats reads current system memory usage
func GetMemoryStats() (*MemoryStats, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get memory stats")
	}
	if v.Total == 0 {
		return nil, errors.New("memory stats unavailable")
	}

	const gb = 1024 * 1024 * 1024
	used := v.Total - v.Available
	return &MemoryStats{
		TotalGB:     float64(v.Total) / gb,
		UsedGB:      float64(used) / gb,
		UsedPercent: float64(used) / float64(v.Total) * 100,
	}, nil
}
