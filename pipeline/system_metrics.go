package pipeline

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/globalcalls/errors"
)

// getMemoryStats returns current memory usage in bytes
func getMemoryStats() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// calculateSafeWorkerCount recommends a worker count for the available memory.
// A worker holds one gene batch of raw evidence plus its propagated calls;
// roughly 256MB per 1000 genes of a large species.
func calculateSafeWorkerCount(availableGB float64, batchSize int) int {
	const memoryBuffer = 1.0 // GB reserved for the writer transaction and the OS
	perWorkerGB := 0.25 * float64(batchSize) / 1000
	if perWorkerGB < 0.05 {
		perWorkerGB = 0.05
	}

	if availableGB < memoryBuffer {
		return 1
	}
	recommended := int((availableGB - memoryBuffer) / perWorkerGB)
	if recommended < 1 {
		return 1
	}
	return recommended
}

// CheckMemoryPressure validates the worker count against available memory.
// Returns a warning message if the count may be too high, empty string if OK
// or if memory cannot be read.
func CheckMemoryPressure(workers, batchSize int) string {
	total, available, err := getMemoryStats()
	if err != nil {
		return ""
	}
	return memoryPressureWarning(workers, batchSize, total, available)
}

func memoryPressureWarning(workers, batchSize int, total, available uint64) string {
	const gb = 1024 * 1024 * 1024
	availableGB := float64(available) / gb
	totalGB := float64(total) / gb
	recommended := calculateSafeWorkerCount(availableGB, batchSize)

	if workers > recommended {
		return fmt.Sprintf(
			"Worker count (%d) exceeds recommended (%d) for available memory (%.1f/%.1fGB free) at batch size %d. "+
				"Consider reducing workers or batch size.",
			workers, recommended, availableGB, totalGB, batchSize)
	}
	return ""
}
