package monitor

import (
	"sync/atomic"
)

type WorkloadStats struct {
	ReadCount   uint64
	WriteCount  uint64
	DeleteCount uint64
	ScanCount   uint64
	HitCount    uint64
	MissCount   uint64
	ErrorCount  uint64
}

func NewWorkloadStats() *WorkloadStats {
	return &WorkloadStats{}
}

func (ws *WorkloadStats) RecordRead() {
	atomic.AddUint64(&ws.ReadCount, 1)
}

func (ws *WorkloadStats) RecordWrite() {
	atomic.AddUint64(&ws.WriteCount, 1)
}

func (ws *WorkloadStats) RecordDelete() {
	atomic.AddUint64(&ws.DeleteCount, 1)
}

func (ws *WorkloadStats) RecordScan() {
	atomic.AddUint64(&ws.ScanCount, 1)
}

func (ws *WorkloadStats) RecordHit() {
	atomic.AddUint64(&ws.HitCount, 1)
}

func (ws *WorkloadStats) RecordMiss() {
	atomic.AddUint64(&ws.MissCount, 1)
}

func (ws *WorkloadStats) RecordError() {
	atomic.AddUint64(&ws.ErrorCount, 1)
}

// Snapshot copies the counters.
func (ws *WorkloadStats) Snapshot() WorkloadStats {
	return WorkloadStats{
		ReadCount:   atomic.LoadUint64(&ws.ReadCount),
		WriteCount:  atomic.LoadUint64(&ws.WriteCount),
		DeleteCount: atomic.LoadUint64(&ws.DeleteCount),
		ScanCount:   atomic.LoadUint64(&ws.ScanCount),
		HitCount:    atomic.LoadUint64(&ws.HitCount),
		MissCount:   atomic.LoadUint64(&ws.MissCount),
		ErrorCount:  atomic.LoadUint64(&ws.ErrorCount),
	}
}

// GetReadWriteRatio counts deletes as writes.
func (ws *WorkloadStats) GetReadWriteRatio() float64 {
	reads := atomic.LoadUint64(&ws.ReadCount)
	writes := atomic.LoadUint64(&ws.WriteCount) + atomic.LoadUint64(&ws.DeleteCount)

	if writes == 0 {
		if reads > 0 {
			return 100.0
		}
		return 0.0
	}
	return float64(reads) / float64(writes)
}
