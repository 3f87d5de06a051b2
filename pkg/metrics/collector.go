// Package metrics accumulates per-batch results into an operation's final
// performance summary and pushes counters to an observability sink.
package metrics

import (
	"sync/atomic"
	"time"

	"s3transfer/pkg/models"
)

// Collector aggregates batch results for one operation. Record is safe under
// concurrent callers from parallel batch executions; all counters are atomic
// so no update is lost.
type Collector struct {
	startedAt        time.Time
	filesTransferred atomic.Int64
	bytesTransferred atomic.Int64
	operationCount   atomic.Int64
	transferNanos    atomic.Int64
	fallbacks        atomic.Int64
	batches          atomic.Int64
}

// NewCollector starts the operation clock.
func NewCollector() *Collector {
	return &Collector{startedAt: time.Now()}
}

// Record folds one batch result into the counters.
func (c *Collector) Record(result *models.BatchResult) {
	c.batches.Add(1)
	c.filesTransferred.Add(int64(len(result.Succeeded)))
	c.bytesTransferred.Add(result.BytesMoved)
	c.operationCount.Add(result.OperationCount)
	c.transferNanos.Add(int64(result.Duration))
	if result.FellBack {
		c.fallbacks.Add(1)
	}
}

// Fallbacks reports how many batches completed under the fallback strategy.
func (c *Collector) Fallbacks() int64 { return c.fallbacks.Load() }

// Batches reports how many batch results were recorded.
func (c *Collector) Batches() int64 { return c.batches.Load() }

// Summarize derives the operation's PerformanceMetrics. modeUsed is decided
// by the orchestrator, which knows whether the mode was forced.
func (c *Collector) Summarize(modeUsed models.TransferMode) models.PerformanceMetrics {
	files := c.filesTransferred.Load()
	bytes := c.bytesTransferred.Load()
	ops := c.operationCount.Load()
	transferDur := time.Duration(c.transferNanos.Load())
	totalDur := time.Since(c.startedAt)

	m := models.PerformanceMetrics{
		TotalDurationSec:    totalDur.Seconds(),
		TransferDurationSec: transferDur.Seconds(),
		FilesTransferred:    files,
		BytesTransferred:    bytes,
		OperationCount:      ops,
		ModeUsed:            modeUsed,
	}
	if totalDur > 0 {
		m.AvgThroughputMbps = float64(bytes) * 8 / totalDur.Seconds() / 1e6
	}
	if files > 0 {
		pct := (1 - float64(ops)/(2*float64(files))) * 100
		m.EfficiencyImprovementPct = &pct
	}
	return m
}
