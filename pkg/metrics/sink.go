package metrics

import (
	"time"

	"github.com/sirupsen/logrus"

	"s3transfer/pkg/models"
)

// Sink receives push-based counters for the observability collaborator.
// Emission is fire-and-forget: implementations must never return control-flow
// errors and a failing sink never fails a transfer.
type Sink interface {
	IncOperations(status models.TransferStatus)
	AddBytesTransferred(n int64)
	IncFallbacks(n int64)
	ObserveOperationDuration(d time.Duration)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) IncOperations(models.TransferStatus)     {}
func (NopSink) AddBytesTransferred(int64)               {}
func (NopSink) IncFallbacks(int64)                      {}
func (NopSink) ObserveOperationDuration(time.Duration)  {}

// LogSink emits the counters as structured log lines, which is how the
// engine ships metrics when no external collector is wired in.
type LogSink struct {
	log *logrus.Entry
}

func NewLogSink() *LogSink {
	return &LogSink{log: logrus.WithField("component", "metrics")}
}

func (s *LogSink) IncOperations(status models.TransferStatus) {
	s.log.WithFields(logrus.Fields{"metric": "operations_total", "status": string(status)}).Info("inc")
}

func (s *LogSink) AddBytesTransferred(n int64) {
	s.log.WithFields(logrus.Fields{"metric": "bytes_transferred_total", "delta": n}).Info("add")
}

func (s *LogSink) IncFallbacks(n int64) {
	if n > 0 {
		s.log.WithFields(logrus.Fields{"metric": "fallback_total", "delta": n}).Info("add")
	}
}

func (s *LogSink) ObserveOperationDuration(d time.Duration) {
	s.log.WithFields(logrus.Fields{"metric": "operation_duration_seconds", "value": d.Seconds()}).Info("observe")
}
