package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TransferMode selects how batches are executed.
type TransferMode string

const (
	// ModeDirectSync forces the external copy tool; no fallback on failure.
	ModeDirectSync TransferMode = "DIRECT_SYNC"
	// ModeTraditional forces the download-then-upload path.
	ModeTraditional TransferMode = "TRADITIONAL"
	// ModeAuto lets the mode selector decide per batch.
	ModeAuto TransferMode = "AUTO"
	// ModeMixed is never requested; it is reported when some batches fell back.
	ModeMixed TransferMode = "MIXED"
)

// TransferStatus is the lifecycle state of a TransferOperation.
type TransferStatus string

const (
	StatusPending   TransferStatus = "PENDING"
	StatusRunning   TransferStatus = "RUNNING"
	StatusCompleted TransferStatus = "COMPLETED"
	StatusFailed    TransferStatus = "FAILED"
	StatusCancelled TransferStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s TransferStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// BatchOptimizationStrategy controls how a file list is split into batches.
type BatchOptimizationStrategy string

const (
	SizeBased  BatchOptimizationStrategy = "SIZE_BASED"
	CountBased BatchOptimizationStrategy = "COUNT_BASED"
	Mixed      BatchOptimizationStrategy = "MIXED"
	SingleFile BatchOptimizationStrategy = "SINGLE_FILE"
)

var bucketNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// S3Location identifies one side of a transfer. Immutable once built.
type S3Location struct {
	Bucket    string `json:"bucket"`
	KeyPrefix string `json:"key_prefix"`
	Region    string `json:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
}

// Validate enforces S3 bucket naming rules and the prefix invariant.
func (l S3Location) Validate() error {
	if !bucketNameRe.MatchString(l.Bucket) {
		return fmt.Errorf("invalid bucket name %q", l.Bucket)
	}
	if strings.HasPrefix(l.KeyPrefix, "/") {
		return fmt.Errorf("key prefix %q must not begin with a path separator", l.KeyPrefix)
	}
	return nil
}

// URL renders the location as an s3:// URL without a trailing slash.
func (l S3Location) URL() string {
	if l.KeyPrefix == "" {
		return "s3://" + l.Bucket
	}
	return "s3://" + l.Bucket + "/" + l.KeyPrefix
}

// ObjectURL renders the full URL of a key under this location.
func (l S3Location) ObjectURL(key string) string {
	if l.KeyPrefix == "" {
		return "s3://" + l.Bucket + "/" + key
	}
	return "s3://" + l.Bucket + "/" + strings.TrimSuffix(l.KeyPrefix, "/") + "/" + key
}

// ObjectKey resolves a file key against the location's prefix.
func (l S3Location) ObjectKey(key string) string {
	if l.KeyPrefix == "" {
		return key
	}
	return strings.TrimSuffix(l.KeyPrefix, "/") + "/" + key
}

// FileTransferSpec describes a single file pair within a transfer.
type FileTransferSpec struct {
	SourceKey      string            `json:"source_key"`
	DestinationKey string            `json:"destination_key"`
	SizeBytes      int64             `json:"size_bytes"`
	ContentType    string            `json:"content_type,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Validate checks the per-file invariants.
func (f FileTransferSpec) Validate() error {
	if f.SourceKey == "" {
		return fmt.Errorf("source key is required")
	}
	if f.DestinationKey == "" {
		return fmt.Errorf("destination key is required")
	}
	if f.SourceKey == f.DestinationKey {
		return fmt.Errorf("source and destination key must differ (%q)", f.SourceKey)
	}
	if f.SizeBytes < 0 {
		return fmt.Errorf("negative size for %q", f.SourceKey)
	}
	return nil
}

// TransferBatch is a bounded group of files executed by one strategy
// invocation. Batches are owned by the orchestrator and handed to strategies
// by reference for the duration of a single Execute call.
type TransferBatch struct {
	ID                   string                    `json:"id"`
	Source               S3Location                `json:"source"`
	Destination          S3Location                `json:"destination"`
	Files                []FileTransferSpec        `json:"files"`
	TotalBytes           int64                     `json:"total_bytes"`
	OptimizationStrategy BatchOptimizationStrategy `json:"optimization_strategy"`
}

// TransferRequest is what a caller submits to the orchestrator.
type TransferRequest struct {
	Source      S3Location         `json:"source"`
	Destination S3Location         `json:"destination"`
	Files       []FileTransferSpec `json:"files"`
	Mode        TransferMode       `json:"mode,omitempty"`
	DryRun      bool               `json:"dry_run,omitempty"`
}

// FileError records one failed file with its root-cause classification.
type FileError struct {
	File   FileTransferSpec `json:"file"`
	Reason string           `json:"reason"`
	Cause  string           `json:"cause"`
}

// ErrorDetails enumerates every failed file of a FAILED operation.
type ErrorDetails struct {
	Message     string      `json:"message"`
	FailedFiles []FileError `json:"failed_files"`
}

// PerformanceMetrics is the derived summary of a terminal operation.
type PerformanceMetrics struct {
	TotalDurationSec         float64      `json:"total_duration_sec"`
	TransferDurationSec      float64      `json:"transfer_duration_sec"`
	FilesTransferred         int64        `json:"files_transferred"`
	BytesTransferred         int64        `json:"bytes_transferred"`
	OperationCount           int64        `json:"operation_count"`
	AvgThroughputMbps        float64      `json:"avg_throughput_mbps"`
	EfficiencyImprovementPct *float64     `json:"efficiency_improvement_pct,omitempty"`
	ModeUsed                 TransferMode `json:"mode_used"`
}

// TransferOperation is the aggregate root tracking one submitted request.
// The orchestrator exclusively owns the mutable fields; once the status is
// terminal the operation is never mutated again.
type TransferOperation struct {
	ID          string              `json:"id"`
	Source      S3Location          `json:"source"`
	Destination S3Location          `json:"destination"`
	Mode        TransferMode        `json:"mode"`
	Status      TransferStatus      `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Metrics     *PerformanceMetrics `json:"metrics,omitempty"`
	Error       *ErrorDetails       `json:"error,omitempty"`
}

// Clone returns an independent snapshot of the operation.
func (op *TransferOperation) Clone() *TransferOperation {
	cp := *op
	if op.StartedAt != nil {
		t := *op.StartedAt
		cp.StartedAt = &t
	}
	if op.CompletedAt != nil {
		t := *op.CompletedAt
		cp.CompletedAt = &t
	}
	if op.Metrics != nil {
		m := *op.Metrics
		if op.Metrics.EfficiencyImprovementPct != nil {
			pct := *op.Metrics.EfficiencyImprovementPct
			m.EfficiencyImprovementPct = &pct
		}
		cp.Metrics = &m
	}
	if op.Error != nil {
		e := *op.Error
		e.FailedFiles = append([]FileError(nil), op.Error.FailedFiles...)
		cp.Error = &e
	}
	return &cp
}

// BatchResult is what a strategy reports back for one batch.
type BatchResult struct {
	BatchID        string
	Succeeded      []FileTransferSpec
	Failed         []FileError
	Duration       time.Duration
	BytesMoved     int64
	OperationCount int64
	// FellBack is set by the orchestrator when the batch completed under the
	// traditional strategy after a direct-sync failure.
	FellBack bool
}
