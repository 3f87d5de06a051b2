// Package batch groups a flat file list into bounded TransferBatches.
package batch

import (
	"github.com/google/uuid"

	"s3transfer/pkg/models"
	"s3transfer/pkg/transfererror"
)

// Optimizer splits file lists according to a BatchOptimizationStrategy.
type Optimizer struct {
	// BytesThreshold bounds the total size of a SIZE_BASED batch.
	BytesThreshold int64
}

// NewOptimizer creates an optimizer with the given size threshold.
func NewOptimizer(bytesThreshold int64) *Optimizer {
	return &Optimizer{BytesThreshold: bytesThreshold}
}

// Split partitions files into batches. Every input file lands in exactly one
// batch and the byte totals are conserved. An empty input is a validation
// error: no batches are produced.
func (o *Optimizer) Split(source, destination models.S3Location, files []models.FileTransferSpec, maxBatchSize int, strategy models.BatchOptimizationStrategy) ([]models.TransferBatch, error) {
	if len(files) == 0 {
		return nil, transfererror.New(transfererror.KindValidation, "no files to transfer")
	}
	if maxBatchSize <= 0 {
		maxBatchSize = 100
	}
	if maxBatchSize > models.MaxBatchSizeCeiling {
		maxBatchSize = models.MaxBatchSizeCeiling
	}

	var chunks [][]models.FileTransferSpec
	switch strategy {
	case models.CountBased:
		chunks = o.splitByCount(files, maxBatchSize)
	case models.SizeBased:
		chunks = o.splitBySize(files, maxBatchSize)
	case models.SingleFile:
		chunks = o.splitSingle(files)
	case models.Mixed, "":
		// Whichever of count/size yields fewer batches; both already honor
		// the count ceiling.
		strategy = models.Mixed
		byCount := o.splitByCount(files, maxBatchSize)
		bySize := o.splitBySize(files, maxBatchSize)
		if len(bySize) < len(byCount) {
			chunks = bySize
		} else {
			chunks = byCount
		}
	default:
		return nil, transfererror.New(transfererror.KindValidation, "unknown batch optimization strategy %q", strategy)
	}

	batches := make([]models.TransferBatch, 0, len(chunks))
	for _, chunk := range chunks {
		var total int64
		for _, f := range chunk {
			total += f.SizeBytes
		}
		batches = append(batches, models.TransferBatch{
			ID:                   uuid.New().String(),
			Source:               source,
			Destination:          destination,
			Files:                chunk,
			TotalBytes:           total,
			OptimizationStrategy: strategy,
		})
	}
	return batches, nil
}

// splitByCount produces greedy fixed-size chunks.
func (o *Optimizer) splitByCount(files []models.FileTransferSpec, maxBatchSize int) [][]models.FileTransferSpec {
	var chunks [][]models.FileTransferSpec
	for i := 0; i < len(files); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(files) {
			end = len(files)
		}
		chunks = append(chunks, files[i:end])
	}
	return chunks
}

// splitBySize accumulates files until the next file would exceed the byte
// threshold. A single file larger than the threshold forms its own batch.
// Zero-size files only count toward the count ceiling.
func (o *Optimizer) splitBySize(files []models.FileTransferSpec, maxBatchSize int) [][]models.FileTransferSpec {
	threshold := o.BytesThreshold
	if threshold <= 0 {
		threshold = 5 * 1024 * 1024 * 1024
	}

	var chunks [][]models.FileTransferSpec
	var current []models.FileTransferSpec
	var currentBytes int64

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
			currentBytes = 0
		}
	}

	for _, f := range files {
		if len(current) > 0 && (currentBytes+f.SizeBytes > threshold || len(current) >= maxBatchSize) {
			flush()
		}
		current = append(current, f)
		currentBytes += f.SizeBytes
		if currentBytes >= threshold {
			flush()
		}
	}
	flush()
	return chunks
}

func (o *Optimizer) splitSingle(files []models.FileTransferSpec) [][]models.FileTransferSpec {
	chunks := make([][]models.FileTransferSpec, 0, len(files))
	for i := range files {
		chunks = append(chunks, files[i:i+1])
	}
	return chunks
}
