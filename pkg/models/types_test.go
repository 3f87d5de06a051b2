package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3LocationValidate(t *testing.T) {
	tests := []struct {
		name string
		loc  S3Location
		ok   bool
	}{
		{"plain bucket", S3Location{Bucket: "my-bucket"}, true},
		{"with prefix", S3Location{Bucket: "my-bucket", KeyPrefix: "data/2024"}, true},
		{"dotted bucket", S3Location{Bucket: "my.bucket.example"}, true},
		{"empty bucket", S3Location{Bucket: ""}, false},
		{"uppercase bucket", S3Location{Bucket: "MyBucket"}, false},
		{"too short", S3Location{Bucket: "ab"}, false},
		{"leading slash prefix", S3Location{Bucket: "my-bucket", KeyPrefix: "/data"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.loc.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestS3LocationURLs(t *testing.T) {
	loc := S3Location{Bucket: "my-bucket", KeyPrefix: "data/"}
	assert.Equal(t, "s3://my-bucket/data/", loc.URL())
	assert.Equal(t, "s3://my-bucket/data/file.bin", loc.ObjectURL("file.bin"))
	assert.Equal(t, "data/file.bin", loc.ObjectKey("file.bin"))

	bare := S3Location{Bucket: "my-bucket"}
	assert.Equal(t, "s3://my-bucket", bare.URL())
	assert.Equal(t, "s3://my-bucket/file.bin", bare.ObjectURL("file.bin"))
	assert.Equal(t, "file.bin", bare.ObjectKey("file.bin"))
}

func TestFileTransferSpecValidate(t *testing.T) {
	ok := FileTransferSpec{SourceKey: "a", DestinationKey: "b", SizeBytes: 10}
	assert.NoError(t, ok.Validate())

	assert.Error(t, FileTransferSpec{DestinationKey: "b"}.Validate())
	assert.Error(t, FileTransferSpec{SourceKey: "a"}.Validate())
	assert.Error(t, FileTransferSpec{SourceKey: "a", DestinationKey: "a"}.Validate())
	assert.Error(t, FileTransferSpec{SourceKey: "a", DestinationKey: "b", SizeBytes: -1}.Validate())
}

func TestTransferStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestTransferOperationClone(t *testing.T) {
	started := time.Now()
	pct := 50.0
	op := &TransferOperation{
		ID:        "op-1",
		Status:    StatusCompleted,
		StartedAt: &started,
		Metrics:   &PerformanceMetrics{FilesTransferred: 10, EfficiencyImprovementPct: &pct},
		Error: &ErrorDetails{
			Message:     "1 file(s) failed",
			FailedFiles: []FileError{{File: FileTransferSpec{SourceKey: "a", DestinationKey: "b"}, Reason: "TIMEOUT"}},
		},
	}

	cp := op.Clone()
	require.Equal(t, op, cp)

	// Mutating the clone must not reach the original.
	*cp.Metrics.EfficiencyImprovementPct = 99
	cp.Error.FailedFiles[0].Reason = "CHANGED"
	*cp.StartedAt = started.Add(time.Hour)

	assert.Equal(t, 50.0, *op.Metrics.EfficiencyImprovementPct)
	assert.Equal(t, "TIMEOUT", op.Error.FailedFiles[0].Reason)
	assert.Equal(t, started, *op.StartedAt)
}
