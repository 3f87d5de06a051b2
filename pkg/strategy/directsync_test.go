package strategy

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"s3transfer/pkg/models"
	"s3transfer/pkg/transfererror"
)

// fakeRunner scripts the copy tool's behavior for a test.
type fakeRunner struct {
	script   func(ctx context.Context, args []string, stdout io.Writer) error
	lastArgs []string
	cmdLines string
}

func (r *fakeRunner) Run(ctx context.Context, name string, args []string, stdout io.Writer) error {
	r.lastArgs = args
	// The command batch file is the final argument; capture it while it exists.
	if len(args) > 0 {
		if data, err := os.ReadFile(args[len(args)-1]); err == nil {
			r.cmdLines = string(data)
		}
	}
	return r.script(ctx, args, stdout)
}

func directTestBatch() *models.TransferBatch {
	return &models.TransferBatch{
		ID:          "batch-1",
		Source:      models.S3Location{Bucket: "src-bucket"},
		Destination: models.S3Location{Bucket: "dst-bucket"},
		Files: []models.FileTransferSpec{
			{SourceKey: "a.bin", DestinationKey: "a.bin", SizeBytes: 100},
			{SourceKey: "b.bin", DestinationKey: "b.bin", SizeBytes: 200},
		},
	}
}

func TestDirectSync_AllFilesSucceed(t *testing.T) {
	runner := &fakeRunner{script: func(_ context.Context, _ []string, stdout io.Writer) error {
		fmt.Fprintln(stdout, `cp s3://src-bucket/a.bin s3://dst-bucket/a.bin`)
		fmt.Fprintln(stdout, `cp s3://src-bucket/b.bin s3://dst-bucket/b.bin`)
		return nil
	}}
	d := NewDirectSync(models.DefaultConfig(), runner)

	result, err := d.Execute(context.Background(), directTestBatch())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Len(t, result.Succeeded, 2)
	assert.Empty(t, result.Failed)
	assert.Equal(t, int64(2), result.OperationCount)
	assert.Equal(t, int64(300), result.BytesMoved)
}

func TestDirectSync_CommandFileAndInvocation(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.ToolConcurrency = 16
	cfg.ToolPartSizeMB = 25
	cfg.ToolRetryCount = 2

	runner := &fakeRunner{script: func(_ context.Context, _ []string, _ io.Writer) error {
		return nil
	}}
	d := NewDirectSync(cfg, runner)

	batch := directTestBatch()
	batch.Source.Endpoint = "https://minio.internal:9000"
	batch.Source.Region = "us-east-1"

	_, err := d.Execute(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, "--retry-count", runner.lastArgs[0])
	assert.Equal(t, "2", runner.lastArgs[1])
	assert.Contains(t, runner.lastArgs, "--endpoint-url")
	assert.Contains(t, runner.lastArgs, "https://minio.internal:9000")
	assert.Equal(t, "run", runner.lastArgs[len(runner.lastArgs)-2])

	assert.Contains(t, runner.cmdLines, "cp --if-size-differ --concurrency 16 --part-size 25")
	assert.Contains(t, runner.cmdLines, "--source-region us-east-1")
	assert.Contains(t, runner.cmdLines, `"s3://src-bucket/a.bin" "s3://dst-bucket/a.bin"`)
	assert.Contains(t, runner.cmdLines, `"s3://src-bucket/b.bin" "s3://dst-bucket/b.bin"`)
}

func TestDirectSync_PartialFailure(t *testing.T) {
	runner := &fakeRunner{script: func(_ context.Context, _ []string, stdout io.Writer) error {
		fmt.Fprintln(stdout, `cp s3://src-bucket/a.bin s3://dst-bucket/a.bin`)
		fmt.Fprintln(stdout, `ERROR "cp s3://src-bucket/b.bin s3://dst-bucket/b.bin": access denied`)
		return errors.New("exit status 1")
	}}
	d := NewDirectSync(models.DefaultConfig(), runner)

	result, err := d.Execute(context.Background(), directTestBatch())
	require.NoError(t, err)
	require.NotNil(t, result)

	require.Len(t, result.Succeeded, 1)
	assert.Equal(t, "a.bin", result.Succeeded[0].SourceKey)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "b.bin", result.Failed[0].File.SourceKey)
	assert.Equal(t, "PARTIAL_BATCH_FAILURE", result.Failed[0].Reason)
	assert.Equal(t, "access denied", result.Failed[0].Cause)
	assert.Equal(t, int64(100), result.BytesMoved)
}

func TestDirectSync_SpawnFailure(t *testing.T) {
	runner := &fakeRunner{script: func(_ context.Context, _ []string, _ io.Writer) error {
		return &exec.Error{Name: "s5cmd", Err: exec.ErrNotFound}
	}}
	d := NewDirectSync(models.DefaultConfig(), runner)

	result, err := d.Execute(context.Background(), directTestBatch())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, transfererror.IsToolUnavailable(err))
	assert.True(t, transfererror.Fallbackable(err))
}

func TestDirectSync_Timeout(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.SubprocessTimeout = 30 * time.Millisecond

	runner := &fakeRunner{script: func(ctx context.Context, _ []string, stdout io.Writer) error {
		fmt.Fprintln(stdout, `cp s3://src-bucket/a.bin s3://dst-bucket/a.bin`)
		<-ctx.Done()
		return ctx.Err()
	}}
	d := NewDirectSync(cfg, runner)

	result, err := d.Execute(context.Background(), directTestBatch())
	require.Error(t, err)
	assert.True(t, transfererror.IsTimeout(err))
	assert.True(t, transfererror.Fallbackable(err))

	// The partial result still honors what the tool resolved before the kill.
	require.NotNil(t, result)
	require.Len(t, result.Succeeded, 1)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "b.bin", result.Failed[0].File.SourceKey)
	assert.Equal(t, "TIMEOUT", result.Failed[0].Reason)
}

func TestDirectSync_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	runner := &fakeRunner{script: func(runCtx context.Context, _ []string, _ io.Writer) error {
		cancel()
		<-runCtx.Done()
		return runCtx.Err()
	}}
	d := NewDirectSync(models.DefaultConfig(), runner)

	result, err := d.Execute(ctx, directTestBatch())
	require.Error(t, err)
	assert.True(t, transfererror.IsCancelled(err))
	assert.False(t, transfererror.Fallbackable(err))

	require.NotNil(t, result)
	require.Len(t, result.Failed, 2)
	for _, fe := range result.Failed {
		assert.Equal(t, "CANCELLED", fe.Reason)
	}
}

func TestDirectSync_MissingOutputLineFailsFile(t *testing.T) {
	runner := &fakeRunner{script: func(_ context.Context, _ []string, stdout io.Writer) error {
		fmt.Fprintln(stdout, `cp s3://src-bucket/a.bin s3://dst-bucket/a.bin`)
		return nil
	}}
	d := NewDirectSync(models.DefaultConfig(), runner)

	result, err := d.Execute(context.Background(), directTestBatch())
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "b.bin", result.Failed[0].File.SourceKey)
	assert.Equal(t, "PARTIAL_BATCH_FAILURE", result.Failed[0].Reason)
}

func TestDirectSync_DuplicateSourceKey(t *testing.T) {
	// One object copied to two destinations: both pairs must be resolved.
	batch := &models.TransferBatch{
		ID:          "batch-1",
		Source:      models.S3Location{Bucket: "src-bucket"},
		Destination: models.S3Location{Bucket: "dst-bucket"},
		Files: []models.FileTransferSpec{
			{SourceKey: "a.bin", DestinationKey: "copy1.bin", SizeBytes: 100},
			{SourceKey: "a.bin", DestinationKey: "copy2.bin", SizeBytes: 100},
		},
	}

	runner := &fakeRunner{script: func(_ context.Context, _ []string, stdout io.Writer) error {
		fmt.Fprintln(stdout, `cp s3://src-bucket/a.bin s3://dst-bucket/copy1.bin`)
		fmt.Fprintln(stdout, `cp s3://src-bucket/a.bin s3://dst-bucket/copy2.bin`)
		return nil
	}}
	d := NewDirectSync(models.DefaultConfig(), runner)

	result, err := d.Execute(context.Background(), batch)
	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 2)
	assert.Empty(t, result.Failed)
	assert.Equal(t, int64(200), result.BytesMoved)
}

func TestDirectSync_DuplicateSourceKeyPartialFailure(t *testing.T) {
	batch := &models.TransferBatch{
		ID:          "batch-1",
		Source:      models.S3Location{Bucket: "src-bucket"},
		Destination: models.S3Location{Bucket: "dst-bucket"},
		Files: []models.FileTransferSpec{
			{SourceKey: "a.bin", DestinationKey: "copy1.bin", SizeBytes: 100},
			{SourceKey: "a.bin", DestinationKey: "copy2.bin", SizeBytes: 100},
		},
	}

	runner := &fakeRunner{script: func(_ context.Context, _ []string, stdout io.Writer) error {
		fmt.Fprintln(stdout, `cp s3://src-bucket/a.bin s3://dst-bucket/copy1.bin`)
		fmt.Fprintln(stdout, `ERROR "cp s3://src-bucket/a.bin s3://dst-bucket/copy2.bin": access denied`)
		return errors.New("exit status 1")
	}}
	d := NewDirectSync(models.DefaultConfig(), runner)

	result, err := d.Execute(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)
	assert.Equal(t, "copy1.bin", result.Succeeded[0].DestinationKey)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "copy2.bin", result.Failed[0].File.DestinationKey)
	assert.Equal(t, "access denied", result.Failed[0].Cause)
}

func TestS3URLPair(t *testing.T) {
	src, dst := s3URLPair(`cp s3://b/k s3://c/k`)
	assert.Equal(t, "s3://b/k", src)
	assert.Equal(t, "s3://c/k", dst)

	src, dst = s3URLPair(`ERROR "cp s3://b/k s3://c/k": denied`)
	assert.Equal(t, "s3://b/k", src)
	assert.Equal(t, "s3://c/k", dst)

	src, dst = s3URLPair("no urls here")
	assert.Equal(t, "", src)
	assert.Equal(t, "", dst)
}

func TestErrorCause(t *testing.T) {
	assert.Equal(t, "access denied", errorCause(`ERROR "cp s3://b/k s3://c/k": access denied`))
	assert.Equal(t, "plain message", errorCause("plain message"))
}
