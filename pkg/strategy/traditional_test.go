package strategy

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"s3transfer/pkg/models"
	"s3transfer/pkg/storage"
	"s3transfer/pkg/transfererror"
)

// memStore is an in-memory ObjectStore keyed by bucket/key.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) put(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = data
}

func (m *memStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *memStore) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, 0, m.getErr
	}
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, 0, errors.Errorf("no such key %s/%s", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (m *memStore) PutObject(_ context.Context, bucket, key string, body io.Reader, _ int64, _ string, _ map[string]string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[bucket+"/"+key] = data
	return nil
}

func (m *memStore) HeadBucket(context.Context, string) error { return nil }

func (m *memStore) ListKeys(_ context.Context, bucket, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys, nil
}

// fakeProvider routes buckets to fixed stores.
type fakeProvider struct {
	stores map[string]storage.ObjectStore
	err    error
}

func (p *fakeProvider) StoreFor(_ context.Context, loc models.S3Location) (storage.ObjectStore, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.stores[loc.Bucket], nil
}

func traditionalTestBatch() *models.TransferBatch {
	return &models.TransferBatch{
		ID:          "batch-1",
		Source:      models.S3Location{Bucket: "src-bucket", KeyPrefix: "in"},
		Destination: models.S3Location{Bucket: "dst-bucket", KeyPrefix: "out"},
		Files: []models.FileTransferSpec{
			{SourceKey: "a.bin", DestinationKey: "a.bin", SizeBytes: 5},
			{SourceKey: "b.bin", DestinationKey: "b.bin", SizeBytes: 7},
			{SourceKey: "c.bin", DestinationKey: "c.bin", SizeBytes: 3},
		},
	}
}

func TestTraditional_AllFilesSucceed(t *testing.T) {
	src := newMemStore()
	src.put("src-bucket", "in/a.bin", []byte("aaaaa"))
	src.put("src-bucket", "in/b.bin", []byte("bbbbbbb"))
	src.put("src-bucket", "in/c.bin", []byte("ccc"))
	dst := newMemStore()

	tr := NewTraditional(models.DefaultConfig(), &fakeProvider{stores: map[string]storage.ObjectStore{
		"src-bucket": src,
		"dst-bucket": dst,
	}})

	result, err := tr.Execute(context.Background(), traditionalTestBatch())
	require.NoError(t, err)

	assert.Len(t, result.Succeeded, 3)
	assert.Empty(t, result.Failed)
	assert.Equal(t, int64(6), result.OperationCount)
	assert.Equal(t, int64(15), result.BytesMoved)
	assert.Equal(t, []string{
		"dst-bucket/out/a.bin",
		"dst-bucket/out/b.bin",
		"dst-bucket/out/c.bin",
	}, dst.keys())
}

func TestTraditional_DownloadFailureSkipsUpload(t *testing.T) {
	src := newMemStore()
	src.put("src-bucket", "in/a.bin", []byte("aaaaa"))
	src.put("src-bucket", "in/c.bin", []byte("ccc"))
	// b.bin is missing at the source.
	dst := newMemStore()

	tr := NewTraditional(models.DefaultConfig(), &fakeProvider{stores: map[string]storage.ObjectStore{
		"src-bucket": src,
		"dst-bucket": dst,
	}})

	result, err := tr.Execute(context.Background(), traditionalTestBatch())
	require.NoError(t, err)

	assert.Len(t, result.Succeeded, 2)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "b.bin", result.Failed[0].File.SourceKey)
	assert.Equal(t, "PARTIAL_BATCH_FAILURE", result.Failed[0].Reason)
	assert.Contains(t, result.Failed[0].Cause, "download")

	// Nothing was written for the failed file.
	assert.NotContains(t, dst.keys(), "dst-bucket/out/b.bin")
}

func TestTraditional_UploadFailure(t *testing.T) {
	src := newMemStore()
	src.put("src-bucket", "in/a.bin", []byte("aaaaa"))
	src.put("src-bucket", "in/b.bin", []byte("bbbbbbb"))
	src.put("src-bucket", "in/c.bin", []byte("ccc"))
	dst := newMemStore()
	dst.putErr = errors.New("access denied")

	tr := NewTraditional(models.DefaultConfig(), &fakeProvider{stores: map[string]storage.ObjectStore{
		"src-bucket": src,
		"dst-bucket": dst,
	}})

	result, err := tr.Execute(context.Background(), traditionalTestBatch())
	require.NoError(t, err)

	assert.Empty(t, result.Succeeded)
	require.Len(t, result.Failed, 3)
	for _, fe := range result.Failed {
		assert.Contains(t, fe.Cause, "upload")
	}
}

func TestTraditional_StoreResolutionFailsBatch(t *testing.T) {
	tr := NewTraditional(models.DefaultConfig(), &fakeProvider{err: errors.New("no credentials")})

	result, err := tr.Execute(context.Background(), traditionalTestBatch())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, transfererror.IsValidation(err))
}

func TestTraditional_CancelledContext(t *testing.T) {
	src := newMemStore()
	dst := newMemStore()
	tr := NewTraditional(models.DefaultConfig(), &fakeProvider{stores: map[string]storage.ObjectStore{
		"src-bucket": src,
		"dst-bucket": dst,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := tr.Execute(ctx, traditionalTestBatch())
	require.NoError(t, err)
	assert.Empty(t, result.Succeeded)
	require.Len(t, result.Failed, 3)
	for _, fe := range result.Failed {
		assert.Equal(t, "CANCELLED", fe.Reason)
	}
}
