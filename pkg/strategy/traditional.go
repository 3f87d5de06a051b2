package strategy

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"s3transfer/pkg/models"
	"s3transfer/pkg/storage"
	"s3transfer/pkg/transfererror"
)

// Traditional is the fallback path: download each file to a scoped temporary
// location, upload it to the destination, delete the temporary file. Two
// network operations per file, which is the cost the direct path is designed
// to beat.
type Traditional struct {
	cfg    models.Config
	stores StoreProvider
	log    *logrus.Entry
}

func NewTraditional(cfg models.Config, stores StoreProvider) *Traditional {
	return &Traditional{
		cfg:    cfg,
		stores: stores,
		log:    logrus.WithField("strategy", "traditional"),
	}
}

func (t *Traditional) Name() models.TransferMode { return models.ModeTraditional }

// Execute transfers the batch's files with bounded fan-out. Per-file failures
// are collected, never propagated as batch errors; only the inability to
// reach either store fails the batch as a whole.
func (t *Traditional) Execute(ctx context.Context, batch *models.TransferBatch) (*models.BatchResult, error) {
	start := time.Now()

	src, err := t.stores.StoreFor(ctx, batch.Source)
	if err != nil {
		return nil, transfererror.Wrap(transfererror.KindValidation, err, "source store for %s", batch.Source.URL())
	}
	dst, err := t.stores.StoreFor(ctx, batch.Destination)
	if err != nil {
		return nil, transfererror.Wrap(transfererror.KindValidation, err, "destination store for %s", batch.Destination.URL())
	}

	result := &models.BatchResult{
		BatchID:        batch.ID,
		OperationCount: 2 * int64(len(batch.Files)),
	}

	fanout := t.cfg.TraditionalFanout
	if fanout <= 0 {
		fanout = 4
	}
	sem := make(chan struct{}, fanout)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, file := range batch.Files {
		wg.Add(1)
		go func(f models.FileTransferSpec) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				mu.Lock()
				result.Failed = append(result.Failed, models.FileError{
					File:   f,
					Reason: "CANCELLED",
					Cause:  "operation cancelled before file transfer started",
				})
				mu.Unlock()
				return
			}

			err := t.transferOne(ctx, src, dst, batch, f)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, models.FileError{
					File:   f,
					Reason: string(failureKind(ctx, err)),
					Cause:  err.Error(),
				})
			} else {
				result.Succeeded = append(result.Succeeded, f)
				result.BytesMoved += f.SizeBytes
			}
		}(file)
	}
	wg.Wait()

	result.Duration = time.Since(start)
	return result, nil
}

// transferOne moves a single file through local scratch space. The temporary
// file is removed on every exit path.
func (t *Traditional) transferOne(ctx context.Context, src, dst storage.ObjectStore, batch *models.TransferBatch, f models.FileTransferSpec) error {
	opCtx, cancel := context.WithTimeout(ctx, t.cfg.FileOperationTimeout)
	defer cancel()

	tmp, err := os.CreateTemp(t.cfg.TempDir, "transfer-*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	body, _, err := src.GetObject(opCtx, batch.Source.Bucket, batch.Source.ObjectKey(f.SourceKey))
	if err != nil {
		tmp.Close()
		return fmt.Errorf("download: %w", err)
	}
	written, err := io.Copy(tmp, body)
	body.Close()
	if err != nil {
		tmp.Close()
		return fmt.Errorf("download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("flush temp file: %w", err)
	}

	reader, err := os.Open(tmpName)
	if err != nil {
		return fmt.Errorf("reopen temp file: %w", err)
	}
	defer reader.Close()

	if err := dst.PutObject(opCtx, batch.Destination.Bucket, batch.Destination.ObjectKey(f.DestinationKey), reader, written, f.ContentType, f.Metadata); err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	t.log.WithFields(logrus.Fields{
		"batch_id": batch.ID,
		"key":      f.SourceKey,
		"bytes":    written,
	}).Debug("file transferred")
	return nil
}

// failureKind classifies a per-file error for the operation's error details.
func failureKind(ctx context.Context, err error) transfererror.Kind {
	switch {
	case ctx.Err() == context.Canceled:
		return transfererror.KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return transfererror.KindTimeout
	default:
		return transfererror.KindPartialBatch
	}
}
