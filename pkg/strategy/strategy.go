// Package strategy implements the two interchangeable batch execution paths:
// direct sync through the external copy tool and the traditional
// download-then-upload fallback.
package strategy

import (
	"context"

	"s3transfer/pkg/models"
	"s3transfer/pkg/storage"
)

// Strategy executes one batch. Implementations never retain the batch past
// the Execute call. A non-nil result may accompany an error when the batch
// failed partway and per-file outcomes are known.
type Strategy interface {
	Name() models.TransferMode
	Execute(ctx context.Context, batch *models.TransferBatch) (*models.BatchResult, error)
}

// StoreProvider hands out an ObjectStore for a location. Implementations
// cache clients per endpoint/region.
type StoreProvider interface {
	StoreFor(ctx context.Context, loc models.S3Location) (storage.ObjectStore, error)
}
