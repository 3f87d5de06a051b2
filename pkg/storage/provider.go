package storage

import (
	"context"
	"sync"

	"s3transfer/pkg/models"
)

// Credentials are the static keys handed to every client the provider
// builds. Empty keys fall through to the SDK's default chain.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// Provider builds and caches one ObjectStore per endpoint/region pair so
// concurrently executing batches share clients.
type Provider struct {
	mu     sync.Mutex
	creds  Credentials
	stores map[string]ObjectStore
}

func NewProvider(creds Credentials) *Provider {
	return &Provider{
		creds:  creds,
		stores: make(map[string]ObjectStore),
	}
}

// StoreFor returns the store serving a location, creating it on first use.
func (p *Provider) StoreFor(ctx context.Context, loc models.S3Location) (ObjectStore, error) {
	key := loc.Endpoint + "|" + loc.Region

	p.mu.Lock()
	defer p.mu.Unlock()

	if store, ok := p.stores[key]; ok {
		return store, nil
	}

	client, err := NewClient(ctx, ClientConfig{
		Region:      loc.Region,
		EndpointURL: loc.Endpoint,
		AccessKey:   p.creds.AccessKey,
		SecretKey:   p.creds.SecretKey,
	})
	if err != nil {
		return nil, err
	}
	store := NewS3Store(client)
	p.stores[key] = store
	return store, nil
}
