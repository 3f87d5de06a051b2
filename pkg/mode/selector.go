// Package mode decides, per batch, which transfer strategy executes it.
package mode

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"s3transfer/pkg/models"
	"s3transfer/pkg/strategy"
)

// Selector implements the mode-selection policy. The tool-availability cache
// is the only state shared across operations; everything else is per call.
type Selector struct {
	direct      strategy.Strategy
	traditional strategy.Strategy
	stores      strategy.StoreProvider
	cache       *availabilityCache
	log         *logrus.Entry

	permMu      sync.Mutex
	permissions map[string]permissionEntry
	permTTL     time.Duration
}

type permissionEntry struct {
	ok        bool
	checkedAt time.Time
}

// NewSelector wires the selector. A nil probe defaults to a PATH lookup of
// the configured tool binary.
func NewSelector(cfg models.Config, direct, traditional strategy.Strategy, stores strategy.StoreProvider, probe Probe) *Selector {
	if probe == nil {
		tool := cfg.ToolPath
		probe = func(ctx context.Context) bool {
			_, err := exec.LookPath(tool)
			return err == nil
		}
	}
	return &Selector{
		direct:      direct,
		traditional: traditional,
		stores:      stores,
		cache:       newAvailabilityCache(probe, cfg.ToolAvailabilityTTL),
		log:         logrus.WithField("component", "mode_selector"),
		permissions: make(map[string]permissionEntry),
		permTTL:     cfg.ToolAvailabilityTTL,
	}
}

// PrevalidateDestination records whether the destination bucket is writable.
// The orchestrator calls this once when an operation starts so per-batch
// selection never blocks on a network round trip.
func (s *Selector) PrevalidateDestination(ctx context.Context, loc models.S3Location) {
	store, err := s.stores.StoreFor(ctx, loc)
	ok := false
	if err == nil {
		ok = store.HeadBucket(ctx, loc.Bucket) == nil
	}
	s.permMu.Lock()
	s.permissions[loc.Bucket] = permissionEntry{ok: ok, checkedAt: time.Now()}
	s.permMu.Unlock()

	if !ok {
		s.log.WithField("bucket", loc.Bucket).Warn("destination bucket not validated; batches will use the traditional path")
	}
}

// SelectStrategy picks the strategy for one batch. The decision is made per
// batch and never cached across batches with different endpoints.
func (s *Selector) SelectStrategy(ctx context.Context, op *models.TransferOperation, batch *models.TransferBatch) strategy.Strategy {
	switch op.Mode {
	case models.ModeTraditional:
		return s.traditional
	case models.ModeDirectSync:
		// Forced direct: the caller accepts failure without fallback.
		return s.direct
	}

	if !s.cache.Get(ctx) {
		return s.traditional
	}
	if batch.Source.Validate() != nil || batch.Destination.Validate() != nil {
		return s.traditional
	}
	if batch.Source.Endpoint != batch.Destination.Endpoint {
		// The tool invocation carries a single endpoint; mismatched custom
		// endpoints can only be bridged by download-then-upload.
		return s.traditional
	}
	if !s.destinationValidated(batch.Destination.Bucket) {
		return s.traditional
	}
	return s.direct
}

// InvalidateAvailability drops the cached probe result, forcing the next
// selection to re-check. Used after a spawn failure surfaces mid-window.
func (s *Selector) InvalidateAvailability() {
	s.cache.Invalidate()
}

func (s *Selector) destinationValidated(bucket string) bool {
	s.permMu.Lock()
	defer s.permMu.Unlock()
	entry, ok := s.permissions[bucket]
	if !ok {
		return false
	}
	return entry.ok && time.Since(entry.checkedAt) < s.permTTL
}
