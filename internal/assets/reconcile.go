package assets

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/skillforge/assetengine/internal/logging"
	"github.com/skillforge/assetengine/internal/metrics"
	"github.com/skillforge/assetengine/internal/model"
	"github.com/skillforge/assetengine/internal/storage"
)

// Decision reasons reported by the reconciler.
const (
	ReasonDeclared        = "declared"
	ReasonObjectAbsent    = "object_absent"
	ReasonRaceResolved    = "race_resolved"
	ReasonPotentialOrphan = "potential_orphan"
	ReasonConfirmedOrphan = "confirmed_orphan"
)

// ServeDecision is the reconciler's verdict for an image request.
type ServeDecision struct {
	Serve  bool
	Reason string
}

// Reconciler resolves disagreement between the metadata presence flag and
// the object store for flag-declared assets (images). A freshly written
// object whose owning transaction has not committed yet looks exactly like
// an orphan; the age threshold plus a single recheck tells them apart.
type Reconciler struct {
	Backend  storage.Backend
	Metadata MetadataGateway
	Keys     KeyScheme

	// RaceThreshold is the object age below which a flag mismatch is
	// treated as an in-flight upload.
	RaceThreshold time.Duration
	// RetryWait is how long to pause before the single metadata recheck.
	RetryWait time.Duration

	// Now and Sleep are overridable for tests; nil means the real clock.
	Now   func() time.Time
	Sleep func(time.Duration)
}

// ShouldServe decides whether the entity's image may be served. It performs
// at most one sleep-and-recheck, and never serves an object the metadata
// store disclaims.
func (r *Reconciler) ShouldServe(ctx context.Context, entity *model.Entity) (ServeDecision, error) {
	if entity.HasDeclaredImage() {
		return ServeDecision{Serve: true, Reason: ReasonDeclared}, nil
	}

	key := r.Keys.Resolve(entity.Type, entity.ID, model.AssetImage, "")
	info, err := r.Backend.StatObject(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Flag and store agree: nothing to serve.
			return ServeDecision{Serve: false, Reason: ReasonObjectAbsent}, nil
		}
		return ServeDecision{}, StorageError("stat_failed", "object probe failed").Wrap(err)
	}

	age := r.now().Sub(info.LastModified)
	if age >= r.RaceThreshold {
		metrics.RecordOrphanDetected("confirmed")
		logging.Error("orphaned image object: storage holds an object metadata disclaims",
			zap.String("entity_type", entity.Type),
			zap.String("entity_id", entity.ID),
			zap.String("key", key),
			zap.Duration("age", age),
			zap.Int64("size", info.Size))
		return ServeDecision{Serve: false, Reason: ReasonConfirmedOrphan}, nil
	}

	// Inside the race window: the upload's metadata commit may simply not
	// have landed yet. Wait once and re-read the flag.
	metrics.RecordReconcileRetry()
	r.sleep(r.RetryWait)

	fresh, err := r.Metadata.GetEntity(ctx, entity.Type, entity.ID)
	if err != nil {
		return ServeDecision{}, MetadataError("entity_lookup_failed", "entity recheck failed").Wrap(err)
	}
	if fresh.HasDeclaredImage() {
		logging.Debug("image upload race resolved",
			zap.String("entity_type", entity.Type),
			zap.String("entity_id", entity.ID),
			zap.Duration("age", age))
		return ServeDecision{Serve: true, Reason: ReasonRaceResolved}, nil
	}

	metrics.RecordOrphanDetected("potential")
	logging.Warn("potential orphan: young image object still unclaimed after recheck",
		zap.String("entity_type", entity.Type),
		zap.String("entity_id", entity.ID),
		zap.String("key", key),
		zap.Duration("age", age))
	return ServeDecision{Serve: false, Reason: ReasonPotentialOrphan}, nil
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Reconciler) sleep(d time.Duration) {
	if r.Sleep != nil {
		r.Sleep(d)
		return
	}
	time.Sleep(d)
}
