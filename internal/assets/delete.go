package assets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/skillforge/assetengine/internal/logging"
	"github.com/skillforge/assetengine/internal/metrics"
	"github.com/skillforge/assetengine/internal/model"
	"github.com/skillforge/assetengine/internal/storage"
)

// DeleteResult is returned by the deletion orchestrator.
type DeleteResult struct {
	Deleted         bool     `json:"deleted"`
	AlreadyDeleted  bool     `json:"alreadyDeleted,omitempty"`
	DatabaseUpdated bool     `json:"databaseUpdated"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Deleter removes an asset from both stores. The metadata clear is ordered
// before the object delete, mirroring the upload ordering: metadata must
// never claim an object that is gone, while an object briefly outliving its
// metadata is the known orphan condition the logs capture.
type Deleter struct {
	Backend  storage.Backend
	Metadata MetadataGateway
	Keys     KeyScheme

	// LegacyFallback also removes the pre-migration document key.
	LegacyFallback bool
}

// Delete clears the metadata presence field and removes the object.
// Idempotent: deleting an asset whose metadata already shows absent returns
// success with AlreadyDeleted set instead of an error.
func (d *Deleter) Delete(ctx context.Context, entity *model.Entity, assetType model.AssetType) (*DeleteResult, error) {
	if !entity.HasDeclaredAsset(assetType) {
		logging.Debug("delete of absent asset",
			zap.String("entity_type", entity.Type),
			zap.String("entity_id", entity.ID),
			zap.String("asset_type", string(assetType)))
		return &DeleteResult{Deleted: true, AlreadyDeleted: true}, nil
	}

	filename := ""
	if entity.DeclaredFilename != nil {
		filename = *entity.DeclaredFilename
	}
	key := d.Keys.Resolve(entity.Type, entity.ID, assetType, filename)

	result := &DeleteResult{}

	// Defensive shared-key probe: with legacy fallback enabled, two entities
	// that declared the same document filename can resolve to the same
	// pre-migration path. Annotate, never block.
	if assetType == model.AssetDocument && d.LegacyFallback && filename != "" {
		n, err := d.Metadata.CountOtherDocumentClaims(ctx, entity.Type, entity.ID, filename)
		if err != nil {
			logging.Warn("shared-key probe failed", zap.String("key", key), zap.Error(err))
		} else if n > 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("legacy path for %q may be shared by %d other %s entities", filename, n, entity.Type))
		}
	}

	tx, err := d.Metadata.Begin(ctx)
	if err != nil {
		metrics.RecordDelete(string(assetType), false)
		return nil, MetadataError("metadata_write_failed", "open metadata transaction").Wrap(err)
	}

	if err := tx.ClearAsset(ctx, entity.Type, entity.ID, assetType); err != nil {
		tx.Rollback()
		metrics.RecordDelete(string(assetType), false)
		return nil, MetadataError("metadata_write_failed", "asset presence clear failed").Wrap(err)
	}

	if err := tx.Commit(); err != nil {
		metrics.RecordDelete(string(assetType), false)
		return nil, MetadataError("metadata_write_failed", "metadata commit failed").Wrap(err)
	}
	result.DatabaseUpdated = true

	if err := d.Backend.DeleteObject(ctx, key); err != nil {
		// Metadata already disclaims the asset; the leftover object is an
		// orphan for operators, not a failure for the caller.
		metrics.RecordOrphanDetected("confirmed")
		logging.Error("object delete failed after metadata clear, object orphaned",
			zap.String("key", key),
			zap.Error(err))
		result.Warnings = append(result.Warnings, "object removal failed; storage cleanup pending")
	}

	if assetType == model.AssetDocument && d.LegacyFallback && filename != "" {
		legacyKey := d.Keys.ResolveLegacy(entity.Type, entity.ID, filename)
		if err := d.Backend.DeleteObject(ctx, legacyKey); err != nil {
			logging.Warn("legacy object delete failed", zap.String("key", legacyKey), zap.Error(err))
		}
	}

	result.Deleted = true
	metrics.RecordDelete(string(assetType), true)
	logging.Info("asset deleted",
		zap.String("entity_type", entity.Type),
		zap.String("entity_id", entity.ID),
		zap.String("asset_type", string(assetType)),
		zap.String("key", key))

	return result, nil
}
