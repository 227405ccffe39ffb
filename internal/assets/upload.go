package assets

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/skillforge/assetengine/internal/logging"
	"github.com/skillforge/assetengine/internal/metrics"
	"github.com/skillforge/assetengine/internal/model"
	"github.com/skillforge/assetengine/internal/storage"
)

// UploadResult is returned on a fully committed upload.
type UploadResult struct {
	Key        string    `json:"s3Key"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	Checksum   string    `json:"checksum"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Uploader coordinates the object store and the metadata store as one
// logical transaction. The object write is strictly ordered before the
// metadata commit, so metadata never claims an asset the store does not
// hold; the reverse window (object present, metadata pending) is what the
// delivery reconciler absorbs.
type Uploader struct {
	Backend  storage.Backend
	Metadata MetadataGateway
	Keys     KeyScheme
}

// Upload writes the object, flips the metadata presence field inside a
// transaction, and commits. Filename is the caller-declared name; it only
// affects the key for documents, image and video keys being canonical.
//
// If anything fails after the object landed, a best-effort compensating
// delete removes it; a failed compensation is recorded on the returned
// error and logged, never swallowed and never replacing the original
// failure.
func (u *Uploader) Upload(ctx context.Context, entity *model.Entity, assetType model.AssetType, filename string, data []byte, actor Actor) (*UploadResult, error) {
	filename = SanitizeFilename(filename)
	key := u.Keys.Resolve(entity.Type, entity.ID, assetType, filename)
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	tx, err := u.Metadata.Begin(ctx)
	if err != nil {
		metrics.RecordUpload(string(assetType), 0, false)
		return nil, MetadataError("metadata_write_failed", "open metadata transaction").Wrap(err)
	}

	if err := u.Backend.PutObject(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		tx.Rollback()
		metrics.RecordUpload(string(assetType), 0, false)
		return nil, StorageError("upload_failed", "object store write failed").Wrap(err)
	}

	if err := tx.SetAsset(ctx, entity.Type, entity.ID, assetType, filename); err != nil {
		tx.Rollback()
		metrics.RecordUpload(string(assetType), 0, false)
		return nil, u.compensate(ctx, key,
			MetadataError("metadata_write_failed", "asset presence write failed").Wrap(err))
	}

	if err := tx.Commit(); err != nil {
		metrics.RecordUpload(string(assetType), 0, false)
		return nil, u.compensate(ctx, key,
			MetadataError("metadata_write_failed", "metadata commit failed").Wrap(err))
	}

	metrics.RecordUpload(string(assetType), int64(len(data)), true)
	logging.Info("asset uploaded",
		zap.String("entity_type", entity.Type),
		zap.String("entity_id", entity.ID),
		zap.String("asset_type", string(assetType)),
		zap.String("key", key),
		zap.Int("size", len(data)),
		zap.String("checksum", checksum[:16]),
		zap.Int("actor", actor.UserID))

	return &UploadResult{
		Key:        key,
		Filename:   filename,
		Size:       int64(len(data)),
		Checksum:   checksum,
		UploadedAt: time.Now().UTC(),
	}, nil
}

// compensate deletes the just-written object after a failed metadata write.
// The delete failure is an operational alert condition, appended to the
// original error rather than masking it.
func (u *Uploader) compensate(ctx context.Context, key string, original *Error) error {
	if err := u.Backend.DeleteObject(ctx, key); err != nil {
		metrics.RecordCompensatingDelete(false)
		logging.Error("compensating delete failed, object orphaned",
			zap.String("key", key),
			zap.Error(err))
		return original.WithDetail("compensating_delete", err.Error())
	}
	metrics.RecordCompensatingDelete(true)
	logging.Warn("metadata write failed, object rolled back", zap.String("key", key))
	return original
}
