package assets

import (
	"context"

	"github.com/skillforge/assetengine/internal/model"
)

// MetadataGateway is the engine's view of the relational metadata store.
// Implemented by the postgres package; tests supply fakes.
type MetadataGateway interface {
	// GetEntity loads an entity record, or returns a KindNotFound error.
	GetEntity(ctx context.Context, entityType, entityID string) (*model.Entity, error)

	// Begin opens a transaction scoped to asset-presence writes.
	Begin(ctx context.Context) (EntityTx, error)

	// CountOtherDocumentClaims returns how many other entities of the same
	// type declare the given document filename. Used by the deletion
	// orchestrator to warn when a legacy-path key may be shared.
	CountOtherDocumentClaims(ctx context.Context, entityType, entityID, filename string) (int, error)
}

// EntityTx is a metadata transaction over an entity's asset-presence fields.
type EntityTx interface {
	// SetAsset marks an asset present: for documents it records the
	// declared filename, for images/videos it flips the presence flag.
	SetAsset(ctx context.Context, entityType, entityID string, assetType model.AssetType, filename string) error

	// ClearAsset marks an asset absent.
	ClearAsset(ctx context.Context, entityType, entityID string, assetType model.AssetType) error

	Commit() error
	Rollback() error
}
