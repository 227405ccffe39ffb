// Package entitlement decides what access tier a viewer holds against an
// entity's assets.
package entitlement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skillforge/assetengine/internal/metrics"
	"github.com/skillforge/assetengine/internal/model"
)

// Level is the access tier a viewer holds.
type Level string

const (
	FullAccess  Level = "full"
	PreviewOnly Level = "preview"
	Denied      Level = "denied"
)

// Viewer identifies who is asking. A nil *Viewer is an unauthenticated
// request and is evaluated with no ownership or purchase facts.
type Viewer struct {
	UserID   int
	IsSystem bool
}

// Resolver resolves a viewer's access tier for an entity.
type Resolver interface {
	Resolve(ctx context.Context, viewer *Viewer, entity *model.Entity) (Level, error)
}

// SQLResolver resolves entitlements against the purchases table.
type SQLResolver struct {
	db *sql.DB
}

// NewSQLResolver creates a resolver backed by the given database.
func NewSQLResolver(db *sql.DB) *SQLResolver {
	return &SQLResolver{db: db}
}

// Resolve applies the entitlement rules in order: asset-only entities are
// fully accessible (their parent aggregate's access check already passed
// upstream), then owner, then a completed non-expired purchase, then the
// preview flag, then denial.
func (r *SQLResolver) Resolve(ctx context.Context, viewer *Viewer, entity *model.Entity) (Level, error) {
	level, err := r.resolve(ctx, viewer, entity)
	if err == nil {
		metrics.RecordEntitlementCheck(string(level))
	}
	return level, err
}

func (r *SQLResolver) resolve(ctx context.Context, viewer *Viewer, entity *model.Entity) (Level, error) {
	if entity.IsAssetOnly {
		return FullAccess, nil
	}

	if viewer != nil {
		if viewer.IsSystem || viewer.UserID == entity.OwnerID {
			return FullAccess, nil
		}

		purchased, err := r.hasActivePurchase(ctx, viewer.UserID, entity.Type, entity.ID)
		if err != nil {
			return Denied, fmt.Errorf("purchase lookup: %w", err)
		}
		if purchased {
			return FullAccess, nil
		}
	}

	if entity.AllowPreview {
		return PreviewOnly, nil
	}
	return Denied, nil
}

// hasActivePurchase reports whether the user holds a completed purchase for
// the entity whose access has not expired.
func (r *SQLResolver) hasActivePurchase(ctx context.Context, userID int, entityType, entityID string) (bool, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("has_active_purchase", time.Since(start)) }()

	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM purchases
		   WHERE user_id = $1 AND entity_type = $2 AND entity_id = $3
		     AND payment_status = 'completed'
		     AND (access_expires_at IS NULL OR access_expires_at > NOW())
		 )`,
		userID, entityType, entityID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
