// Package postgres provides the PostgreSQL-backed metadata gateway with
// metrics.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/skillforge/assetengine/internal/assets"
	"github.com/skillforge/assetengine/internal/logging"
	"github.com/skillforge/assetengine/internal/metrics"
	"github.com/skillforge/assetengine/internal/model"
)

// Store is the PostgreSQL metadata store. It owns no in-process state
// beyond the connection pool, so it needs no internal locking.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL metadata store.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewFromDB wraps an existing connection (used by tests).
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other packages.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpdateConnectionMetrics updates the database connection metrics.
func (s *Store) UpdateConnectionMetrics() {
	stats := s.db.Stats()
	metrics.SetDBConnectionsOpen(stats.OpenConnections)
}

// Migrate runs SQL migration files.
func (s *Store) Migrate(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}

	for _, f := range files {
		logging.Info("running migration", zap.String("file", filepath.Base(f)))
		content, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
	}

	return nil
}

const entityColumns = `id, entity_type, owner_id, declared_filename, file_kind,
	has_image, has_video, allow_preview, add_copyrights_footer,
	footer_settings, is_asset_only, created_at, updated_at`

// GetEntity loads an entity record by type and id.
func (s *Store) GetEntity(ctx context.Context, entityType, entityID string) (*model.Entity, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_entity", time.Since(start)) }()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+`
		 FROM entities WHERE entity_type = $1 AND id = $2`,
		entityType, entityID)

	entity, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, assets.NotFoundError("entity_not_found",
			fmt.Sprintf("%s %s does not exist", entityType, entityID))
	}
	if err != nil {
		return nil, fmt.Errorf("get entity %s/%s: %w", entityType, entityID, err)
	}
	return entity, nil
}

// CountOtherDocumentClaims counts entities of the same type, other than the
// given one, declaring the same document filename.
func (s *Store) CountOtherDocumentClaims(ctx context.Context, entityType, entityID, filename string) (int, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("count_document_claims", time.Since(start)) }()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entities
		 WHERE entity_type = $1 AND id <> $2 AND declared_filename = $3`,
		entityType, entityID, filename).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count document claims: %w", err)
	}
	return n, nil
}

// Begin opens an asset-presence transaction.
func (s *Store) Begin(ctx context.Context) (assets.EntityTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &entityTx{tx: tx}, nil
}

// entityTx implements assets.EntityTx over a sql transaction.
type entityTx struct {
	tx *sql.Tx
}

// SetAsset marks an asset present. Documents record the declared filename;
// images and videos flip their presence flag.
func (t *entityTx) SetAsset(ctx context.Context, entityType, entityID string, assetType model.AssetType, filename string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("set_asset", time.Since(start)) }()

	var result sql.Result
	var err error
	switch assetType {
	case model.AssetDocument:
		result, err = t.tx.ExecContext(ctx,
			`UPDATE entities SET declared_filename = $3, updated_at = NOW()
			 WHERE entity_type = $1 AND id = $2`,
			entityType, entityID, filename)
	case model.AssetImage:
		result, err = t.tx.ExecContext(ctx,
			`UPDATE entities SET has_image = TRUE, updated_at = NOW()
			 WHERE entity_type = $1 AND id = $2`,
			entityType, entityID)
	case model.AssetVideo:
		result, err = t.tx.ExecContext(ctx,
			`UPDATE entities SET has_video = TRUE, updated_at = NOW()
			 WHERE entity_type = $1 AND id = $2`,
			entityType, entityID)
	default:
		return fmt.Errorf("set asset: unknown asset type %q", assetType)
	}
	if err != nil {
		return fmt.Errorf("set asset %s on %s/%s: %w", assetType, entityType, entityID, err)
	}
	return requireRow(result, entityType, entityID)
}

// ClearAsset marks an asset absent.
func (t *entityTx) ClearAsset(ctx context.Context, entityType, entityID string, assetType model.AssetType) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("clear_asset", time.Since(start)) }()

	var result sql.Result
	var err error
	switch assetType {
	case model.AssetDocument:
		result, err = t.tx.ExecContext(ctx,
			`UPDATE entities SET declared_filename = NULL, updated_at = NOW()
			 WHERE entity_type = $1 AND id = $2`,
			entityType, entityID)
	case model.AssetImage:
		result, err = t.tx.ExecContext(ctx,
			`UPDATE entities SET has_image = FALSE, updated_at = NOW()
			 WHERE entity_type = $1 AND id = $2`,
			entityType, entityID)
	case model.AssetVideo:
		result, err = t.tx.ExecContext(ctx,
			`UPDATE entities SET has_video = FALSE, updated_at = NOW()
			 WHERE entity_type = $1 AND id = $2`,
			entityType, entityID)
	default:
		return fmt.Errorf("clear asset: unknown asset type %q", assetType)
	}
	if err != nil {
		return fmt.Errorf("clear asset %s on %s/%s: %w", assetType, entityType, entityID, err)
	}
	return requireRow(result, entityType, entityID)
}

func (t *entityTx) Commit() error   { return t.tx.Commit() }
func (t *entityTx) Rollback() error { return t.tx.Rollback() }

func requireRow(result sql.Result, entityType, entityID string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return assets.NotFoundError("entity_not_found",
			fmt.Sprintf("%s %s does not exist", entityType, entityID))
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner) (*model.Entity, error) {
	var e model.Entity
	var declaredFilename, fileKind sql.NullString
	var footerSettings []byte

	err := row.Scan(&e.ID, &e.Type, &e.OwnerID, &declaredFilename, &fileKind,
		&e.HasImage, &e.HasVideo, &e.AllowPreview, &e.AddCopyrightsFooter,
		&footerSettings, &e.IsAssetOnly, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if declaredFilename.Valid {
		e.DeclaredFilename = &declaredFilename.String
	}
	if fileKind.Valid {
		e.FileKind = fileKind.String
	}
	if len(footerSettings) > 0 {
		var fs model.FooterSettings
		if err := json.Unmarshal(footerSettings, &fs); err != nil {
			logging.Warn("invalid footer_settings json, ignoring",
				zap.String("entity_id", e.ID), zap.Error(err))
		} else {
			e.FooterSettings = &fs
		}
	}
	return &e, nil
}
