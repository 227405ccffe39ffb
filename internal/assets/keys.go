// Package assets implements the asset storage and delivery engine: key
// resolution, pre-upload validation, the upload/deletion orchestrators,
// the delivery reconciler and the integrity verifier.
package assets

import (
	"path"
	"strings"

	"github.com/skillforge/assetengine/internal/model"
)

// KeyScheme derives deterministic storage keys for asset descriptors.
// It is pure computation; the same inputs always yield the same key.
type KeyScheme struct {
	// Environment separates deployments sharing a bucket ("production").
	Environment string
	// Tier is the visibility tier segment ("protected").
	Tier string
}

// Resolve maps an asset descriptor to its storage key:
//
//	{environment}/{tier}/{assetType}/{entityType}/{entityId}/{filename}
//
// Image and video assets use a fixed canonical filename regardless of the
// uploaded name, so each entity has exactly one well-known location per
// asset type. Documents keep the caller-declared filename.
func (k KeyScheme) Resolve(entityType, entityID string, assetType model.AssetType, filename string) string {
	name := assetType.CanonicalFilename()
	if name == "" {
		name = SanitizeFilename(filename)
	}
	return strings.Join([]string{k.Environment, k.Tier, string(assetType), entityType, entityID, name}, "/")
}

// ResolveLegacy maps a document descriptor to its pre-migration key, which
// lacked the asset-type segment:
//
//	{environment}/{tier}/undefined/{entityType}/{entityId}/{filename}
//
// It exists only as a read-side compatibility probe for objects uploaded
// before the key scheme was introduced, and is consulted only when the
// canonical key misses and the legacy fallback is enabled.
func (k KeyScheme) ResolveLegacy(entityType, entityID, filename string) string {
	return strings.Join([]string{k.Environment, k.Tier, "undefined", entityType, entityID, SanitizeFilename(filename)}, "/")
}

// SanitizeFilename strips path components and characters that would change
// the key structure. An empty result falls back to "file".
func SanitizeFilename(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}
