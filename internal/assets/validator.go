package assets

import (
	"context"
	"fmt"
	"strings"

	"github.com/skillforge/assetengine/internal/metrics"
	"github.com/skillforge/assetengine/internal/model"
)

// Actor is the identity performing a mutation.
type Actor struct {
	UserID   int
	IsSystem bool
}

// Candidate describes a file offered for upload, before any side effect.
type Candidate struct {
	Filename    string
	Size        int64
	ContentType string
}

// Target identifies where an upload would land.
type Target struct {
	EntityType string
	EntityID   string
	AssetType  model.AssetType
}

// ValidationResult carries the outcome of the pre-upload policy gate.
// Warnings are non-fatal; Err is set iff Valid is false.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Entity   *model.Entity
	Err      *Error
}

// assetTypesByEntity lists which asset types each entity type may carry.
var assetTypesByEntity = map[string]map[model.AssetType]bool{
	"file":   {model.AssetDocument: true, model.AssetImage: true},
	"course": {model.AssetImage: true, model.AssetVideo: true},
	"bundle": {model.AssetImage: true},
}

// contentTypePrefixes maps asset types to acceptable content-type prefixes.
var contentTypePrefixes = map[model.AssetType][]string{
	model.AssetDocument: {"application/pdf", "application/msword", "application/vnd.openxmlformats-officedocument", "application/epub+zip", "text/"},
	model.AssetImage:    {"image/"},
	model.AssetVideo:    {"video/"},
}

// Validator is the synchronous policy gate run before any side effect.
// It never writes to either store.
type Validator struct {
	Metadata MetadataGateway
	MaxSize  int64
}

// Validate runs the policy checks in order: entity exists, actor may mutate,
// asset type is legal for the entity type, size is under the ceiling, and
// the content type is consistent with the asset type. The first failing
// check terminates validation.
func (v *Validator) Validate(ctx context.Context, target Target, candidate Candidate, actor Actor) ValidationResult {
	fail := func(err *Error) ValidationResult {
		metrics.RecordValidationFailure(err.Code)
		return ValidationResult{Valid: false, Err: err}
	}

	if !target.AssetType.Valid() {
		return fail(ValidationError("unknown_asset_type",
			fmt.Sprintf("unknown asset type %q", target.AssetType)))
	}

	entity, err := v.Metadata.GetEntity(ctx, target.EntityType, target.EntityID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return fail(NotFoundError("entity_not_found",
				fmt.Sprintf("%s %s does not exist", target.EntityType, target.EntityID)))
		}
		return fail(MetadataError("entity_lookup_failed", "entity lookup failed").Wrap(err))
	}

	if !actor.IsSystem && actor.UserID != entity.OwnerID {
		return fail(ValidationError("not_permitted",
			"only the entity owner or the system may upload assets"))
	}

	if allowed := assetTypesByEntity[target.EntityType]; allowed == nil || !allowed[target.AssetType] {
		return fail(ValidationError("asset_type_not_allowed",
			fmt.Sprintf("asset type %q is not allowed for entity type %q", target.AssetType, target.EntityType)))
	}

	if candidate.Size <= 0 {
		return fail(ValidationError("empty_file", "uploaded file is empty"))
	}
	if candidate.Size > v.MaxSize {
		return fail(ValidationError("file_too_large",
			fmt.Sprintf("file size %d exceeds limit %d", candidate.Size, v.MaxSize)))
	}

	result := ValidationResult{Valid: true, Entity: entity}

	if candidate.ContentType == "" || candidate.ContentType == "application/octet-stream" {
		// Browsers fall back to octet-stream for unknown extensions; the
		// stored bytes are what they are, so this only warrants a warning.
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("content type %q not verifiable for asset type %q", candidate.ContentType, target.AssetType))
	} else if !contentTypeMatches(target.AssetType, candidate.ContentType) {
		metrics.RecordValidationFailure("content_type_mismatch")
		return ValidationResult{Valid: false, Err: ValidationError("content_type_mismatch",
			fmt.Sprintf("content type %q is not valid for asset type %q", candidate.ContentType, target.AssetType))}
	}

	if target.AssetType == model.AssetDocument && entity.HasDeclaredDocument() {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("replacing existing document %q", *entity.DeclaredFilename))
	}

	return result
}

func contentTypeMatches(assetType model.AssetType, contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	for _, prefix := range contentTypePrefixes[assetType] {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}
