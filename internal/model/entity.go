// Package model defines the domain types shared by the asset engine:
// entities, asset types and footer settings.
package model

import "time"

// AssetType identifies the kind of binary attached to an entity.
type AssetType string

const (
	AssetDocument AssetType = "document"
	AssetImage    AssetType = "image"
	AssetVideo    AssetType = "video"
)

// Valid reports whether t is a known asset type.
func (t AssetType) Valid() bool {
	switch t {
	case AssetDocument, AssetImage, AssetVideo:
		return true
	}
	return false
}

// CanonicalFilename returns the fixed storage filename for non-document
// asset types, or "" for documents (which keep the declared name).
func (t AssetType) CanonicalFilename() string {
	switch t {
	case AssetImage:
		return "image.jpg"
	case AssetVideo:
		return "video.mp4"
	}
	return ""
}

// FooterSettings controls copyright footer stamping. Zero-value fields fall
// back to the system defaults when merged.
type FooterSettings struct {
	Text     string  `json:"text,omitempty"`
	FontName string  `json:"font_name,omitempty"`
	Points   int     `json:"points,omitempty"`
	Opacity  float64 `json:"opacity,omitempty"`
}

// Merge overlays non-zero fields of override onto base and returns the result.
func (base FooterSettings) Merge(override *FooterSettings) FooterSettings {
	if override == nil {
		return base
	}
	merged := base
	if override.Text != "" {
		merged.Text = override.Text
	}
	if override.FontName != "" {
		merged.FontName = override.FontName
	}
	if override.Points > 0 {
		merged.Points = override.Points
	}
	if override.Opacity > 0 {
		merged.Opacity = override.Opacity
	}
	return merged
}

// Entity is a content item owning up to one asset per asset type. The object
// store holds the bytes; the entity row holds the presence flags and the
// delivery policy.
type Entity struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	OwnerID int    `json:"owner_id"`

	// DeclaredFilename is nil until a document has been uploaded.
	DeclaredFilename *string `json:"declared_filename,omitempty"`
	FileKind         string  `json:"file_kind,omitempty"`

	HasImage bool `json:"has_image"`
	HasVideo bool `json:"has_video"`

	AllowPreview        bool            `json:"allow_preview"`
	AddCopyrightsFooter bool            `json:"add_copyrights_footer"`
	FooterSettings      *FooterSettings `json:"footer_settings,omitempty"`

	// IsAssetOnly marks entities embedded inside another aggregate; access
	// to the parent implies access to them.
	IsAssetOnly bool `json:"is_asset_only"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasDeclaredDocument reports whether metadata declares a document asset.
func (e *Entity) HasDeclaredDocument() bool {
	return e.DeclaredFilename != nil && *e.DeclaredFilename != ""
}

// HasDeclaredImage reports whether metadata declares an image asset.
func (e *Entity) HasDeclaredImage() bool {
	return e.HasImage
}

// HasDeclaredVideo reports whether metadata declares a video asset.
func (e *Entity) HasDeclaredVideo() bool {
	return e.HasVideo
}

// HasDeclaredAsset reports whether metadata declares an asset of the given type.
func (e *Entity) HasDeclaredAsset(t AssetType) bool {
	switch t {
	case AssetDocument:
		return e.HasDeclaredDocument()
	case AssetImage:
		return e.HasDeclaredImage()
	case AssetVideo:
		return e.HasDeclaredVideo()
	}
	return false
}
