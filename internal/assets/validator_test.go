package assets

import (
	"context"
	"testing"

	"github.com/skillforge/assetengine/internal/model"
)

func testEntity() *model.Entity {
	return &model.Entity{ID: "f-1", Type: "file", OwnerID: 7}
}

func TestValidateAccepts(t *testing.T) {
	v := &Validator{Metadata: newFakeGateway(testEntity()), MaxSize: 1 << 20}

	r := v.Validate(context.Background(),
		Target{EntityType: "file", EntityID: "f-1", AssetType: model.AssetDocument},
		Candidate{Filename: "notes.pdf", Size: 100, ContentType: "application/pdf"},
		Actor{UserID: 7})
	if !r.Valid {
		t.Fatalf("expected valid, got %v", r.Err)
	}
	if r.Entity == nil || r.Entity.ID != "f-1" {
		t.Error("validation should return the loaded entity")
	}
	if len(r.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", r.Warnings)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name      string
		target    Target
		candidate Candidate
		actor     Actor
		wantCode  string
	}{
		{
			name:     "unknown asset type",
			target:   Target{EntityType: "file", EntityID: "f-1", AssetType: "blob"},
			wantCode: "unknown_asset_type",
		},
		{
			name:      "entity missing",
			target:    Target{EntityType: "file", EntityID: "nope", AssetType: model.AssetDocument},
			candidate: Candidate{Size: 10},
			actor:     Actor{UserID: 7},
			wantCode:  "entity_not_found",
		},
		{
			name:      "not the owner",
			target:    Target{EntityType: "file", EntityID: "f-1", AssetType: model.AssetDocument},
			candidate: Candidate{Size: 10},
			actor:     Actor{UserID: 99},
			wantCode:  "not_permitted",
		},
		{
			name:      "document on a course",
			target:    Target{EntityType: "course", EntityID: "c-1", AssetType: model.AssetDocument},
			candidate: Candidate{Size: 10},
			actor:     Actor{UserID: 7},
			wantCode:  "asset_type_not_allowed",
		},
		{
			name:      "empty file",
			target:    Target{EntityType: "file", EntityID: "f-1", AssetType: model.AssetDocument},
			candidate: Candidate{Size: 0},
			actor:     Actor{UserID: 7},
			wantCode:  "empty_file",
		},
		{
			name:      "file too large",
			target:    Target{EntityType: "file", EntityID: "f-1", AssetType: model.AssetDocument},
			candidate: Candidate{Size: 2 << 20},
			actor:     Actor{UserID: 7},
			wantCode:  "file_too_large",
		},
		{
			name:      "content type mismatch",
			target:    Target{EntityType: "file", EntityID: "f-1", AssetType: model.AssetImage},
			candidate: Candidate{Size: 10, ContentType: "video/mp4"},
			actor:     Actor{UserID: 7},
			wantCode:  "content_type_mismatch",
		},
	}

	course := &model.Entity{ID: "c-1", Type: "course", OwnerID: 7}
	v := &Validator{Metadata: newFakeGateway(testEntity(), course), MaxSize: 1 << 20}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := v.Validate(context.Background(), c.target, c.candidate, c.actor)
			if r.Valid {
				t.Fatal("expected validation failure")
			}
			if r.Err.Code != c.wantCode {
				t.Errorf("code = %q, want %q", r.Err.Code, c.wantCode)
			}
		})
	}
}

func TestValidateSystemActorBypassesOwnership(t *testing.T) {
	v := &Validator{Metadata: newFakeGateway(testEntity()), MaxSize: 1 << 20}

	r := v.Validate(context.Background(),
		Target{EntityType: "file", EntityID: "f-1", AssetType: model.AssetDocument},
		Candidate{Filename: "notes.pdf", Size: 10, ContentType: "application/pdf"},
		Actor{UserID: 0, IsSystem: true})
	if !r.Valid {
		t.Fatalf("system actor should pass ownership check, got %v", r.Err)
	}
}

func TestValidateOctetStreamWarnsOnly(t *testing.T) {
	v := &Validator{Metadata: newFakeGateway(testEntity()), MaxSize: 1 << 20}

	r := v.Validate(context.Background(),
		Target{EntityType: "file", EntityID: "f-1", AssetType: model.AssetDocument},
		Candidate{Filename: "notes.pdf", Size: 10, ContentType: "application/octet-stream"},
		Actor{UserID: 7})
	if !r.Valid {
		t.Fatalf("octet-stream should validate, got %v", r.Err)
	}
	if len(r.Warnings) != 1 {
		t.Errorf("want 1 warning, got %v", r.Warnings)
	}
}

func TestValidateReplacementWarns(t *testing.T) {
	e := testEntity()
	e.DeclaredFilename = strptr("old.pdf")
	v := &Validator{Metadata: newFakeGateway(e), MaxSize: 1 << 20}

	r := v.Validate(context.Background(),
		Target{EntityType: "file", EntityID: "f-1", AssetType: model.AssetDocument},
		Candidate{Filename: "new.pdf", Size: 10, ContentType: "application/pdf"},
		Actor{UserID: 7})
	if !r.Valid {
		t.Fatalf("replacement should validate, got %v", r.Err)
	}
	if len(r.Warnings) != 1 {
		t.Errorf("want replacement warning, got %v", r.Warnings)
	}
}

func TestContentTypeMatchesParameters(t *testing.T) {
	if !contentTypeMatches(model.AssetDocument, "application/pdf; charset=binary") {
		t.Error("content type parameters should be ignored")
	}
	if !contentTypeMatches(model.AssetImage, "IMAGE/PNG") {
		t.Error("content type match should be case-insensitive")
	}
}
