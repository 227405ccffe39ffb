package assets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skillforge/assetengine/internal/model"
)

func TestDeleteRemovesBothStores(t *testing.T) {
	backend := newFakeBackend()
	key := "test/protected/document/file/f-1/notes.pdf"
	backend.set(key, []byte("pdf"), time.Now())

	e := testEntity()
	e.DeclaredFilename = strptr("notes.pdf")
	gateway := newFakeGateway(e)

	d := &Deleter{Backend: backend, Metadata: gateway, Keys: KeyScheme{Environment: "test", Tier: "protected"}}
	result, err := d.Delete(context.Background(), e, model.AssetDocument)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !result.Deleted || result.AlreadyDeleted {
		t.Errorf("result = %+v", result)
	}
	if !result.DatabaseUpdated {
		t.Error("metadata should be cleared")
	}
	if backend.has(key) {
		t.Error("object should be removed")
	}

	fresh, _ := gateway.GetEntity(context.Background(), "file", "f-1")
	if fresh.HasDeclaredDocument() {
		t.Error("metadata still declares the document")
	}
}

func TestDeleteAbsentAssetIsIdempotent(t *testing.T) {
	gateway := newFakeGateway(testEntity())
	d := &Deleter{Backend: newFakeBackend(), Metadata: gateway, Keys: KeyScheme{Environment: "test", Tier: "protected"}}

	result, err := d.Delete(context.Background(), testEntity(), model.AssetDocument)
	if err != nil {
		t.Fatalf("delete of absent asset must not fail: %v", err)
	}
	if !result.Deleted || !result.AlreadyDeleted {
		t.Errorf("result = %+v, want deleted and alreadyDeleted", result)
	}
}

func TestDeleteMetadataFailureLeavesObject(t *testing.T) {
	backend := newFakeBackend()
	key := "test/protected/document/file/f-1/notes.pdf"
	backend.set(key, []byte("pdf"), time.Now())

	e := testEntity()
	e.DeclaredFilename = strptr("notes.pdf")
	gateway := newFakeGateway(e)
	gateway.clearErr = errors.New("lock timeout")

	d := &Deleter{Backend: backend, Metadata: gateway, Keys: KeyScheme{Environment: "test", Tier: "protected"}}
	_, err := d.Delete(context.Background(), e, model.AssetDocument)
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != KindMetadata {
		t.Errorf("kind = %q, want metadata", KindOf(err))
	}
	if !backend.has(key) {
		t.Error("object must not be deleted before the metadata clear commits")
	}
}

func TestDeleteObjectFailureWarnsNotFails(t *testing.T) {
	backend := newFakeBackend()
	key := "test/protected/video/course/c-1/video.mp4"
	backend.set(key, []byte("mp4"), time.Now())
	backend.deleteErr = errors.New("store down")

	e := &model.Entity{ID: "c-1", Type: "course", OwnerID: 7, HasVideo: true}
	gateway := newFakeGateway(e)

	d := &Deleter{Backend: backend, Metadata: gateway, Keys: KeyScheme{Environment: "test", Tier: "protected"}}
	result, err := d.Delete(context.Background(), e, model.AssetVideo)
	if err != nil {
		t.Fatalf("object delete failure should not fail the operation: %v", err)
	}
	if !result.Deleted || !result.DatabaseUpdated {
		t.Errorf("result = %+v", result)
	}
	if len(result.Warnings) == 0 {
		t.Error("orphaned object should be surfaced as a warning")
	}

	fresh, _ := gateway.GetEntity(context.Background(), "course", "c-1")
	if fresh.HasVideo {
		t.Error("metadata should be cleared even when the object delete fails")
	}
}

func TestDeleteSharedLegacyKeyWarns(t *testing.T) {
	backend := newFakeBackend()
	e := testEntity()
	e.DeclaredFilename = strptr("notes.pdf")
	gateway := newFakeGateway(e)
	gateway.otherClaims = 2

	d := &Deleter{
		Backend:        backend,
		Metadata:       gateway,
		Keys:           KeyScheme{Environment: "test", Tier: "protected"},
		LegacyFallback: true,
	}
	result, err := d.Delete(context.Background(), e, model.AssetDocument)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(result.Warnings) == 0 {
		t.Error("shared legacy key should produce a warning")
	}
}
