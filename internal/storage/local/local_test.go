package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skillforge/assetengine/internal/storage"
)

func newTestBackend(t *testing.T) *LocalBackend {
	t.Helper()
	b, err := New(Config{RootPath: t.TempDir(), CreateDirs: true})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestPutGetRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	data := []byte("object bytes")
	key := "test/protected/document/file/f-1/notes.pdf"
	if err := b.PutObject(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatal(err)
	}

	reader, size, err := b.GetObject(ctx, key, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	got, _ := io.ReadAll(reader)
	if !bytes.Equal(got, data) {
		t.Errorf("got %q", got)
	}
	if size != int64(len(data)) {
		t.Errorf("size = %d", size)
	}
}

func TestGetObjectRange(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.PutObject(ctx, "k", strings.NewReader("0123456789"), 10); err != nil {
		t.Fatal(err)
	}

	reader, size, err := b.GetObject(ctx, "k", 2, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	got, _ := io.ReadAll(reader)
	if string(got) != "2345" {
		t.Errorf("got %q", got)
	}
	if size != 4 {
		t.Errorf("size = %d", size)
	}
}

func TestGetObjectMissing(t *testing.T) {
	b := newTestBackend(t)

	_, _, err := b.GetObject(context.Background(), "absent", 0, 0)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStatObject(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.PutObject(ctx, "dir/image.jpg", strings.NewReader("jpeg"), 4); err != nil {
		t.Fatal(err)
	}

	info, err := b.StatObject(ctx, "dir/image.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if info.Size != 4 {
		t.Errorf("size = %d", info.Size)
	}
	if info.ContentType != "image/jpeg" {
		t.Errorf("content type = %q", info.ContentType)
	}
	if info.LastModified.IsZero() {
		t.Error("last modified missing")
	}

	if _, err := b.StatObject(ctx, "absent"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteObjectIdempotent(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.PutObject(ctx, "k", strings.NewReader("x"), 1); err != nil {
		t.Fatal(err)
	}
	if err := b.DeleteObject(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	// Deleting a missing object is not an error.
	if err := b.DeleteObject(ctx, "k"); err != nil {
		t.Errorf("second delete: %v", err)
	}

	exists, err := b.ObjectExists(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("object should be gone")
	}
}

func TestCopyObject(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.PutObject(ctx, "src", strings.NewReader("payload"), 7); err != nil {
		t.Fatal(err)
	}
	if err := b.CopyObject(ctx, "src", "nested/dst"); err != nil {
		t.Fatal(err)
	}

	reader, _, err := b.GetObject(ctx, "nested/dst", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	got, _ := io.ReadAll(reader)
	if string(got) != "payload" {
		t.Errorf("got %q", got)
	}
}

func TestPutLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	b, err := New(Config{RootPath: root, CreateDirs: true})
	if err != nil {
		t.Fatal(err)
	}

	if err := b.PutObject(context.Background(), "a/b/c", strings.NewReader("x"), 1); err != nil {
		t.Fatal(err)
	}

	var leftovers []string
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && strings.Contains(info.Name(), ".tmp") {
			leftovers = append(leftovers, path)
		}
		return nil
	})
	if len(leftovers) > 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}
