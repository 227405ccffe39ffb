package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/skillforge/assetengine/internal/model"
	"github.com/skillforge/assetengine/internal/storage"
)

// fakeBackend is an in-memory storage.Backend with injectable failures.
type fakeBackend struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time

	putErr    error
	deleteErr error
	statErr   error
	getErr    error

	puts    []string
	deletes []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		objects:  make(map[string][]byte),
		modified: make(map[string]time.Time),
	}
}

func (b *fakeBackend) GetObject(_ context.Context, key string, offset, length int64) (io.ReadCloser, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return nil, 0, b.getErr
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, 0, fmt.Errorf("get %s: %w", key, storage.ErrNotFound)
	}
	if offset == 0 && length == 0 {
		return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
	}
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), end - offset, nil
}

func (b *fakeBackend) PutObject(_ context.Context, key string, body io.Reader, _ int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.objects[key] = data
	b.modified[key] = time.Now()
	b.puts = append(b.puts, key)
	return nil
}

func (b *fakeBackend) StatObject(_ context.Context, key string) (*storage.ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.statErr != nil {
		return nil, b.statErr
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("stat %s: %w", key, storage.ErrNotFound)
	}
	return &storage.ObjectInfo{
		Key:          key,
		Size:         int64(len(data)),
		LastModified: b.modified[key],
	}, nil
}

func (b *fakeBackend) DeleteObject(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.objects, key)
	delete(b.modified, key)
	b.deletes = append(b.deletes, key)
	return nil
}

func (b *fakeBackend) CopyObject(_ context.Context, srcKey, dstKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[srcKey]
	if !ok {
		return fmt.Errorf("copy %s: %w", srcKey, storage.ErrNotFound)
	}
	b.objects[dstKey] = append([]byte(nil), data...)
	b.modified[dstKey] = time.Now()
	return nil
}

func (b *fakeBackend) ObjectExists(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok, nil
}

func (b *fakeBackend) Type() string { return "fake" }
func (b *fakeBackend) Close() error { return nil }

func (b *fakeBackend) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

func (b *fakeBackend) set(key string, data []byte, modified time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	b.modified[key] = modified
}

// fakeGateway is an in-memory MetadataGateway. Transactions apply presence
// writes only on Commit so ordering bugs surface.
type fakeGateway struct {
	mu       sync.Mutex
	entities map[string]*model.Entity

	beginErr    error
	setErr      error
	clearErr    error
	commitErr   error
	otherClaims int
}

func newFakeGateway(entities ...*model.Entity) *fakeGateway {
	g := &fakeGateway{entities: make(map[string]*model.Entity)}
	for _, e := range entities {
		g.entities[e.Type+"/"+e.ID] = e
	}
	return g
}

func (g *fakeGateway) GetEntity(_ context.Context, entityType, entityID string) (*model.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entities[entityType+"/"+entityID]
	if !ok {
		return nil, NotFoundError("entity_not_found", entityType+" "+entityID+" does not exist")
	}
	copied := *e
	return &copied, nil
}

func (g *fakeGateway) Begin(_ context.Context) (EntityTx, error) {
	if g.beginErr != nil {
		return nil, g.beginErr
	}
	return &fakeTx{g: g}, nil
}

func (g *fakeGateway) CountOtherDocumentClaims(_ context.Context, _, _, _ string) (int, error) {
	return g.otherClaims, nil
}

type pendingWrite struct {
	entityType string
	entityID   string
	assetType  model.AssetType
	filename   string
	clear      bool
}

type fakeTx struct {
	g          *fakeGateway
	pending    []pendingWrite
	committed  bool
	rolledBack bool
}

func (t *fakeTx) SetAsset(_ context.Context, entityType, entityID string, assetType model.AssetType, filename string) error {
	if t.g.setErr != nil {
		return t.g.setErr
	}
	t.pending = append(t.pending, pendingWrite{entityType, entityID, assetType, filename, false})
	return nil
}

func (t *fakeTx) ClearAsset(_ context.Context, entityType, entityID string, assetType model.AssetType) error {
	if t.g.clearErr != nil {
		return t.g.clearErr
	}
	t.pending = append(t.pending, pendingWrite{entityType, entityID, assetType, "", true})
	return nil
}

func (t *fakeTx) Commit() error {
	if t.g.commitErr != nil {
		return t.g.commitErr
	}
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	for _, w := range t.pending {
		e, ok := t.g.entities[w.entityType+"/"+w.entityID]
		if !ok {
			return NotFoundError("entity_not_found", "no such entity")
		}
		switch w.assetType {
		case model.AssetDocument:
			if w.clear {
				e.DeclaredFilename = nil
			} else {
				name := w.filename
				e.DeclaredFilename = &name
			}
		case model.AssetImage:
			e.HasImage = !w.clear
		case model.AssetVideo:
			e.HasVideo = !w.clear
		}
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback() error {
	t.rolledBack = true
	t.pending = nil
	return nil
}

func strptr(s string) *string { return &s }
