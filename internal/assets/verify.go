package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"github.com/skillforge/assetengine/internal/metrics"
	"github.com/skillforge/assetengine/internal/storage"
)

// VerifyResult compares a stored object's checksum with an expected value.
type VerifyResult struct {
	Verified   bool   `json:"verified"`
	Expected   string `json:"expected"`
	Calculated string `json:"calculated"`
}

// Verifier computes checksums of stored objects. Pure read plus hash, used
// as a post-upload check and as an on-demand audit.
type Verifier struct {
	Backend storage.Backend
}

// Verify streams the object at key through SHA-256 and compares against
// expected (hex-encoded). Returns a KindNotFound error if no object exists.
func (v *Verifier) Verify(ctx context.Context, key, expected string) (*VerifyResult, error) {
	reader, _, err := v.Backend.GetObject(ctx, key, 0, 0)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NotFoundError("object_not_found", "no object stored at "+key)
		}
		return nil, StorageError("read_failed", "object read failed").Wrap(err)
	}
	defer reader.Close()

	h := sha256.New()
	if _, err := io.Copy(h, reader); err != nil {
		return nil, StorageError("read_failed", "object stream failed").Wrap(err)
	}

	calculated := hex.EncodeToString(h.Sum(nil))
	verified := expected != "" && calculated == expected
	metrics.RecordIntegrityCheck(verified)

	return &VerifyResult{
		Verified:   verified,
		Expected:   expected,
		Calculated: calculated,
	}, nil
}
