package assets

import (
	"testing"

	"github.com/skillforge/assetengine/internal/model"
)

func TestResolveDocumentKey(t *testing.T) {
	k := KeyScheme{Environment: "production", Tier: "protected"}

	key := k.Resolve("file", "f-42", model.AssetDocument, "Course Notes.pdf")
	want := "production/protected/document/file/f-42/Course Notes.pdf"
	if key != want {
		t.Errorf("got %q, want %q", key, want)
	}

	// Same inputs must always yield the same key.
	if again := k.Resolve("file", "f-42", model.AssetDocument, "Course Notes.pdf"); again != key {
		t.Errorf("key not deterministic: %q vs %q", again, key)
	}
}

func TestResolveCanonicalFilenames(t *testing.T) {
	k := KeyScheme{Environment: "production", Tier: "protected"}

	// Images and videos ignore the uploaded filename entirely.
	img := k.Resolve("course", "c-1", model.AssetImage, "my holiday photo.png")
	if img != "production/protected/image/course/c-1/image.jpg" {
		t.Errorf("image key = %q", img)
	}

	vid := k.Resolve("course", "c-1", model.AssetVideo, "lecture.mov")
	if vid != "production/protected/video/course/c-1/video.mp4" {
		t.Errorf("video key = %q", vid)
	}
}

func TestResolveLegacyKey(t *testing.T) {
	k := KeyScheme{Environment: "production", Tier: "protected"}

	key := k.ResolveLegacy("file", "f-42", "notes.pdf")
	if key != "production/protected/undefined/file/f-42/notes.pdf" {
		t.Errorf("legacy key = %q", key)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"notes.pdf", "notes.pdf"},
		{"../../etc/passwd", "passwd"},
		{"dir\\evil.pdf", "evil.pdf"},
		{"/absolute/path.pdf", "path.pdf"},
		{"", "file"},
		{"   ", "file"},
		{".", "file"},
		{"..", "file"},
		{"résumé.pdf", "résumé.pdf"},
	}
	for _, c := range cases {
		if got := SanitizeFilename(c.in); got != c.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
