package api

import (
	"testing"
)

func TestContentDispositionASCII(t *testing.T) {
	got := contentDisposition("attachment", "notes.pdf")
	want := `attachment; filename="notes.pdf"`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestContentDispositionUnicode(t *testing.T) {
	got := contentDisposition("inline", "résumé.pdf")
	want := `inline; filename="r_sum_.pdf"; filename*=UTF-8''r%C3%A9sum%C3%A9.pdf`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestContentDispositionQuotesEscaped(t *testing.T) {
	got := contentDisposition("attachment", `my"file.pdf`)
	want := `attachment; filename="my_file.pdf"; filename*=UTF-8''my%22file.pdf`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestContentDispositionSpaces(t *testing.T) {
	// Spaces survive the quoted fallback but must be percent-encoded in
	// the extended form.
	got := contentDisposition("attachment", "course notes.pdf")
	want := `attachment; filename="course notes.pdf"; filename*=UTF-8''course%20notes.pdf`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
