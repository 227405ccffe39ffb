package api

import (
	"strings"
)

// contentDisposition builds a Content-Disposition header value carrying both
// an ASCII-sanitized fallback filename and an RFC 5987 UTF-8 percent-encoded
// one, so non-Latin filenames survive every client.
func contentDisposition(dispositionType, filename string) string {
	fallback := asciiFallback(filename)
	encoded := encodeRFC5987(filename)

	var b strings.Builder
	b.WriteString(dispositionType)
	b.WriteString(`; filename="`)
	b.WriteString(fallback)
	b.WriteString(`"`)
	if encoded != fallback {
		b.WriteString(`; filename*=UTF-8''`)
		b.WriteString(encoded)
	}
	return b.String()
}

// asciiFallback replaces non-ASCII and header-breaking characters with '_'.
func asciiFallback(filename string) string {
	var b strings.Builder
	for _, r := range filename {
		switch {
		case r == '"' || r == '\\':
			b.WriteByte('_')
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}

// encodeRFC5987 percent-encodes a UTF-8 string per RFC 5987 attr-char rules.
func encodeRFC5987(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0xf])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '&', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}
