package parser

import (
	"strings"
	"unicode"
)

// CleanText normalises extracted text: whitespace becomes a single space,
// characters outside printable ASCII are dropped and the result is trimmed.
func CleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	pendingSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case r >= 0x20 && r <= 0x7e:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SanitizeFilename turns a product name into a file name for its image.
// Only letters, digits, space, underscore and hyphen survive. The extension is
// always .jpg whatever the server sends.
func SanitizeFilename(name string) string {
	stem := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '_' || r == '-' {
			return r
		}
		return -1
	}, name)
	if strings.TrimSpace(stem) == "" {
		stem = "image"
	}
	return stem + ".jpg"
}
