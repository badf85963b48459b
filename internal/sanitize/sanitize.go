// Package sanitize derives safe on-disk filenames from client-supplied
// names. Browsers occasionally deliver UTF-8 names that were mangled through
// a Latin-1 round trip (common with Korean filenames), so a recovery pass
// re-decodes them before the character whitelist is applied.
package sanitize

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const maxBaseLen = 50

var (
	// Word characters, whitespace, Hangul syllables and jamo, and a few
	// filename-safe punctuation marks survive; everything else is stripped.
	disallowed = regexp.MustCompile(`[^\w\s가-힣ㄱ-ㅎㅏ-ㅣ\-_.()]`)
	whitespace = regexp.MustCompile(`\s+`)
	// High-Latin letters in a supposedly UTF-8 name are the usual symptom of
	// a mis-decoded multibyte sequence.
	highLatin = regexp.MustCompile("[À-ÿ]")
)

// Filename returns the storage name for a client-supplied original name:
// cleaned base plus the original extension, lower-cased. A name whose base
// cleans down to nothing yields just the extension (a file named ".jpg"),
// matching the historical behavior. No uniqueness suffix is added; uploads
// with colliding sanitized names overwrite each other.
func Filename(original string) string {
	name := recoverEncoding(original)

	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(name, filepath.Ext(name))

	base = disallowed.ReplaceAllString(base, "")
	base = whitespace.ReplaceAllString(base, "_")
	base = strings.TrimSpace(base)
	if r := []rune(base); len(r) > maxBaseLen {
		base = string(r[:maxBaseLen])
	}

	return base + ext
}

// recoverEncoding undoes a Latin-1 mis-decode when the name carries the
// telltale signs (replacement character or high-Latin runs). On any failure
// the raw name is kept; a bad filename must never fail an upload.
func recoverEncoding(name string) string {
	if !strings.ContainsRune(name, utf8.RuneError) && !highLatin.MatchString(name) {
		return name
	}
	raw, err := charmap.ISO8859_1.NewEncoder().String(name)
	if err != nil {
		slog.Debug("filename encoding recovery failed, keeping raw name", "name", name, "error", err)
		return name
	}
	if !utf8.ValidString(raw) {
		return name
	}
	return raw
}
