// Package slug derives URL-safe card identifiers.
package slug

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	MaxLen      = 40
	RandomLen   = 8
	SuffixLen   = 4
	SuffixTries = 5
)

// reserved collide with top-level routes and static assets.
var reserved = map[string]bool{
	"admin": true, "register": true, "start": true, "state": true,
	"health": true, "healthz": true, "whoami": true, "cards": true, "c": true,
	"ws": true, "static": true, "assets": true, "css": true, "js": true,
	"img": true, "images": true, "favicon": true, "index": true, "viewer": true,
}

func Reserved(s string) bool { return reserved[strings.ToLower(s)] }

// FromName turns a human readable name into a slug: diacritics stripped,
// lowercased, every run of other characters collapsed to one hyphen, at most
// MaxLen characters. It may return "".
func FromName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	hyphen := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			hyphen = false
			continue
		}
		if !hyphen && b.Len() > 0 {
			b.WriteByte('-')
			hyphen = true
		}
	}

	out := strings.Trim(b.String(), "-")
	if len(out) > MaxLen {
		out = strings.TrimRight(out[:MaxLen], "-")
	}
	return out
}

// Random returns n symbols from a 62 character alphabet using crypto/rand.
func Random(n int) (string, error) {
	code := make([]byte, n)
	for i := 0; i < n; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		code[i] = alphabet[num.Int64()]
	}
	return string(code), nil
}

// Pick chooses a slug not reported as taken. With a source name it tries the
// derived slug, then up to SuffixTries suffixed variants, before falling back to
// a fully random slug.
func Pick(source string, taken func(string) bool) (string, error) {
	if base := FromName(source); base != "" && !Reserved(base) {
		if !taken(base) {
			return base, nil
		}
		for i := 0; i < SuffixTries; i++ {
			suffix, err := Random(SuffixLen)
			if err != nil {
				return "", err
			}
			candidate := base + "-" + strings.ToLower(suffix)
			if !taken(candidate) {
				return candidate, nil
			}
		}
	}

	for {
		s, err := Random(RandomLen)
		if err != nil {
			return "", err
		}
		if !taken(s) && !Reserved(s) {
			return s, nil
		}
	}
}
