package writer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// suppliedSlugPattern is the alphabet generateSlug produces. Slugs end up in
// URLs and in cache filenames, so writer-supplied overrides outside it are
// rejected rather than persisted.
var suppliedSlugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

func validSlug(slug string) bool {
	return suppliedSlugPattern.MatchString(slug)
}

// generateSlug derives a URL-safe slug from a title and appends a short
// random suffix. The suffix makes collisions vanishingly unlikely, but the
// slug column still carries a unique constraint; an insert conflict is
// handled, not assumed impossible.
func generateSlug(title string) string {
	base := normalizeSlug(title)
	if base == "" {
		// entirely non-ASCII or punctuation-only titles
		base = "article"
	}

	u := uuid.New()
	return fmt.Sprintf("%s-%x", base, u[:3])
}

// normalizeSlug lowercases the title, strips accents, and collapses
// everything that is not a letter or digit into single hyphens.
func normalizeSlug(title string) string {
	decomposed := norm.NFD.String(strings.ToLower(title))

	var b strings.Builder
	lastHyphen := true // suppress leading hyphens
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining marks left over from decomposition
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		case r == ' ' || r == '-' || r == '_':
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}

	return strings.Trim(b.String(), "-")
}
