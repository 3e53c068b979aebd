// Package cache keeps rendered article bodies on disk so the markdown
// pipeline only runs when content actually changes. The cache filename embeds
// a fingerprint of the markdown source: an edited article misses naturally
// and the stale file is swept on the next write.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/cespare/xxhash/v2"
)

var cacheRoot = "cache"

// slugPattern is the alphabet slugs are generated and validated in. Cache
// filenames embed the slug, so anything outside it could escape the cache
// root or break the sweep glob; such slugs are never cached at all.
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

func validSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// SetRoot points the cache at a directory; defaults to ./cache.
func SetRoot(dir string) {
	if dir != "" {
		cacheRoot = dir
	}
}

// GetCachePath returns the cache file path for an article body.
func GetCachePath(slug, content string) string {
	return filepath.Join(cacheRoot, fmt.Sprintf("%s_%s.html", slug, fingerprint(content)))
}

// fingerprint generates an xxHash fingerprint for the markdown source.
func fingerprint(content string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(content))
}

// WriteCache stores rendered HTML for an article body, replacing any cached
// render of an older version of the same article.
func WriteCache(slug, content, html string) error {
	if !validSlug(slug) {
		return fmt.Errorf("unsafe slug %q", slug)
	}

	if err := os.MkdirAll(cacheRoot, 0755); err != nil {
		return err
	}

	// sweep renders of previous versions first
	if err := ClearCache(slug); err != nil {
		return err
	}

	return os.WriteFile(GetCachePath(slug, content), []byte(html), 0644)
}

// ReadCache returns the cached render for exactly this version of the
// article body, if present.
func ReadCache(slug, content string) (string, bool) {
	if !validSlug(slug) {
		return "", false
	}

	data, err := os.ReadFile(GetCachePath(slug, content))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// ClearCache removes every cached render for a slug, current version
// included. Used on article update and delete.
func ClearCache(slug string) error {
	// nothing with an unsafe slug can have been written
	if !validSlug(slug) {
		return nil
	}

	matches, err := filepath.Glob(filepath.Join(cacheRoot, slug+"_*.html"))
	if err != nil {
		return err
	}
	for _, match := range matches {
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
