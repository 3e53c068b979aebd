package upload

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store saves uploaded files under a local media root and hands back
// relative references the models persist.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

// Save writes the uploaded file under <root>/<subdir>/<year>/<month>/ with a
// random prefix so repeated uploads of the same filename never clash. It
// returns the reference to persist, relative to the media root.
func (s *Store) Save(file *multipart.FileHeader, subdir string) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	now := time.Now()
	dir := filepath.Join(subdir, fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", now.Month()))
	if err := os.MkdirAll(filepath.Join(s.root, dir), 0755); err != nil {
		return "", err
	}

	name := uuid.New().String()[:8] + "_" + sanitizeFilename(file.Filename)
	rel := filepath.Join(dir, name)

	dst, err := os.Create(filepath.Join(s.root, rel))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(filepath.Join(s.root, rel))
		return "", err
	}

	return rel, nil
}

// Delete removes a stored file by its saved reference. A missing file is not
// an error; callers treat cleanup as advisory.
func (s *Store) Delete(rel string) error {
	if rel == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.root, rel))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Path resolves a saved reference to its on-disk location.
func (s *Store) Path(rel string) string {
	return filepath.Join(s.root, rel)
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			return r
		}
		if r == ' ' {
			return '-'
		}
		return -1
	}, name)
}
