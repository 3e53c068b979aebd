package upload

import (
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
)

// MaxImageSize is the upload cap for cover images and avatars (5MB).
const MaxImageSize = 5 * 1024 * 1024

var allowedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

var allowedContentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
}

// ValidateImage runs the upload gate on a multipart file: size first, then
// filename extension, then the declared content type. It stops at the first
// failure and returns a message the form can show back to the writer.
//
// Extension and content type are client-supplied; DetectFormat is the check
// that looks at actual bytes.
func ValidateImage(file *multipart.FileHeader) error {
	if file.Size > MaxImageSize {
		return fmt.Errorf("Image too large! Maximum size is 5MB. Your file: %.1fMB",
			float64(file.Size)/(1024*1024))
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !contains(allowedExtensions, ext) {
		return fmt.Errorf("Invalid file type! Allowed: %s. Your file: %s",
			strings.Join(allowedExtensions, ", "), ext)
	}

	contentType := file.Header.Get("Content-Type")
	if !contains(allowedContentTypes, contentType) {
		return fmt.Errorf("Invalid image format! Allowed: JPEG, PNG, GIF, WebP. Your file: %s",
			contentType)
	}

	return nil
}

// magic byte signatures, checked against the first 8 bytes of the stream
var signatures = []struct {
	magic  []byte
	format string
}{
	{[]byte{0xff, 0xd8, 0xff}, "JPEG"},
	{[]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, "PNG"},
	{[]byte("GIF87a"), "GIF"},
	{[]byte("GIF89a"), "GIF"},
	{[]byte("RIFF"), "WebP"},
}

// DetectFormat sniffs the leading bytes of an image stream and reports the
// format they identify, or "Unknown format". The stream is rewound to the
// start on every path so it can be consumed again downstream.
func DetectFormat(r io.ReadSeeker) (string, bool) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "Unknown format", false
	}
	defer r.Seek(0, io.SeekStart)

	header := make([]byte, 8)
	n, err := r.Read(header)
	if err != nil && err != io.EOF {
		return "Unknown format", false
	}
	header = header[:n]

	for _, sig := range signatures {
		if len(header) >= len(sig.magic) && string(header[:len(sig.magic)]) == string(sig.magic) {
			return sig.format, true
		}
	}

	return "Unknown format", false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
