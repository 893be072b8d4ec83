package validation

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

var ErrInvalidFile = errors.New("invalid file")

// FileConstraints defines validation rules for file uploads
type FileConstraints struct {
	AllowedMimeTypes  map[string]bool
	AllowedExtensions map[string]bool
	MaxSize           int64
}

var (
	ImageConstraints = FileConstraints{
		AllowedMimeTypes: map[string]bool{
			"image/jpeg": true,
			"image/png":  true,
			"image/gif":  true,
			"image/webp": true,
		},
		AllowedExtensions: map[string]bool{
			".jpg":  true,
			".jpeg": true,
			".png":  true,
			".gif":  true,
			".webp": true,
		},
		MaxSize: 10 << 20,
	}

	DocumentConstraints = FileConstraints{
		AllowedMimeTypes: map[string]bool{
			"application/pdf": true,
		},
		AllowedExtensions: map[string]bool{
			".pdf": true,
		},
		MaxSize: 25 << 20,
	}

	TextConstraints = FileConstraints{
		AllowedMimeTypes: map[string]bool{
			"text/plain": true,
			"text/csv":   true,
		},
		AllowedExtensions: map[string]bool{
			".txt": true,
			".md":  true,
			".csv": true,
		},
		MaxSize: 5 << 20,
	}

	// UploadConstraints is what the generic file endpoint accepts.
	UploadConstraints = []FileConstraints{ImageConstraints, DocumentConstraints, TextConstraints}
)

// DetectFile checks an upload against the constraint sets (any match wins)
// and returns the MIME type sniffed from its first bytes. The client's
// Content-Type header is never trusted. The reader is rewound when it can seek.
func DetectFile(header *multipart.FileHeader, constraints ...FileConstraints) (string, error) {
	if len(constraints) == 0 {
		return "", fmt.Errorf("%w: no file constraints provided", ErrInvalidFile)
	}

	file, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// http.DetectContentType looks at 512 bytes at most
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	detected := baseMimeType(http.DetectContentType(buffer[:n]))
	ext := strings.ToLower(filepath.Ext(header.Filename))

	var lastErr error
	for _, c := range constraints {
		lastErr = c.check(header.Size, detected, ext)
		if lastErr == nil {
			return detected, nil
		}
	}
	return "", lastErr
}

func (c FileConstraints) check(size int64, mimeType, ext string) error {
	if size > c.MaxSize {
		return fmt.Errorf("%w: file too large, maximum size is %d MB", ErrInvalidFile, c.MaxSize/(1<<20))
	}
	if !c.AllowedMimeTypes[mimeType] {
		return fmt.Errorf("%w: file type %s is not allowed", ErrInvalidFile, mimeType)
	}
	if !c.AllowedExtensions[ext] {
		return fmt.Errorf("%w: file extension %q is not allowed", ErrInvalidFile, ext)
	}
	return nil
}

// baseMimeType drops parameters: "text/plain; charset=utf-8" -> "text/plain".
func baseMimeType(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}
