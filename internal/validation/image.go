// Package validation checks user input before anything is persisted: uploaded
// image files, identifiers taken from the URL, and the onboarding form.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
)

// MaxLogoSize is the default upper bound for an organization logo (2 MiB).
const MaxLogoSize = 2 << 20

var (
	// ErrUnsupportedImageType is returned for content types outside the logo allow-list
	// or files whose bytes do not match the declared type.
	ErrUnsupportedImageType = errors.New("unsupported image type")
	// ErrImageTooLarge is returned when the file exceeds the configured limit.
	ErrImageTooLarge = errors.New("image too large")
	// ErrEmptyImage is returned for zero-byte uploads.
	ErrEmptyImage = errors.New("image is empty")
	// ErrUnsafeSVG is returned for SVG documents carrying scripts or event handlers.
	ErrUnsafeSVG = errors.New("svg contains active content")
)

// logoExtensions maps each accepted logo content type to its object extension.
var logoExtensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/svg+xml": ".svg",
	"image/webp":    ".webp",
}

// AllowedLogoTypes lists the accepted logo content types.
func AllowedLogoTypes() []string {
	return []string{"image/png", "image/jpeg", "image/svg+xml", "image/webp"}
}

// Image is a validated upload.
type Image struct {
	ContentType string
	Extension   string
}

// ValidateLogo checks data against the declared content type. Raster formats must
// sniff as the declared type; SVG must look like an SVG document without scripts.
func ValidateLogo(data []byte, declared string, maxSize int64) (*Image, error) {
	if maxSize <= 0 {
		maxSize = MaxLogoSize
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: maximum size is %d bytes", ErrImageTooLarge, maxSize)
	}

	contentType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedImageType, declared)
	}
	ext, ok := logoExtensions[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImageType, contentType)
	}

	if contentType == "image/svg+xml" {
		if err := validateSVG(data); err != nil {
			return nil, err
		}
	} else if sniffed := http.DetectContentType(data); sniffed != contentType {
		return nil, fmt.Errorf("%w: content is %s, declared %s", ErrUnsupportedImageType, sniffed, contentType)
	}

	return &Image{ContentType: contentType, Extension: ext}, nil
}

var svgBlocked = [][]byte{[]byte("<script"), []byte("javascript:"), []byte("<foreignobject")}

func validateSVG(data []byte) error {
	lower := bytes.ToLower(data)
	if !bytes.Contains(lower, []byte("<svg")) {
		return fmt.Errorf("%w: not an svg document", ErrUnsupportedImageType)
	}
	for _, marker := range svgBlocked {
		if bytes.Contains(lower, marker) {
			return ErrUnsafeSVG
		}
	}
	if hasEventAttribute(lower) {
		return ErrUnsafeSVG
	}
	return nil
}

// hasEventAttribute looks for on*= attributes such as onload="...".
func hasEventAttribute(doc []byte) bool {
	for i := 0; i+3 < len(doc); i++ {
		if (doc[i] != ' ' && doc[i] != '\n' && doc[i] != '\t') || doc[i+1] != 'o' || doc[i+2] != 'n' {
			continue
		}
		j := i + 3
		for j < len(doc) && doc[j] >= 'a' && doc[j] <= 'z' {
			j++
		}
		for j < len(doc) && (doc[j] == ' ' || doc[j] == '\t') {
			j++
		}
		if j > i+3 && j < len(doc) && doc[j] == '=' {
			return true
		}
	}
	return false
}
