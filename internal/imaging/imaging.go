package imaging

import (
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrNotImage = errors.New("file is not a supported image")

// Extensions missing from the builtin mime table on minimal hosts. SAR
// products are commonly delivered as GeoTIFF.
var extensionTypes = map[string]string{
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

var formatTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"webp": "image/webp",
}

type Info struct {
	Format      string
	ContentType string
	Width       int
	Height      int
}

// TypeByExtension maps a file name to an image mime type, or "" if unknown.
func TypeByExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "image/") {
		return t
	}
	return ""
}

// ResolveType returns the effective mime type of an upload. A declared image/*
// type wins; an empty or application/octet-stream declaration falls back to
// the file extension. Anything else is ErrNotImage.
func ResolveType(declared, name string) (string, error) {
	mediaType := ""
	if declared != "" {
		parsed, _, err := mime.ParseMediaType(declared)
		if err != nil {
			return "", fmt.Errorf("invalid content type %q: %w", declared, ErrNotImage)
		}
		mediaType = strings.ToLower(parsed)
	}

	if strings.HasPrefix(mediaType, "image/") {
		return mediaType, nil
	}

	if mediaType == "" || mediaType == "application/octet-stream" {
		if t := TypeByExtension(name); t != "" {
			return t, nil
		}
	}

	if mediaType == "" {
		return "", fmt.Errorf("%q has no image type: %w", name, ErrNotImage)
	}
	return "", fmt.Errorf("content type %q: %w", mediaType, ErrNotImage)
}

// Verify decodes the image header from r. Only the header is read.
func Verify(r io.Reader) (Info, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return Info{}, fmt.Errorf("decode image header: %v: %w", err, ErrNotImage)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, fmt.Errorf("invalid dimensions %dx%d: %w", cfg.Width, cfg.Height, ErrNotImage)
	}
	return Info{
		Format:      format,
		ContentType: formatTypes[format],
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}

// ExtensionForType returns a file extension, including the dot, for an image
// mime type.
func ExtensionForType(contentType string) string {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tif"
	case "image/webp":
		return ".webp"
	}
	return ""
}
