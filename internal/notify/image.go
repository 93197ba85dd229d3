package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"

	"notiq/internal/upload"
)

// stripDataURI removes an optional "data:<mime>;base64," prefix. Applying
// it twice is a no-op.
func stripDataURI(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	i := strings.Index(s, "base64,")
	if i < 0 {
		return s
	}
	return s[i+len("base64,"):]
}

// decodeImage decodes the base64 content of img into raw bytes.
func decodeImage(img Image) ([]byte, error) {
	raw := strings.TrimSpace(stripDataURI(img.Base64))
	if raw == "" {
		return nil, ErrEmptyImage
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("notify: decode image %q: %w", img.Filename, err)
	}
	return b, nil
}

// contentTypeFor infers the MIME type from the filename extension.
// Unknown extensions fall back to png, matching what the render layer
// produces by default.
func contentTypeFor(filename string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(filename), ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "svg":
		return "image/svg+xml"
	case "png":
		return "image/png"
	default:
		return "image/png"
	}
}

// imageFilename returns a usable filename for img, defaulting by index.
func imageFilename(img Image, idx int) string {
	if img.Filename != "" {
		return img.Filename
	}
	return fmt.Sprintf("image-%d.png", idx+1)
}

// resolveImageURL normalizes img into a public URL for channels that
// cannot accept inline binaries: URL images pass through, base64 images
// are decoded and uploaded. An image with neither is a caller error.
func resolveImageURL(ctx context.Context, up upload.Uploader, img Image, idx int) (string, error) {
	if img.URL != "" {
		return img.URL, nil
	}
	if img.Base64 == "" {
		return "", ErrEmptyImage
	}
	if up == nil {
		return "", ErrNoUploader
	}
	content, err := decodeImage(img)
	if err != nil {
		return "", err
	}
	name := imageFilename(img, idx)
	return up.Upload(ctx, upload.File{
		Filename:    name,
		Content:     content,
		ContentType: contentTypeFor(name),
	})
}
