package attachment

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"documedix/api/internal/document"
)

var ErrNotImage = errors.New("file is not a decodable image")

// Preview returns the data URI shown for a freshly picked file. Only
// images get one.
func Preview(b *document.Blob) (string, error) {
	if b == nil || len(b.Data) == 0 {
		return "", ErrNotImage
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(b.Data))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotImage, b.Name, err)
	}
	contentType := b.ContentType
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "image/" + format
		if detected := http.DetectContentType(b.Data); strings.HasPrefix(detected, "image/") {
			contentType = detected
		}
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(b.Data), nil
}
