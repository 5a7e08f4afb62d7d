// Package capture turns page screenshots into crawl thumbnails and failure
// replay GIFs.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
)

// ErrNoFrames is returned when writing an empty replay.
var ErrNoFrames = errors.New("no frames captured")

// DefaultThumbnailWidth is the width of crawl thumbnails.
const DefaultThumbnailWidth = 320

// Thumbnail scales a PNG screenshot down to maxWidth, keeping the aspect
// ratio. Smaller images are re-encoded unchanged.
func Thumbnail(screenshot []byte, maxWidth uint) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	if maxWidth == 0 {
		maxWidth = DefaultThumbnailWidth
	}
	if uint(img.Bounds().Dx()) > maxWidth {
		img = resize.Resize(maxWidth, 0, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes data to dir/name, creating dir, and returns the path.
func WriteFile(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func decodeFrame(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}
