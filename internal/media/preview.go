package media

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"photo-ingest/internal/logging"
)

const (
	// PreviewMaxWidth bounds the generated preview. Sources narrower than
	// this are never upscaled.
	PreviewMaxWidth = 600

	// previewQualityThreshold is the source size past which preview
	// encoding quality drops a notch.
	previewQualityThreshold = 5 * 1024 * 1024

	previewQualityDefault = 85
	previewQualityLarge   = 75

	// hash grid: 9 columns compared pairwise per row -> 8x8 = 64 bits.
	hashCols = 9
	hashRows = 8
)

// PreviewQuality returns the JPEG quality for a preview generated from a
// source of the given byte size.
func PreviewQuality(sourceSize int) int {
	if sourceSize > previewQualityThreshold {
		return previewQualityLarge
	}
	return previewQualityDefault
}

// Preview is a bounded-width rendition of a source image plus its
// perceptual hash.
type Preview struct {
	Data   []byte // JPEG bytes
	Width  int
	Height int
	Hash   string // hex-encoded 64-bit difference hash
}

// GeneratePreview decodes the source, produces a preview no wider than
// PreviewMaxWidth (never upscaling) with a size-adaptive quality, and
// computes the perceptual hash over a fixed-resolution downsample.
func GeneratePreview(data []byte) (*Preview, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image for preview: %w", err)
	}

	bounds := img.Bounds()
	preview := img
	if bounds.Dx() > PreviewMaxWidth {
		preview = imaging.Resize(img, PreviewMaxWidth, 0, imaging.Lanczos)
	}

	quality := PreviewQuality(len(data))
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, preview, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	hash := PerceptualHash(preview)

	pb := preview.Bounds()
	logging.Debug("Preview %dx%d (%d bytes, quality %d, hash %s)",
		pb.Dx(), pb.Dy(), buf.Len(), quality, hash)

	return &Preview{
		Data:   buf.Bytes(),
		Width:  pb.Dx(),
		Height: pb.Dy(),
		Hash:   hash,
	}, nil
}

// PerceptualHash computes a 64-bit difference hash: the image is reduced
// to a 9x8 grayscale grid and each bit records whether a pixel is brighter
// than its right neighbor. Deterministic and fixed-size, suitable for
// placeholders and near-duplicate checks.
func PerceptualHash(img image.Image) string {
	small := imaging.Resize(img, hashCols, hashRows, imaging.Lanczos)
	gray := imaging.Grayscale(small)

	var hash uint64
	var bit uint
	for y := 0; y < hashRows; y++ {
		for x := 0; x < hashCols-1; x++ {
			left, _, _, _ := gray.At(x, y).RGBA()
			right, _, _, _ := gray.At(x+1, y).RGBA()
			if left > right {
				hash |= 1 << bit
			}
			bit++
		}
	}

	var out [8]byte
	for i := 0; i < 8; i++ {
		out[i] = byte(hash >> (uint(i) * 8))
	}
	return hex.EncodeToString(out[:])
}
