package media

import (
	"bytes"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"

	"photo-ingest/internal/logging"
)

const (
	// heicQualityThreshold is the input size past which transcode quality
	// drops, trading fidelity for bounded memory and CPU on huge inputs.
	heicQualityThreshold = 10 * 1024 * 1024

	heicQualityLarge   = 80
	heicQualityDefault = 95

	bitmapJpegQuality = 95
)

// HeicQuality returns the JPEG quality used when transcoding a HEIC input
// of the given size.
func HeicQuality(inputSize int) int {
	if inputSize > heicQualityThreshold {
		return heicQualityLarge
	}
	return heicQualityDefault
}

// TranscodeHeicToJpeg converts a HEIC/HEIF container to JPEG bytes with a
// size-adaptive quality setting. Requires libvips.
func TranscodeHeicToJpeg(data []byte) ([]byte, error) {
	if !IsVipsAvailable() {
		return nil, fmt.Errorf("libvips not available for HEIC transcode")
	}

	quality := HeicQuality(len(data))
	logging.Debug("Transcoding HEIC input (%d bytes) at quality %d", len(data), quality)

	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("vips failed to load HEIC image: %w", err)
	}
	defer ref.Close()

	out, _, err := ref.ExportJpeg(&vips.JpegExportParams{
		Quality:        quality,
		OptimizeCoding: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vips failed to export JPEG: %w", err)
	}
	return out, nil
}

// NormalizeBitmap decodes a legacy BMP and re-encodes it as JPEG so every
// downstream stage works on a compressed standard format.
func NormalizeBitmap(data []byte) ([]byte, error) {
	img, err := bmp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode BMP image: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(bitmapJpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to re-encode bitmap as JPEG: %w", err)
	}

	logging.Debug("Normalized BMP (%d bytes) to JPEG (%d bytes)", len(data), buf.Len())
	return buf.Bytes(), nil
}
