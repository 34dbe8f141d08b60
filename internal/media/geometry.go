package media

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"  // GIF decoding
	_ "image/jpeg" // JPEG decoding
	_ "image/png"  // PNG decoding

	"github.com/davidbyttow/govips/v2/vips"
	_ "golang.org/x/image/bmp"  // BMP decoding
	_ "golang.org/x/image/tiff" // TIFF decoding
	_ "golang.org/x/image/webp" // WebP decoding
)

// Geometry is the display-oriented shape of an image.
type Geometry struct {
	Width  int
	Height int
	Format string
}

// AspectRatio returns width/height, 0 when height is unknown.
func (g Geometry) AspectRatio() float64 {
	if g.Height == 0 {
		return 0
	}
	return float64(g.Width) / float64(g.Height)
}

// orientationSwapsAxes reports whether an EXIF orientation describes a
// 90-degree-rotated capture. Values 5-8 rotate; 1-4 only mirror/flip.
func orientationSwapsAxes(orientation int) bool {
	return orientation >= 5 && orientation <= 8
}

// ApplyOrientation swaps width and height when the EXIF orientation
// indicates a rotated capture, so consumers see display dimensions.
func ApplyOrientation(width, height, orientation int) (int, int) {
	if orientationSwapsAxes(orientation) {
		return height, width
	}
	return width, height
}

// ReadOrientation returns the EXIF orientation of the image, or 0 when it
// cannot be determined. Uses libvips when initialized.
func ReadOrientation(data []byte) int {
	if !IsVipsAvailable() {
		return 0
	}
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return 0
	}
	defer ref.Close()
	return ref.Orientation()
}

// ExtractGeometry decodes the image header and returns display-oriented
// dimensions, applying the EXIF orientation swap for rotated captures.
// An undecodable header or zero dimensions produce an error; the caller
// decides whether that is transient (truncated read under pressure) or a
// malformed input.
func ExtractGeometry(data []byte, orientation int) (*Geometry, error) {
	config, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	if config.Width == 0 || config.Height == 0 {
		return nil, fmt.Errorf("incomplete image metadata: %dx%d", config.Width, config.Height)
	}

	width, height := ApplyOrientation(config.Width, config.Height, orientation)
	return &Geometry{Width: width, Height: height, Format: format}, nil
}
