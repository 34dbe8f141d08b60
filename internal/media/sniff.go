package media

// Container formats recognized by Sniff.
const (
	FormatJPEG    = "jpeg"
	FormatPNG     = "png"
	FormatGIF     = "gif"
	FormatWebP    = "webp"
	FormatBMP     = "bmp"
	FormatTIFF    = "tiff"
	FormatHEIF    = "heif"
	FormatAVIF    = "avif"
	FormatMP4     = "mp4-container"
	FormatQT      = "quicktime"
	FormatUnknown = "unknown"
)

// Sniff identifies the container format from the object's magic bytes.
// Extensions lie often enough that the pipeline trusts the header instead.
func Sniff(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return FormatJPEG

	case len(data) >= 8 && data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return FormatPNG

	case len(data) >= 4 && data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38:
		return FormatGIF

	case len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50:
		return FormatWebP

	case len(data) >= 2 && data[0] == 0x42 && data[1] == 0x4D:
		return FormatBMP

	case len(data) >= 4 && ((data[0] == 0x49 && data[1] == 0x49 && data[2] == 0x2A && data[3] == 0x00) ||
		(data[0] == 0x4D && data[1] == 0x4D && data[2] == 0x00 && data[3] == 0x2A)):
		return FormatTIFF

	case len(data) >= 12 && data[4] == 0x66 && data[5] == 0x74 && data[6] == 0x79 && data[7] == 0x70:
		// ISO base media container; the brand distinguishes stills from video.
		brand := string(data[8:12])
		switch brand {
		case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
			return FormatHEIF
		case "avif", "avis":
			return FormatAVIF
		case "qt  ":
			return FormatQT
		default:
			return FormatMP4
		}
	}

	return FormatUnknown
}

// IsVideoContainer reports whether the sniffed format is a video container
// a motion-photo companion could live in.
func IsVideoContainer(format string) bool {
	return format == FormatMP4 || format == FormatQT
}
