package mediatypes

import (
	"path/filepath"
	"strings"
)

// FileType represents the classification of a stored object.
type FileType string

const (
	// FileTypeImage represents a still image object.
	FileTypeImage FileType = "image"
	// FileTypeVideo represents a video object.
	FileTypeVideo FileType = "video"
	// FileTypeOther represents an unknown or unsupported object type.
	FileTypeOther FileType = "other"
)

// ImageExtensions maps file extensions to whether they are supported image formats.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
	".heic": true,
	".heif": true,
	".hif":  true,
	".avif": true,
}

// VideoExtensions maps file extensions to whether they are supported video formats.
// Motion-photo companions are almost always .mov or .mp4, but the full set is
// accepted when scanning for candidates.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".m4v":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
	".3gp":  true,
}

// HEICExtensions maps the high-efficiency container extensions that need
// transcoding to JPEG before broad consumption.
var HEICExtensions = map[string]bool{
	".heic": true,
	".heif": true,
	".hif":  true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".hif":  "image/heif",
	".avif": "image/avif",

	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".m4v":  "video/x-m4v",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".3gp":  "video/3gpp",
}

// GetFileType returns the FileType for a given storage key.
func GetFileType(key string) FileType {
	ext := strings.ToLower(filepath.Ext(key))
	if ImageExtensions[ext] {
		return FileTypeImage
	}
	if VideoExtensions[ext] {
		return FileTypeVideo
	}
	return FileTypeOther
}

// GetMimeType returns the MIME type for a given storage key.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsHighEfficiency returns true if the key names a HEIC/HEIF container.
func IsHighEfficiency(key string) bool {
	return HEICExtensions[strings.ToLower(filepath.Ext(key))]
}
