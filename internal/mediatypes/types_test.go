package mediatypes

import "testing"

func TestGetFileType(t *testing.T) {
	tests := []struct {
		key  string
		want FileType
	}{
		{"photos/IMG_0001.jpg", FileTypeImage},
		{"photos/IMG_0001.JPG", FileTypeImage},
		{"photos/capture.heic", FileTypeImage},
		{"photos/capture.avif", FileTypeImage},
		{"photos/IMG_0001.mov", FileTypeVideo},
		{"photos/clip.mp4", FileTypeVideo},
		{"notes/readme.txt", FileTypeOther},
		{"noextension", FileTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := GetFileType(tt.key); got != tt.want {
				t.Errorf("GetFileType(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestGetMimeType(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"a.jpg", "image/jpeg"},
		{"a.webp", "image/webp"},
		{"a.mov", "video/quicktime"},
		{"a.xyz", "application/octet-stream"},
	}

	for _, tt := range tests {
		if got := GetMimeType(tt.key); got != tt.want {
			t.Errorf("GetMimeType(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestIsHighEfficiency(t *testing.T) {
	if !IsHighEfficiency("x/y.HEIC") {
		t.Error("IsHighEfficiency(.HEIC) = false, want true")
	}
	if IsHighEfficiency("x/y.jpg") {
		t.Error("IsHighEfficiency(.jpg) = true, want false")
	}
}
