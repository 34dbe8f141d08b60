package pipeline

import (
	"reflect"
	"testing"
	"time"
)

func TestPhotoID(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"photos/trips/IMG_1234.jpg", "IMG_1234"},
		{"photos/my photo.heic", "my_photo"},
		{"sunset.png", "sunset"},
		{"photos/nested/deep/2023-05-01.jpeg", "2023-05-01"},
	}
	for _, tt := range tests {
		if got := PhotoID(tt.key); got != tt.want {
			t.Errorf("PhotoID(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestDeriveTitle(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		key  string
		exif map[string]any
		want string
	}{
		{
			name: "metadata title wins",
			key:  "photos/IMG_0001.jpg",
			exif: map[string]any{"Title": "Golden Hour"},
			want: "Golden Hour",
		},
		{
			name: "date token stripped",
			key:  "photos/2023-05-01_sunset.jpg",
			want: "sunset",
		},
		{
			name: "view count stripped",
			key:  "photos/sunset_120views.jpg",
			want: "sunset",
		},
		{
			name: "date and views and separators",
			key:  "photos/2023-05-01_city-lights_34view.jpg",
			want: "city lights",
		},
		{
			name: "all tokens stripped falls back to filename",
			key:  "photos/2023-05-01.jpg",
			want: "2023-05-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := DeriveInfo(tt.key, tt.exif, now)
			if info.Title != tt.want {
				t.Errorf("title = %q, want %q", info.Title, tt.want)
			}
		})
	}
}

func TestDeriveDate(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("exif date preferred", func(t *testing.T) {
		info := DeriveInfo("photos/x.jpg", map[string]any{
			"DateTimeOriginal": "2022:11/23 was not a date",
		}, now)
		if !info.DateTaken.Equal(now) {
			t.Errorf("unparseable exif date should fall through, got %v", info.DateTaken)
		}

		info = DeriveInfo("photos/x.jpg", map[string]any{
			"DateTimeOriginal": "2022:11:23 14:30:00",
		}, now)
		want := time.Date(2022, 11, 23, 14, 30, 0, 0, time.UTC)
		if !info.DateTaken.Equal(want) {
			t.Errorf("date = %v, want %v", info.DateTaken, want)
		}
	})

	t.Run("filename date fallback", func(t *testing.T) {
		info := DeriveInfo("photos/2023-05-01_sunset.jpg", nil, now)
		want := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
		if !info.DateTaken.Equal(want) {
			t.Errorf("date = %v, want %v", info.DateTaken, want)
		}
	})

	t.Run("now as last resort", func(t *testing.T) {
		info := DeriveInfo("photos/sunset.jpg", nil, now)
		if !info.DateTaken.Equal(now) {
			t.Errorf("date = %v, want now", info.DateTaken)
		}
	})
}

func TestDeriveTags(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		key  string
		exif map[string]any
		want []string
	}{
		{
			name: "exif subject preferred",
			key:  "photos/trips/x.jpg",
			exif: map[string]any{"Subject": []any{"beach", "summer"}},
			want: []string{"beach", "summer"},
		},
		{
			name: "keywords appended to subject",
			key:  "photos/trips/x.jpg",
			exif: map[string]any{"Subject": "beach", "Keywords": "summer"},
			want: []string{"beach", "summer"},
		},
		{
			name: "path segments under photos root",
			key:  "photos/japan/tokyo/x.jpg",
			want: []string{"japan", "tokyo"},
		},
		{
			name: "photos root alone yields none",
			key:  "photos/x.jpg",
			want: nil,
		},
		{
			name: "bare filename yields none",
			key:  "x.jpg",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := DeriveInfo(tt.key, tt.exif, now)
			if !reflect.DeepEqual(info.Tags, tt.want) {
				t.Errorf("tags = %v, want %v", info.Tags, tt.want)
			}
		})
	}
}
