package geocode

import "testing"

func TestParseGPS(t *testing.T) {
	tests := []struct {
		name    string
		exif    map[string]any
		wantLat float64
		wantLon float64
		wantOK  bool
	}{
		{
			name:    "numeric pair",
			exif:    map[string]any{"GPSLatitude": 35.6595, "GPSLongitude": 139.7005},
			wantLat: 35.6595, wantLon: 139.7005, wantOK: true,
		},
		{
			name: "southern and western hemispheres",
			exif: map[string]any{
				"GPSLatitude": 33.8688, "GPSLatitudeRef": "S",
				"GPSLongitude": 151.2093, "GPSLongitudeRef": "W",
			},
			wantLat: -33.8688, wantLon: -151.2093, wantOK: true,
		},
		{
			name: "already signed values keep their sign",
			exif: map[string]any{
				"GPSLatitude": -33.8688, "GPSLatitudeRef": "S",
				"GPSLongitude": -151.2093, "GPSLongitudeRef": "W",
			},
			wantLat: -33.8688, wantLon: -151.2093, wantOK: true,
		},
		{
			name:    "string values",
			exif:    map[string]any{"GPSLatitude": "48.8566", "GPSLongitude": "2.3522"},
			wantLat: 48.8566, wantLon: 2.3522, wantOK: true,
		},
		{
			name:    "combined coordinates fallback",
			exif:    map[string]any{"GPSCoordinates": "48.8566° 2.3522°"},
			wantLat: 48.8566, wantLon: 2.3522, wantOK: true,
		},
		{
			name:   "no gps fields",
			exif:   map[string]any{"Make": "Canon"},
			wantOK: false,
		},
		{
			name:   "zero-zero treated as absent",
			exif:   map[string]any{"GPSLatitude": 0.0, "GPSLongitude": 0.0},
			wantOK: false,
		},
		{
			name:   "latitude without longitude",
			exif:   map[string]any{"GPSLatitude": 35.0},
			wantOK: false,
		},
		{
			name:   "nil map",
			exif:   nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon, ok := ParseGPS(tt.exif)
			if ok != tt.wantOK {
				t.Fatalf("ParseGPS() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if lat != tt.wantLat || lon != tt.wantLon {
				t.Errorf("ParseGPS() = (%v, %v), want (%v, %v)", lat, lon, tt.wantLat, tt.wantLon)
			}
		})
	}
}
