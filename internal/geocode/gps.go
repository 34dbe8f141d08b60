package geocode

import (
	"fmt"
	"regexp"
	"strconv"
)

var coordPattern = regexp.MustCompile(`([-+]?\d+\.?\d*)[°,\s]+([-+]?\d+\.?\d*)`)

// ParseGPS extracts decimal-degree coordinates from curated exif fields.
// It prefers the numeric GPSLatitude/GPSLongitude pair, falls back to the
// combined GPSCoordinates string, and applies hemisphere sign correction
// from the reference fields (south and west are negative). The boolean is
// false when no usable coordinates are present.
func ParseGPS(exif map[string]any) (lat, lon float64, ok bool) {
	if exif == nil {
		return 0, 0, false
	}

	lat, latOK := toFloat(exif["GPSLatitude"])
	lon, lonOK := toFloat(exif["GPSLongitude"])

	if !latOK || !lonOK {
		if combined, cOK := exif["GPSCoordinates"].(string); cOK {
			if match := coordPattern.FindStringSubmatch(combined); match != nil {
				lat, _ = strconv.ParseFloat(match[1], 64)
				lon, _ = strconv.ParseFloat(match[2], 64)
				latOK, lonOK = true, true
			}
		}
	}
	if !latOK || !lonOK {
		return 0, 0, false
	}
	if lat == 0 && lon == 0 {
		return 0, 0, false
	}

	if ref, _ := exif["GPSLatitudeRef"].(string); ref == "S" && lat > 0 {
		lat = -lat
	}
	if ref, _ := exif["GPSLongitudeRef"].(string); ref == "W" && lon > 0 {
		lon = -lon
	}
	return lat, lon, true
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	case fmt.Stringer:
		f, err := strconv.ParseFloat(v.String(), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
