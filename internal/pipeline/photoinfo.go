package pipeline

import (
	"path"
	"regexp"
	"strings"
	"time"

	"photo-ingest/internal/logging"
)

// Info is the best-effort descriptive data for a photo. Derivation never
// fails; every field has a fallback.
type Info struct {
	Title       string
	Description string
	DateTaken   time.Time
	Tags        []string
}

var (
	dateTokenPattern  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[_-]?`)
	viewsTokenPattern = regexp.MustCompile(`(?i)[_-]?\d+views?`)
	separatorPattern  = regexp.MustCompile(`[_-]+`)
	embeddedDate      = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
)

// exiftool emits timestamps in a handful of shapes depending on the
// source; try them in decreasing specificity.
var exifDateLayouts = []string{
	"2006:01:02 15:04:05-07:00",
	"2006:01:02 15:04:05Z",
	"2006:01:02 15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// PhotoID derives the stable catalog identity from a storage key: the
// basename without extension, spaces replaced with underscores so the id
// is safe in URLs and sibling-object keys.
func PhotoID(storageKey string) string {
	base := path.Base(storageKey)
	base = strings.TrimSuffix(base, path.Ext(base))
	return strings.ReplaceAll(base, " ", "_")
}

// DeriveInfo builds descriptive info from curated metadata, falling back
// to filename and path heuristics field by field. now anchors the
// capture-date fallback when neither metadata nor the filename carries one.
func DeriveInfo(storageKey string, exif map[string]any, now time.Time) Info {
	fileName := strings.TrimSuffix(path.Base(storageKey), path.Ext(storageKey))

	info := Info{
		Title:     deriveTitle(fileName, exif),
		DateTaken: deriveDate(fileName, exif, now),
		Tags:      deriveTags(storageKey, exif),
	}
	return info
}

func deriveTitle(fileName string, exif map[string]any) string {
	if title, ok := exif["Title"].(string); ok && title != "" {
		return title
	}

	title := dateTokenPattern.ReplaceAllString(fileName, "")
	title = viewsTokenPattern.ReplaceAllString(title, "")
	title = separatorPattern.ReplaceAllString(title, " ")
	title = strings.TrimSpace(title)
	if title == "" {
		// Stripping ate the whole name; keep the raw filename over nothing.
		return fileName
	}
	return title
}

func deriveDate(fileName string, exif map[string]any, now time.Time) time.Time {
	if raw, ok := exif["DateTimeOriginal"].(string); ok && raw != "" {
		for _, layout := range exifDateLayouts {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return parsed
			}
		}
		logging.Warn("Unparseable DateTimeOriginal %q, falling back to filename", raw)
	}

	if match := embeddedDate.FindString(fileName); match != "" {
		if parsed, err := time.Parse("2006-01-02", match); err == nil {
			return parsed
		}
	}
	return now
}

// deriveTags prefers metadata keywords; otherwise the directory segments
// of the storage key (under the conventional /photos root) become tags.
func deriveTags(storageKey string, exif map[string]any) []string {
	tags := append(stringsOf(exif["Subject"]), stringsOf(exif["Keywords"])...)
	if len(tags) > 0 {
		return tags
	}

	dir := path.Dir(strings.TrimPrefix(storageKey, "/"))
	if dir == "." || dir == "/" {
		return nil
	}
	dir = strings.TrimPrefix(dir, "photos")
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return nil
	}

	for _, part := range strings.Split(dir, "/") {
		if part = strings.TrimSpace(part); part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}

// stringsOf flattens a metadata value that may be a single string or a
// JSON-decoded list of strings.
func stringsOf(value any) []string {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
