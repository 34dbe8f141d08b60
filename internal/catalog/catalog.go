package catalog

import (
	"context"
	"time"
)

// Photo is the catalog-ready record produced by a successful pipeline run.
type Photo struct {
	ID          string
	Title       string
	Description string
	DateTaken   time.Time
	Tags        []string

	Width       int
	Height      int
	AspectRatio float64

	StorageKey    string
	JpegKey       string // set when a transcoded JPEG sibling was persisted
	ThumbnailKey  string
	OriginalURL   string
	ThumbnailURL  string
	ThumbnailHash string // hex-encoded perceptual hash

	Exif map[string]any

	Latitude     float64
	Longitude    float64
	Country      string
	City         string
	LocationName string
	HasLocation  bool

	LivePhotoVideoKey string
	LivePhotoVideoURL string
	IsLivePhoto       bool

	FileSize     int64
	LastModified time.Time
}

// LivePhotoFields is the pairing data a motion-video task attaches to an
// existing photo record.
type LivePhotoFields struct {
	VideoKey string
	VideoURL string
}

// Catalog is the collaborator that receives finished records.
type Catalog interface {
	// Insert stores a new photo record, replacing any record with the
	// same id (re-processing the same storage key is idempotent).
	Insert(ctx context.Context, photo *Photo) error

	// UpdateLivePhotoFields attaches motion-photo pairing data to the
	// record with the given photo id.
	UpdateLivePhotoFields(ctx context.Context, photoID string, fields LivePhotoFields) error

	// Get returns a photo record by id, or ErrPhotoNotFound.
	Get(ctx context.Context, photoID string) (*Photo, error)
}
