package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"photo-ingest/internal/logging"
)

const defaultTimeout = 5 * time.Second

// ErrPhotoNotFound is returned when a photo id does not exist.
var ErrPhotoNotFound = errors.New("photo not found")

// SQLiteCatalog is a Catalog backed by a SQLite database.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens (or creates) the catalog database at dbPath.
func NewSQLiteCatalog(ctx context.Context, dbPath string) (*SQLiteCatalog, error) {
	logging.Info("Catalog database path: %s", dbPath)

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close catalog database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to catalog database: %w", err)
	}

	c := &SQLiteCatalog{db: db}
	if err := c.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close catalog database after init failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	return c, nil
}

func (c *SQLiteCatalog) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS photos (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		date_taken INTEGER,
		tags TEXT,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		aspect_ratio REAL NOT NULL,
		storage_key TEXT NOT NULL,
		jpeg_key TEXT,
		thumbnail_key TEXT,
		original_url TEXT,
		thumbnail_url TEXT,
		thumbnail_hash TEXT,
		exif TEXT,
		latitude REAL,
		longitude REAL,
		country TEXT,
		city TEXT,
		location_name TEXT,
		has_location INTEGER NOT NULL DEFAULT 0,
		live_photo_video_key TEXT,
		live_photo_video_url TEXT,
		is_live_photo INTEGER NOT NULL DEFAULT 0,
		file_size INTEGER,
		last_modified INTEGER,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_photos_storage_key ON photos(storage_key);
	CREATE INDEX IF NOT EXISTS idx_photos_date_taken ON photos(date_taken);
	`

	initCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	_, err := c.db.ExecContext(initCtx, schema)
	return err
}

// Close closes the underlying database.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

// Insert stores a photo record, replacing any existing record with the
// same id so re-processing stays idempotent.
func (c *SQLiteCatalog) Insert(ctx context.Context, photo *Photo) error {
	exifJSON := "{}"
	if photo.Exif != nil {
		data, err := json.Marshal(photo.Exif)
		if err != nil {
			return fmt.Errorf("failed to encode exif for %s: %w", photo.ID, err)
		}
		exifJSON = string(data)
	}

	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := c.db.ExecContext(opCtx, `
		INSERT OR REPLACE INTO photos (
			id, title, description, date_taken, tags,
			width, height, aspect_ratio,
			storage_key, jpeg_key, thumbnail_key, original_url, thumbnail_url, thumbnail_hash,
			exif, latitude, longitude, country, city, location_name, has_location,
			live_photo_video_key, live_photo_video_url, is_live_photo,
			file_size, last_modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		photo.ID, photo.Title, photo.Description, unixOrNull(photo.DateTaken), strings.Join(photo.Tags, ","),
		photo.Width, photo.Height, photo.AspectRatio,
		photo.StorageKey, photo.JpegKey, photo.ThumbnailKey, photo.OriginalURL, photo.ThumbnailURL, photo.ThumbnailHash,
		exifJSON, photo.Latitude, photo.Longitude, photo.Country, photo.City, photo.LocationName, boolToInt(photo.HasLocation),
		photo.LivePhotoVideoKey, photo.LivePhotoVideoURL, boolToInt(photo.IsLivePhoto),
		photo.FileSize, unixOrNull(photo.LastModified))
	if err != nil {
		return fmt.Errorf("failed to insert photo %s: %w", photo.ID, err)
	}

	logging.Debug("Catalog insert: %s (%s)", photo.ID, photo.StorageKey)
	return nil
}

// UpdateLivePhotoFields attaches pairing data to an existing record.
func (c *SQLiteCatalog) UpdateLivePhotoFields(ctx context.Context, photoID string, fields LivePhotoFields) error {
	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := c.db.ExecContext(opCtx, `
		UPDATE photos
		SET live_photo_video_key = ?, live_photo_video_url = ?, is_live_photo = 1
		WHERE id = ?`,
		fields.VideoKey, fields.VideoURL, photoID)
	if err != nil {
		return fmt.Errorf("failed to update live photo fields for %s: %w", photoID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrPhotoNotFound, photoID)
	}
	return nil
}

// Get returns a photo record by id.
func (c *SQLiteCatalog) Get(ctx context.Context, photoID string) (*Photo, error) {
	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := c.db.QueryRowContext(opCtx, `
		SELECT id, title, COALESCE(description, ''), COALESCE(date_taken, 0), COALESCE(tags, ''),
			width, height, aspect_ratio,
			storage_key, COALESCE(jpeg_key, ''), COALESCE(thumbnail_key, ''),
			COALESCE(original_url, ''), COALESCE(thumbnail_url, ''), COALESCE(thumbnail_hash, ''),
			COALESCE(exif, '{}'), COALESCE(latitude, 0), COALESCE(longitude, 0),
			COALESCE(country, ''), COALESCE(city, ''), COALESCE(location_name, ''), has_location,
			COALESCE(live_photo_video_key, ''), COALESCE(live_photo_video_url, ''), is_live_photo,
			COALESCE(file_size, 0), COALESCE(last_modified, 0)
		FROM photos WHERE id = ?`, photoID)

	var p Photo
	var dateTaken, lastModified int64
	var tags, exifJSON string
	var hasLocation, isLivePhoto int
	err := row.Scan(&p.ID, &p.Title, &p.Description, &dateTaken, &tags,
		&p.Width, &p.Height, &p.AspectRatio,
		&p.StorageKey, &p.JpegKey, &p.ThumbnailKey,
		&p.OriginalURL, &p.ThumbnailURL, &p.ThumbnailHash,
		&exifJSON, &p.Latitude, &p.Longitude,
		&p.Country, &p.City, &p.LocationName, &hasLocation,
		&p.LivePhotoVideoKey, &p.LivePhotoVideoURL, &isLivePhoto,
		&p.FileSize, &lastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPhotoNotFound, photoID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load photo %s: %w", photoID, err)
	}

	if dateTaken != 0 {
		p.DateTaken = time.Unix(dateTaken, 0)
	}
	if lastModified != 0 {
		p.LastModified = time.Unix(lastModified, 0)
	}
	if tags != "" {
		p.Tags = strings.Split(tags, ",")
	}
	if err := json.Unmarshal([]byte(exifJSON), &p.Exif); err != nil {
		logging.Warn("failed to decode exif for photo %s: %v", photoID, err)
	}
	p.HasLocation = hasLocation == 1
	p.IsLivePhoto = isLivePhoto == 1
	return &p, nil
}

// FindByStorageKey returns the photo record for a storage key, or
// ErrPhotoNotFound. Motion-video tasks use this to locate their still.
func (c *SQLiteCatalog) FindByStorageKey(ctx context.Context, storageKey string) (*Photo, error) {
	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var id string
	err := c.db.QueryRowContext(opCtx,
		`SELECT id FROM photos WHERE storage_key = ?`, storageKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: storage key %s", ErrPhotoNotFound, storageKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up photo by storage key %s: %w", storageKey, err)
	}
	return c.Get(ctx, id)
}

func unixOrNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
