package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"reflect"
	"testing"
	"time"

	"golang.org/x/image/tiff"

	"photo-ingest/internal/catalog"
	"photo-ingest/internal/geocode"
	"photo-ingest/internal/queue"
	"photo-ingest/internal/storage"
)

type fakeExtractor struct {
	fields map[string]any
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, data []byte) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fields, nil
}

type fakeGeocoder struct {
	loc   *geocode.Location
	err   error
	calls int
}

func (f *fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (*geocode.Location, error) {
	f.calls++
	return f.loc, f.err
}

func newTestPipeline(t *testing.T, extractor *fakeExtractor, geocoder *fakeGeocoder) (*Pipeline, *storage.LocalStore, *catalog.SQLiteCatalog) {
	t.Helper()

	store, err := storage.NewLocalStore(t.TempDir(), "http://localhost/files")
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	cat, err := catalog.NewSQLiteCatalog(context.Background(), t.TempDir()+"/catalog.db")
	if err != nil {
		t.Fatalf("NewSQLiteCatalog() error = %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	if extractor == nil {
		extractor = &fakeExtractor{fields: map[string]any{}}
	}
	var provider geocode.Provider
	if geocoder != nil {
		provider = geocoder
	}
	return New(store, cat, extractor, provider), store, cat
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func tiffBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, nil); err != nil {
		t.Fatalf("tiff.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func mp4Bytes(brand string) []byte {
	data := []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p'}
	return append(append(data, []byte(brand)...), make([]byte, 8)...)
}

func put(t *testing.T, store *storage.LocalStore, key string, data []byte, contentType string) {
	t.Helper()
	if _, err := store.Put(context.Background(), key, data, contentType); err != nil {
		t.Fatalf("Put(%s) error = %v", key, err)
	}
}

func TestRunPhoto(t *testing.T) {
	p, store, _ := newTestPipeline(t, nil, nil)
	key := "photos/trips/2023-05-01_sunset.png"
	put(t, store, key, pngBytes(t, 320, 240), "image/png")

	var stages []string
	res, err := p.Run(context.Background(), queue.Payload{Kind: queue.KindPhoto, StorageKey: key},
		func(stage string) { stages = append(stages, stage) })
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	photo := res.Photo
	if photo == nil {
		t.Fatal("Run() returned nil photo")
	}

	if photo.ID != "2023-05-01_sunset" {
		t.Errorf("id = %q", photo.ID)
	}
	if photo.Title != "sunset" {
		t.Errorf("title = %q, want sunset", photo.Title)
	}
	if !reflect.DeepEqual(photo.Tags, []string{"trips"}) {
		t.Errorf("tags = %v, want [trips]", photo.Tags)
	}
	wantDate := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	if !photo.DateTaken.Equal(wantDate) {
		t.Errorf("date = %v, want %v", photo.DateTaken, wantDate)
	}
	if photo.Width != 320 || photo.Height != 240 {
		t.Errorf("geometry = %dx%d, want 320x240", photo.Width, photo.Height)
	}
	if photo.ThumbnailKey != "thumbnails/2023-05-01_sunset.jpg" {
		t.Errorf("thumbnail key = %q", photo.ThumbnailKey)
	}
	if len(photo.ThumbnailHash) != 16 {
		t.Errorf("thumbnail hash = %q, want 16 hex chars", photo.ThumbnailHash)
	}
	if photo.OriginalURL == "" || photo.ThumbnailURL == "" {
		t.Error("public URLs should be set")
	}
	if photo.HasLocation {
		t.Error("photo without GPS should not have a location")
	}

	// The persisted preview must exist in the store.
	if _, err := store.Get(context.Background(), photo.ThumbnailKey); err != nil {
		t.Errorf("thumbnail object missing: %v", err)
	}

	wantStages := []string{
		StageAcquire, StageGeometry, StageThumbnail, StageMetadata,
		StageDescribe, StageGeocode, StagePairVideo, StagePersist,
	}
	if !reflect.DeepEqual(stages, wantStages) {
		t.Errorf("stages = %v, want %v", stages, wantStages)
	}
}

func TestRunPhotoTIFF(t *testing.T) {
	p, store, _ := newTestPipeline(t, nil, nil)
	key := "photos/scans/archive-page.tif"
	put(t, store, key, tiffBytes(t, 320, 240), "image/tiff")

	res, err := p.Run(context.Background(),
		queue.Payload{Kind: queue.KindPhoto, StorageKey: key}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	photo := res.Photo
	if photo.Width != 320 || photo.Height != 240 {
		t.Errorf("geometry = %dx%d, want 320x240", photo.Width, photo.Height)
	}
	if photo.ThumbnailKey != "thumbnails/archive-page.jpg" {
		t.Errorf("thumbnail key = %q", photo.ThumbnailKey)
	}
	if _, err := store.Get(context.Background(), photo.ThumbnailKey); err != nil {
		t.Errorf("thumbnail object missing: %v", err)
	}
}

func TestRunPhotoCorruptJPEGIsMalformed(t *testing.T) {
	p, store, _ := newTestPipeline(t, nil, nil)
	// Valid JPEG signature followed by an APP0 segment whose declared length
	// is impossibly short, which the decoder rejects as a format error.
	corrupt := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x01}
	put(t, store, "photos/corrupt.jpg", corrupt, "image/jpeg")

	_, err := p.Run(context.Background(),
		queue.Payload{Kind: queue.KindPhoto, StorageKey: "photos/corrupt.jpg"}, nil)
	if !IsMalformed(err) {
		t.Fatalf("undecodable jpeg should classify as malformed, got %v", err)
	}
	if Retryable(err) {
		t.Error("broken image bytes must not be retryable")
	}
}

func TestRunPhotoMissingObject(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil, nil)

	_, err := p.Run(context.Background(),
		queue.Payload{Kind: queue.KindPhoto, StorageKey: "photos/nope.jpg"}, nil)
	if err == nil {
		t.Fatal("Run() on a missing key should fail")
	}
	if !IsNotFound(err) {
		t.Errorf("error should classify as not-found, got %v", err)
	}
	if Retryable(err) {
		t.Error("missing source must not be retryable")
	}
}

func TestRunPhotoMalformedInput(t *testing.T) {
	p, store, _ := newTestPipeline(t, nil, nil)
	put(t, store, "photos/junk.jpg", []byte("this is not an image at all"), "image/jpeg")

	_, err := p.Run(context.Background(),
		queue.Payload{Kind: queue.KindPhoto, StorageKey: "photos/junk.jpg"}, nil)
	if !IsMalformed(err) {
		t.Errorf("garbage bytes should classify as malformed, got %v", err)
	}
}

func TestRunPhotoRejectsVideoContainer(t *testing.T) {
	p, store, _ := newTestPipeline(t, nil, nil)
	put(t, store, "photos/clip.jpg", mp4Bytes("isom"), "image/jpeg")

	_, err := p.Run(context.Background(),
		queue.Payload{Kind: queue.KindPhoto, StorageKey: "photos/clip.jpg"}, nil)
	if !IsMalformed(err) {
		t.Errorf("video container in a photo task should be malformed, got %v", err)
	}
}

func TestRunPhotoGeolocates(t *testing.T) {
	extractor := &fakeExtractor{fields: map[string]any{
		"GPSLatitude":     35.6595,
		"GPSLongitude":    139.7005,
		"GPSLatitudeRef":  "N",
		"GPSLongitudeRef": "E",
	}}
	geocoder := &fakeGeocoder{loc: &geocode.Location{
		Country: "Japan", City: "Tokyo", DisplayName: "Shibuya, Tokyo, Japan",
	}}
	p, store, _ := newTestPipeline(t, extractor, geocoder)
	put(t, store, "photos/tokyo.png", pngBytes(t, 100, 80), "image/png")

	res, err := p.Run(context.Background(),
		queue.Payload{Kind: queue.KindPhoto, StorageKey: "photos/tokyo.png"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	photo := res.Photo
	if !photo.HasLocation {
		t.Fatal("photo should have a location")
	}
	if photo.Latitude != 35.6595 || photo.Longitude != 139.7005 {
		t.Errorf("coordinates = %v, %v", photo.Latitude, photo.Longitude)
	}
	if photo.Country != "Japan" || photo.City != "Tokyo" {
		t.Errorf("place = %q, %q", photo.Country, photo.City)
	}
	if geocoder.calls != 1 {
		t.Errorf("geocoder calls = %d, want 1", geocoder.calls)
	}
}

func TestRunPhotoGeocodeFailureIsAbsorbed(t *testing.T) {
	extractor := &fakeExtractor{fields: map[string]any{
		"GPSLatitude": 10.0, "GPSLongitude": 20.0,
	}}
	geocoder := &fakeGeocoder{err: errors.New("service down")}
	p, store, _ := newTestPipeline(t, extractor, geocoder)
	put(t, store, "photos/somewhere.png", pngBytes(t, 100, 80), "image/png")

	res, err := p.Run(context.Background(),
		queue.Payload{Kind: queue.KindPhoto, StorageKey: "photos/somewhere.png"}, nil)
	if err != nil {
		t.Fatalf("geocoder failure must not fail the task: %v", err)
	}
	photo := res.Photo
	if !photo.HasLocation || photo.Latitude != 10.0 {
		t.Error("parsed coordinates should survive a geocoder failure")
	}
	if photo.Country != "" || photo.City != "" {
		t.Error("place names must stay empty when the geocoder fails")
	}
}

func TestRunPhotoExtractorFailureIsAbsorbed(t *testing.T) {
	extractor := &fakeExtractor{err: errors.New("exiftool missing")}
	p, store, _ := newTestPipeline(t, extractor, nil)
	put(t, store, "photos/2023-05-01_beach.png", pngBytes(t, 100, 80), "image/png")

	res, err := p.Run(context.Background(),
		queue.Payload{Kind: queue.KindPhoto, StorageKey: "photos/2023-05-01_beach.png"}, nil)
	if err != nil {
		t.Fatalf("extractor failure must not fail the task: %v", err)
	}
	if res.Photo.Exif != nil {
		t.Error("exif should be absent when extraction fails")
	}
	if res.Photo.Title != "beach" {
		t.Errorf("filename fallback title = %q, want beach", res.Photo.Title)
	}
}

func TestRunPhotoPairsMotionVideo(t *testing.T) {
	p, store, _ := newTestPipeline(t, nil, nil)
	put(t, store, "photos/live.png", pngBytes(t, 100, 80), "image/png")
	put(t, store, "photos/live.mov", mp4Bytes("qt  "), "video/quicktime")

	res, err := p.Run(context.Background(),
		queue.Payload{Kind: queue.KindPhoto, StorageKey: "photos/live.png"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	photo := res.Photo
	if !photo.IsLivePhoto {
		t.Fatal("sibling video should mark the photo as a live photo")
	}
	if photo.LivePhotoVideoKey != "photos/live.mov" {
		t.Errorf("video key = %q", photo.LivePhotoVideoKey)
	}
	if photo.LivePhotoVideoURL == "" {
		t.Error("video URL should be set")
	}
}

func TestRunMotionVideo(t *testing.T) {
	p, store, cat := newTestPipeline(t, nil, nil)
	put(t, store, "photos/clip.png", pngBytes(t, 100, 80), "image/png")
	put(t, store, "photos/clip.mp4", mp4Bytes("isom"), "video/mp4")

	if err := cat.Insert(context.Background(), &catalog.Photo{
		ID: "clip", StorageKey: "photos/clip.png",
	}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	res, err := p.Run(context.Background(),
		queue.Payload{Kind: queue.KindMotionVideo, StorageKey: "photos/clip.mp4"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Photo != nil {
		t.Error("motion-video tasks should not return a photo record")
	}

	updated, err := cat.Get(context.Background(), "clip")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !updated.IsLivePhoto {
		t.Error("still record should be marked as a live photo")
	}
	if updated.LivePhotoVideoKey != "photos/clip.mp4" {
		t.Errorf("video key = %q", updated.LivePhotoVideoKey)
	}
}

func TestRunMotionVideoMissingVideo(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil, nil)

	_, err := p.Run(context.Background(),
		queue.Payload{Kind: queue.KindMotionVideo, StorageKey: "photos/gone.mp4"}, nil)
	if !IsNotFound(err) {
		t.Errorf("missing video object should be not-found, got %v", err)
	}
}

func TestRunMotionVideoNoCompanionStillIsRetryable(t *testing.T) {
	p, store, _ := newTestPipeline(t, nil, nil)
	put(t, store, "photos/orphan.mp4", mp4Bytes("isom"), "video/mp4")

	_, err := p.Run(context.Background(),
		queue.Payload{Kind: queue.KindMotionVideo, StorageKey: "photos/orphan.mp4"}, nil)
	if err == nil {
		t.Fatal("missing companion still should fail the attempt")
	}
	// The still may simply not be uploaded or cataloged yet, so the task
	// retries through its attempt budget rather than failing outright.
	if !Retryable(err) {
		t.Errorf("missing companion must stay retryable, got %v", err)
	}
}

func TestRunMotionVideoStillNotCatalogedIsRetryable(t *testing.T) {
	p, store, _ := newTestPipeline(t, nil, nil)
	put(t, store, "photos/early.png", pngBytes(t, 100, 80), "image/png")
	put(t, store, "photos/early.mp4", mp4Bytes("isom"), "video/mp4")

	_, err := p.Run(context.Background(),
		queue.Payload{Kind: queue.KindMotionVideo, StorageKey: "photos/early.mp4"}, nil)
	if err == nil || !Retryable(err) {
		t.Errorf("uncataloged still must be retryable, got %v", err)
	}
}

func TestRunMotionVideoRejectsNonVideo(t *testing.T) {
	p, store, _ := newTestPipeline(t, nil, nil)
	put(t, store, "photos/fake.mp4", pngBytes(t, 10, 10), "video/mp4")

	_, err := p.Run(context.Background(),
		queue.Payload{Kind: queue.KindMotionVideo, StorageKey: "photos/fake.mp4"}, nil)
	if !IsMalformed(err) {
		t.Errorf("non-video bytes should be malformed, got %v", err)
	}
}
