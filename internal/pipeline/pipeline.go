package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"path"
	"strings"
	"time"

	"photo-ingest/internal/catalog"
	"photo-ingest/internal/exiftool"
	"photo-ingest/internal/geocode"
	"photo-ingest/internal/logging"
	"photo-ingest/internal/media"
	"photo-ingest/internal/mediatypes"
	"photo-ingest/internal/metrics"
	"photo-ingest/internal/queue"
	"photo-ingest/internal/retry"
	"photo-ingest/internal/storage"
)

// Stage labels, written to the queue record before each stage begins so
// operators can see where a task is.
const (
	StageAcquire   = "acquire"
	StageGeometry  = "geometry"
	StageThumbnail = "thumbnail"
	StageMetadata  = "metadata"
	StageDescribe  = "describe"
	StageGeocode   = "geocode"
	StagePairVideo = "pair-video"
	StagePersist   = "persist"
	StagePairStill = "pair-still"
)

// ProgressFunc receives the stage label as the pipeline advances. May be nil.
type ProgressFunc func(stage string)

// Result is what a successful run hands back to the worker pool. Photo is
// set for photo tasks; motion-video tasks update the catalog in place and
// return a nil Photo.
type Result struct {
	Photo *catalog.Photo
}

// Pipeline executes tasks against its collaborators. Safe for concurrent
// use; all mutable state lives in the collaborators.
type Pipeline struct {
	objects   storage.ObjectStore
	catalog   catalog.Catalog
	extractor exiftool.Extractor
	geocoder  geocode.Provider
	now       func() time.Time
}

// New builds a pipeline. geocoder may be nil to disable the geolocation
// stage entirely.
func New(objects storage.ObjectStore, cat catalog.Catalog, extractor exiftool.Extractor, geocoder geocode.Provider) *Pipeline {
	return &Pipeline{
		objects:   objects,
		catalog:   cat,
		extractor: extractor,
		geocoder:  geocoder,
		now:       time.Now,
	}
}

// Run dispatches on the payload kind. The returned error carries the
// failure class the worker pool uses to pick between retry and direct fail.
func (p *Pipeline) Run(ctx context.Context, payload queue.Payload, progress ProgressFunc) (*Result, error) {
	switch payload.Kind {
	case queue.KindPhoto:
		return p.runPhoto(ctx, payload.StorageKey, progress)
	case queue.KindMotionVideo:
		return p.runMotionVideo(ctx, payload.StorageKey, progress)
	default:
		return nil, &MalformedInputError{Reason: fmt.Sprintf("unrecognized task kind %q", payload.Kind)}
	}
}

// source is the outcome of the acquire stage: the original bytes for
// metadata extraction, the normalized bytes every decode stage works on,
// and the object metadata for the final record.
type source struct {
	raw          []byte
	processed    []byte
	jpegKey      string
	size         int64
	lastModified time.Time
}

func (p *Pipeline) runPhoto(ctx context.Context, key string, progress ProgressFunc) (*Result, error) {
	photoID := PhotoID(key)
	logging.Info("Processing photo %s (%s)", photoID, key)

	// Stage 1: acquire and normalize the container.
	report(progress, StageAcquire)
	src, err := p.acquire(ctx, key, photoID)
	if err != nil {
		return nil, stageFailed(StageAcquire, err)
	}

	// Stage 2: display-oriented geometry.
	report(progress, StageGeometry)
	orientation := media.ReadOrientation(src.processed)
	geom, err := runStage(ctx, StageGeometry, retry.Fast(), func(context.Context) (*media.Geometry, error) {
		g, gerr := media.ExtractGeometry(src.processed, orientation)
		if gerr != nil {
			return nil, classifyDecodeErr(gerr)
		}
		return g, nil
	})
	if err != nil {
		return nil, stageFailed(StageGeometry, err)
	}

	// Stage 3: preview and perceptual hash.
	report(progress, StageThumbnail)
	preview, err := runStage(ctx, StageThumbnail, retry.Fast(), func(context.Context) (*media.Preview, error) {
		pv, perr := media.GeneratePreview(src.processed)
		if perr != nil {
			return nil, classifyDecodeErr(perr)
		}
		return pv, nil
	})
	if err != nil {
		return nil, stageFailed(StageThumbnail, err)
	}

	// Stage 4: curated metadata. Degrades to an empty field map when the
	// extractor stays unavailable; the descriptive stage has fallbacks.
	report(progress, StageMetadata)
	exif := p.extractMetadata(ctx, src.raw, geom.Format)

	// Stage 5: descriptive info, never fails.
	report(progress, StageDescribe)
	info := DeriveInfo(key, exif, p.now())

	photo := &catalog.Photo{
		ID:            photoID,
		Title:         info.Title,
		Description:   info.Description,
		DateTaken:     info.DateTaken,
		Tags:          info.Tags,
		Width:         geom.Width,
		Height:        geom.Height,
		AspectRatio:   geom.AspectRatio(),
		StorageKey:    key,
		JpegKey:       src.jpegKey,
		OriginalURL:   p.objects.PublicURL(key),
		ThumbnailHash: preview.Hash,
		Exif:          exif,
		FileSize:      src.size,
		LastModified:  src.lastModified,
	}

	// Stage 6: geolocation, best effort.
	report(progress, StageGeocode)
	p.geolocate(ctx, photo, exif)

	// Stage 7: motion-video pairing, best effort.
	report(progress, StagePairVideo)
	p.pairMotionVideo(ctx, photo, key, photoID)

	// Stage 8: persist the preview and finish the record.
	report(progress, StagePersist)
	thumbKey := "thumbnails/" + photoID + ".jpg"
	_, err = runStage(ctx, StagePersist, retry.Fast(), func(opCtx context.Context) (*storage.Object, error) {
		obj, perr := p.objects.Put(opCtx, thumbKey, preview.Data, "image/jpeg")
		if perr != nil {
			return nil, &TransientResourceError{Err: perr}
		}
		return obj, nil
	})
	if err != nil {
		return nil, stageFailed(StagePersist, err)
	}
	photo.ThumbnailKey = thumbKey
	photo.ThumbnailURL = p.objects.PublicURL(thumbKey)

	logging.Info("Photo %s processed (%dx%d, %d tags)", photoID, geom.Width, geom.Height, len(photo.Tags))
	return &Result{Photo: photo}, nil
}

// acquire fetches the object and normalizes legacy or high-efficiency
// containers to JPEG. Only resource-class failures are retried; a missing
// key or an undecodable container is deterministic.
func (p *Pipeline) acquire(ctx context.Context, key, photoID string) (*source, error) {
	policy := retry.Slow()
	policy.RetryIf = IsTransient

	return runStage(ctx, StageAcquire, policy, func(opCtx context.Context) (*source, error) {
		obj, err := p.objects.Head(opCtx, key)
		if err != nil {
			return nil, classifyStorageErr(key, err)
		}
		data, err := p.objects.Get(opCtx, key)
		if err != nil {
			return nil, classifyStorageErr(key, err)
		}

		format := media.Sniff(data)
		if format == media.FormatUnknown {
			return nil, &MalformedInputError{Reason: fmt.Sprintf("unrecognized container for %s", key)}
		}
		if media.IsVideoContainer(format) {
			return nil, &MalformedInputError{Reason: fmt.Sprintf("%s is a video container, not a photo", key)}
		}

		src := &source{
			raw:          data,
			processed:    data,
			size:         obj.Size,
			lastModified: obj.LastModified,
		}

		switch format {
		case media.FormatBMP:
			normalized, nerr := media.NormalizeBitmap(data)
			if nerr != nil {
				return nil, &MalformedInputError{Reason: "undecodable bitmap", Err: nerr}
			}
			src.processed = normalized

		case media.FormatHEIF, media.FormatAVIF:
			transcoded, terr := media.TranscodeHeicToJpeg(data)
			if terr != nil {
				return nil, &TransientResourceError{Err: terr}
			}
			// Persist the broadly-compatible sibling so consumers never
			// need the high-efficiency original.
			jpegKey := siblingKey(key, photoID+".jpg")
			if _, perr := p.objects.Put(opCtx, jpegKey, transcoded, "image/jpeg"); perr != nil {
				return nil, &TransientResourceError{Err: perr}
			}
			src.processed = transcoded
			src.jpegKey = jpegKey
		}

		return src, nil
	})
}

// extractMetadata runs the external extractor with retries, returning nil
// when it stays unavailable. Color space is resolved through the inference
// chain and folded back into the curated map.
func (p *Pipeline) extractMetadata(ctx context.Context, raw []byte, format string) map[string]any {
	fields, err := runStage(ctx, StageMetadata, retry.Fast(), func(opCtx context.Context) (map[string]any, error) {
		out, xerr := p.extractor.Extract(opCtx, raw)
		if xerr != nil {
			return nil, &ExternalServiceError{Service: "metadata extractor", Err: xerr}
		}
		return out, nil
	})
	if err != nil {
		logging.Warn("Metadata extraction unavailable, continuing without EXIF: %v", err)
		return nil
	}

	curated := exiftool.Curate(fields)
	if cs := exiftool.InferColorSpace(curated, decoderColorSpace(curated["ColorSpace"]), format); cs != "" {
		curated["ColorSpace"] = cs
	} else {
		delete(curated, "ColorSpace")
	}
	return curated
}

// decoderColorSpace maps the numeric EXIF ColorSpace tag to a name.
// 65535 means uncalibrated and carries no information.
func decoderColorSpace(value any) string {
	switch v := value.(type) {
	case float64:
		switch int(v) {
		case 1:
			return "sRGB"
		case 2:
			return "Adobe RGB"
		}
		return ""
	case string:
		if v == "Uncalibrated" {
			return ""
		}
		return v
	default:
		return ""
	}
}

// geolocate fills the location fields when coordinates are present. Any
// provider failure leaves the place names empty and never fails the task.
func (p *Pipeline) geolocate(ctx context.Context, photo *catalog.Photo, exif map[string]any) {
	lat, lon, ok := geocode.ParseGPS(exif)
	if !ok {
		return
	}

	photo.Latitude = lat
	photo.Longitude = lon
	photo.HasLocation = true

	if p.geocoder == nil {
		return
	}

	start := time.Now()
	loc, err := p.geocoder.ReverseGeocode(ctx, lat, lon)
	metrics.PipelineStageDuration.WithLabelValues(StageGeocode).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PipelineStageErrors.WithLabelValues(StageGeocode, Classify(err)).Inc()
		logging.Warn("Reverse geocoding failed for %s (%f, %f): %v", photo.ID, lat, lon, err)
		return
	}
	if loc == nil {
		logging.Debug("No place found for %s (%f, %f)", photo.ID, lat, lon)
		return
	}

	photo.Country = loc.Country
	photo.City = loc.City
	photo.LocationName = loc.DisplayName
}

// pairMotionVideo looks for a sibling video object sharing the photo's
// basename and records the pairing. Best effort.
func (p *Pipeline) pairMotionVideo(ctx context.Context, photo *catalog.Photo, key, photoID string) {
	videoKey, err := p.findCompanion(ctx, key, photoID, companionVideo)
	if err != nil {
		metrics.PipelineStageErrors.WithLabelValues(StagePairVideo, Classify(err)).Inc()
		logging.Warn("Motion-video pairing failed for %s: %v", photoID, err)
		return
	}
	if videoKey == "" {
		return
	}

	photo.LivePhotoVideoKey = videoKey
	photo.LivePhotoVideoURL = p.objects.PublicURL(videoKey)
	photo.IsLivePhoto = true
	logging.Info("Paired motion video %s with photo %s", videoKey, photoID)
}

func report(progress ProgressFunc, stage string) {
	if progress != nil {
		progress(stage)
	}
}

// runStage wraps a stage in the retry executor and records its duration.
func runStage[T any](ctx context.Context, stage string, policy retry.Policy, op func(context.Context) (T, error)) (T, error) {
	if policy.RetryIf == nil {
		policy.RetryIf = Retryable
	}
	start := time.Now()
	result, err := retry.Do(ctx, "pipeline."+stage, policy, op)
	metrics.PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return result, err
}

func stageFailed(stage string, err error) error {
	metrics.PipelineStageErrors.WithLabelValues(stage, Classify(err)).Inc()
	return fmt.Errorf("stage %s: %w", stage, err)
}

func classifyStorageErr(key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return &NotFoundError{Key: key}
	}
	return &TransientResourceError{Err: err}
}

// classifyDecodeErr separates deterministic decode failures, which no
// amount of retrying can fix since the bytes are already in memory, from
// the resource-pressure class. Format errors from the registered decoders
// mean the object itself is broken.
func classifyDecodeErr(err error) error {
	var jpegErr jpeg.FormatError
	var pngErr png.FormatError
	if errors.Is(err, image.ErrFormat) || errors.As(err, &jpegErr) || errors.As(err, &pngErr) {
		return &MalformedInputError{Reason: "undecodable image data", Err: err}
	}
	return &TransientResourceError{Err: err}
}

// siblingKey places name next to key in the same directory.
func siblingKey(key, name string) string {
	dir := path.Dir(key)
	if dir == "." || dir == "/" {
		return name
	}
	return dir + "/" + name
}

// companion kinds for findCompanion.
type companionKind int

const (
	companionVideo companionKind = iota
	companionStill
)

// findCompanion scans the key's directory for an object with the same
// derived id and the wanted media class, verifying video candidates by
// container magic. Returns "" when nothing matches.
func (p *Pipeline) findCompanion(ctx context.Context, key, id string, want companionKind) (string, error) {
	prefix := ""
	if dir := path.Dir(key); dir != "." && dir != "/" {
		prefix = dir + "/"
	}

	siblings, err := p.objects.List(ctx, prefix)
	if err != nil {
		return "", &TransientResourceError{Err: err}
	}

	for _, obj := range siblings {
		if obj.Key == key || PhotoID(obj.Key) != id {
			continue
		}
		ext := strings.ToLower(path.Ext(obj.Key))

		switch want {
		case companionVideo:
			if !mediatypes.VideoExtensions[ext] {
				continue
			}
			data, gerr := p.objects.Get(ctx, obj.Key)
			if gerr != nil {
				return "", &TransientResourceError{Err: gerr}
			}
			if media.IsVideoContainer(media.Sniff(data)) {
				return obj.Key, nil
			}

		case companionStill:
			if mediatypes.ImageExtensions[ext] {
				return obj.Key, nil
			}
		}
	}
	return "", nil
}
