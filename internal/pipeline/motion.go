package pipeline

import (
	"context"
	"errors"
	"fmt"

	"photo-ingest/internal/catalog"
	"photo-ingest/internal/logging"
	"photo-ingest/internal/media"
)

// runMotionVideo pairs a motion-photo companion video with its still
// image's catalog record. The still may not be cataloged yet when this
// task runs (uploads race), so a missing companion is a retryable failure
// and the task's attempt budget acts as the search window. Only a missing
// video object itself is deterministic.
func (p *Pipeline) runMotionVideo(ctx context.Context, key string, progress ProgressFunc) (*Result, error) {
	videoID := PhotoID(key)
	logging.Info("Pairing motion video %s (%s)", videoID, key)

	report(progress, StagePairStill)

	data, err := p.objects.Get(ctx, key)
	if err != nil {
		return nil, stageFailed(StagePairStill, classifyStorageErr(key, err))
	}
	if format := media.Sniff(data); !media.IsVideoContainer(format) {
		return nil, stageFailed(StagePairStill, &MalformedInputError{
			Reason: fmt.Sprintf("%s is %s, not a video container", key, format),
		})
	}

	stillKey, err := p.findCompanion(ctx, key, videoID, companionStill)
	if err != nil {
		return nil, stageFailed(StagePairStill, err)
	}
	if stillKey == "" {
		return nil, stageFailed(StagePairStill, &TransientResourceError{
			Err: fmt.Errorf("no companion still image for %s yet", key),
		})
	}

	fields := catalog.LivePhotoFields{
		VideoKey: key,
		VideoURL: p.objects.PublicURL(key),
	}
	stillID := PhotoID(stillKey)
	if err := p.catalog.UpdateLivePhotoFields(ctx, stillID, fields); err != nil {
		if errors.Is(err, catalog.ErrPhotoNotFound) {
			// The still object exists but its photo task has not completed.
			return nil, stageFailed(StagePairStill, &TransientResourceError{
				Err: fmt.Errorf("still %s not cataloged yet: %w", stillID, err),
			})
		}
		return nil, stageFailed(StagePairStill, &TransientResourceError{Err: err})
	}

	logging.Info("Motion video %s paired with still %s", key, stillID)
	return &Result{}, nil
}
