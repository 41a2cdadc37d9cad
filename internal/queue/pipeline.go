package queue

import (
	"context"
	"fmt"
	"path"
	"strings"

	"hoist/internal/logging"
	"hoist/internal/media"
	"hoist/internal/registry"
	"hoist/internal/services"
)

// process runs one job through its pipeline stages. Stage order within a job
// is strict: normalization finishes before transport starts, and transport
// success is required before registration.
func (q *Queue) process(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := job.Source
	needsRemote := false

	if job.Kind == media.KindPhoto && q.deps.Normalizer != nil {
		if q.deps.Normalizer.NeedsConversion(src) {
			q.setStatus(job, StatusConverting)
			converted, err := q.deps.Normalizer.Convert(ctx, src)
			if err != nil {
				return services.Wrap(services.ErrConversion, "queue", "convert", src.Name(), err)
			}
			src = converted.Source
			needsRemote = converted.NeedsRemote
		}
		if q.deps.Normalizer.NeedsCompression(src) {
			q.setStatus(job, StatusCompressing)
			src = q.deps.Normalizer.Compress(ctx, src).Source
		}
	}

	var err error
	if job.Kind == media.KindVideo {
		err = q.uploadVideo(ctx, job, src)
	} else {
		err = q.uploadPhoto(ctx, job, src, needsRemote)
	}
	if err != nil {
		return err
	}

	q.setStatus(job, StatusUploaded)
	return q.register(ctx, job)
}

func (q *Queue) uploadPhoto(ctx context.Context, job *Job, src media.Source, needsRemote bool) error {
	q.setStatus(job, StatusUploading)
	bucket := q.cfg.Storage.PhotoBucket
	key := q.objectPath(job, src)

	result, err := q.deps.Transport.Upload(ctx, bucket, key, src.ContentType(), src, func(percent int) {
		q.setProgress(job, percent)
	})
	if err != nil {
		return err
	}
	if needsRemote {
		// The raw format went up unchanged; the remote service rewrites the
		// stored object before anyone serves it.
		if err := q.deps.Transport.ConvertInPlace(ctx, bucket, key); err != nil {
			return err
		}
	}

	q.mu.Lock()
	job.PublicURL = result.PublicURL
	job.ObjectPath = result.Path
	job.Provider = result.Provider
	q.mu.Unlock()

	q.attachThumbnail(ctx, job)
	return nil
}

// attachThumbnail uploads the background-generated preview, if one exists.
// Thumbnails are best effort and never fail the job.
func (q *Queue) attachThumbnail(ctx context.Context, job *Job) {
	thumb := q.takeThumbnail(ctx, job.ID)
	if thumb == nil {
		return
	}
	key := "thumbs/" + q.objectPath(job, thumb)
	result, err := q.deps.Transport.Upload(ctx, q.cfg.Storage.PhotoBucket, key, thumb.ContentType(), thumb, nil)
	if err != nil {
		q.logger.Warn("thumbnail upload failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
		return
	}
	q.mu.Lock()
	job.ThumbnailURL = result.PublicURL
	q.mu.Unlock()
}

func (q *Queue) takeThumbnail(ctx context.Context, id string) media.Source {
	q.mu.Lock()
	ch := q.thumbs[id]
	delete(q.thumbs, id)
	q.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case thumb, ok := <-ch:
		if !ok {
			return nil
		}
		return thumb
	case <-ctx.Done():
		return nil
	}
}

func (q *Queue) uploadVideo(ctx context.Context, job *Job, src media.Source) error {
	q.setStatus(job, StatusUploading)

	if q.deps.Video != nil && q.deps.Video.Enabled() {
		result, err := q.deps.Video.Upload(ctx, src, func(percent int) {
			q.setProgress(job, percent)
		})
		if err != nil {
			return err
		}
		// Transcoding continues remotely; registration does not wait for it.
		q.setStatus(job, StatusProcessing)
		q.mu.Lock()
		job.RemoteVideoID = result.VideoID
		job.PublicURL = result.PlaybackURL
		job.ThumbnailURL = result.ThumbnailURL
		q.mu.Unlock()
		return nil
	}

	result, err := q.deps.Transport.Upload(ctx, q.cfg.Storage.VideoBucket, q.objectPath(job, src), src.ContentType(), src, func(percent int) {
		q.setProgress(job, percent)
	})
	if err != nil {
		return err
	}
	q.mu.Lock()
	job.PublicURL = result.PublicURL
	job.ObjectPath = result.Path
	job.Provider = result.Provider
	q.mu.Unlock()
	return nil
}

func (q *Queue) register(ctx context.Context, job *Job) error {
	q.setStatus(job, StatusSaving)
	if q.deps.Registry == nil {
		return services.Wrap(services.ErrConfiguration, "queue", "register", "no registry configured", nil)
	}

	q.mu.Lock()
	draft := registry.Draft{
		ScopeID:       q.scopeID,
		MediaURL:      job.PublicURL,
		MediaType:     string(job.Kind),
		ThumbnailURL:  job.ThumbnailURL,
		Caption:       job.Caption,
		RemoteVideoID: job.RemoteVideoID,
		ContentHash:   job.ContentHash,
	}
	q.mu.Unlock()

	if _, err := q.deps.Registry.CreateDraft(ctx, draft); err != nil {
		return err
	}
	q.setStatus(job, StatusComplete)
	q.logger.Info("job complete",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("file", job.Source.Name()),
		logging.String("url", draft.MediaURL))
	return nil
}

// objectPath builds a collision-free storage key scoped to the batch.
func (q *Queue) objectPath(job *Job, src media.Source) string {
	ext := strings.ToLower(path.Ext(src.Name()))
	return fmt.Sprintf("%s/%s%s", job.BatchID, job.ID, ext)
}
