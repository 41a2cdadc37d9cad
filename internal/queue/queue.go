package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"hoist/internal/config"
	"hoist/internal/contenthash"
	"hoist/internal/logging"
	"hoist/internal/media"
	"hoist/internal/normalize"
	"hoist/internal/registry"
	"hoist/internal/retry"
	"hoist/internal/services"
	"hoist/internal/storage"
	"hoist/internal/videoingest"
)

// Transport moves bytes to object storage. Implemented by storage.Client.
type Transport interface {
	Upload(ctx context.Context, bucket, path, contentType string, src media.Source, onProgress storage.ProgressFunc) (storage.Result, error)
	ConvertInPlace(ctx context.Context, bucket, path string) error
}

// VideoIngestor streams videos to the remote transcoding service. Implemented
// by videoingest.Client.
type VideoIngestor interface {
	Enabled() bool
	Upload(ctx context.Context, src media.Source, onProgress func(percent int)) (videoingest.Result, error)
}

// Deps collects the collaborators a Queue drives.
type Deps struct {
	Transport  Transport
	Video      VideoIngestor
	Registry   registry.Registry
	Normalizer *normalize.Normalizer
}

// Queue schedules upload jobs with bounded concurrency. All job state is
// guarded by mu; workers never mutate a job without holding it.
type Queue struct {
	cfg         *config.Config
	deps        Deps
	scopeID     string
	logger      *slog.Logger
	policy      retry.Policy
	constraints media.Constraints

	mu          sync.Mutex
	batchID     string
	jobs        map[string]*Job
	order       []string
	active      map[string]struct{}
	thumbs      map[string]chan media.Source
	paused      bool
	uploading   bool
	dispatching bool
	preparing   bool

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Queue for one upload session. scopeID identifies the
// duplicate-check and publish scope (the target collection).
func New(cfg *config.Config, scopeID string, deps Deps, logger *slog.Logger) *Queue {
	policy := retry.Default()
	policy.MaxAttempts = cfg.Queue.MaxRetries + 1
	policy.BaseDelay = time.Duration(cfg.Queue.RetryBaseDelayMS) * time.Millisecond
	policy.MaxDelay = time.Duration(cfg.Queue.RetryMaxDelayMS) * time.Millisecond

	const mib = int64(1) << 20
	return &Queue{
		cfg:     cfg,
		deps:    deps,
		scopeID: scopeID,
		logger:  logging.NewComponentLogger(logger, "queue"),
		policy:  policy,
		constraints: media.Constraints{
			MaxPhotoBytes:   int64(cfg.Validation.MaxPhotoMiB) * mib,
			MaxVideoBytes:   int64(cfg.Validation.MaxVideoMiB) * mib,
			PhotoExtensions: cfg.Validation.PhotoExtensions,
			VideoExtensions: cfg.Validation.VideoExtensions,
		},
		batchID: uuid.NewString(),
		jobs:    make(map[string]*Job),
		active:  make(map[string]struct{}),
		thumbs:  make(map[string]chan media.Source),
	}
}

// BatchID returns the current batch identifier.
func (q *Queue) BatchID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.batchID
}

// AddFiles validates sources and enqueues the accepted ones. Rejected files
// never become jobs; the returned validation errors say why. Thumbnail
// generation for photos starts in the background and does not block.
func (q *Queue) AddFiles(sources ...media.Source) ([]Job, []*media.ValidationError) {
	var added []Job
	var rejected []*media.ValidationError

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, src := range sources {
		kind, verr := q.constraints.Validate(src)
		if verr != nil {
			rejected = append(rejected, verr)
			q.logger.Warn("file rejected",
				logging.String("file", src.Name()),
				logging.String("reason", verr.Reason))
			continue
		}
		now := time.Now()
		job := &Job{
			ID:        uuid.NewString(),
			BatchID:   q.batchID,
			Source:    src,
			Kind:      kind,
			Status:    StatusQueued,
			CreatedAt: now,
			UpdatedAt: now,
		}
		q.jobs[job.ID] = job
		q.order = append(q.order, job.ID)
		if kind == media.KindPhoto && q.deps.Normalizer != nil {
			q.startThumbnailLocked(job)
		}
		added = append(added, *job)
	}
	return added, rejected
}

func (q *Queue) startThumbnailLocked(job *Job) {
	ch := make(chan media.Source, 1)
	q.thumbs[job.ID] = ch
	src := job.Source
	go func() {
		defer close(ch)
		thumb, err := q.deps.Normalizer.Thumbnail(context.Background(), src)
		if err != nil {
			q.logger.Debug("thumbnail generation skipped",
				logging.String("file", src.Name()),
				logging.Error(err))
			return
		}
		ch <- thumb
	}()
}

// Start begins dispatching. It hashes queued jobs and marks duplicates
// skipped before the first dispatch, then runs the stall watchdog until Stop.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.uploading {
		q.mu.Unlock()
		return errors.New("queue already uploading")
	}
	runCtx, cancel := context.WithCancel(ctx)
	q.uploading = true
	q.preparing = true
	q.runCtx = runCtx
	q.cancel = cancel
	q.mu.Unlock()

	q.wg.Add(2)
	go func() {
		defer q.wg.Done()
		q.prepareBatch(runCtx)
		q.mu.Lock()
		q.preparing = false
		q.mu.Unlock()
		q.dispatch(runCtx)
	}()
	go q.watchdog(runCtx)
	return nil
}

// Stop halts dispatching and waits for in-flight work to unwind. In-flight
// jobs are returned to queued for a later Start.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.uploading {
		q.mu.Unlock()
		return
	}
	cancel := q.cancel
	q.uploading = false
	q.cancel = nil
	q.mu.Unlock()

	cancel()
	q.wg.Wait()
}

// Wait blocks until every job is terminal or ctx is cancelled.
func (q *Queue) Wait(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if stats := q.Stats(); stats.Total == 0 || stats.Done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Run starts the queue, waits for all jobs to finish, and stops it.
func (q *Queue) Run(ctx context.Context) error {
	if err := q.Start(ctx); err != nil {
		return err
	}
	defer q.Stop()
	return q.Wait(ctx)
}

// Pause prevents new dispatches. In-flight jobs continue to completion.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume re-enables dispatching and immediately fills free slots.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	ctx := q.runCtx
	uploading := q.uploading
	q.mu.Unlock()
	if uploading {
		q.dispatch(ctx)
	}
}

// prepareBatch hashes queued jobs and consults the registry for known
// duplicates. Hash or registry failures degrade to uploading everything
// unchecked rather than blocking the batch.
func (q *Queue) prepareBatch(ctx context.Context) {
	q.mu.Lock()
	var pending []*Job
	for _, id := range q.order {
		job := q.jobs[id]
		if job.Status == StatusQueued && job.ContentHash == "" {
			pending = append(pending, job)
		}
	}
	q.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	hashFailed := false
	for _, job := range pending {
		q.setStatus(job, StatusHashing)
		digest, err := contenthash.Hash(ctx, job.Source)
		if err != nil {
			hashFailed = true
			q.logger.Warn("content hash failed, batch proceeds without duplicate check",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err))
			q.setStatus(job, StatusQueued)
			continue
		}
		q.mu.Lock()
		job.ContentHash = digest
		q.mu.Unlock()
		q.setStatus(job, StatusQueued)
	}
	if hashFailed || ctx.Err() != nil {
		return
	}

	known := make(map[string]struct{})
	hashes := make([]string, 0, len(pending))
	for _, job := range pending {
		hashes = append(hashes, job.ContentHash)
	}
	if q.deps.Registry != nil {
		dups, err := q.deps.Registry.CheckDuplicateHashes(ctx, q.scopeID, hashes)
		if err != nil {
			q.logger.Warn("duplicate check failed, batch proceeds unchecked", logging.Error(err))
		} else {
			known = dups
		}
	}

	seen := make(map[string]string, len(pending))
	for _, job := range pending {
		if _, dup := known[job.ContentHash]; dup {
			q.skipDuplicate(job, "already uploaded")
			continue
		}
		if ownerID, dup := seen[job.ContentHash]; dup {
			q.skipDuplicate(job, fmt.Sprintf("duplicate of %s in this batch", ownerID))
			continue
		}
		seen[job.ContentHash] = job.ID
	}
}

func (q *Queue) skipDuplicate(job *Job, reason string) {
	q.setStatus(job, StatusSkipped)
	q.mu.Lock()
	delete(q.thumbs, job.ID)
	q.mu.Unlock()
	q.logger.Info("duplicate skipped",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("file", job.Source.Name()),
		logging.String("reason", reason))
}

// dispatch fills free worker slots with queued jobs. Reentrancy is guarded by
// the dispatching flag so a watchdog tick cannot double-dispatch while a
// completion-triggered dispatch is selecting jobs, and the preparing flag
// holds all dispatch until the batch duplicate check has finished.
func (q *Queue) dispatch(ctx context.Context) {
	if ctx == nil || ctx.Err() != nil {
		return
	}
	q.mu.Lock()
	if q.dispatching || q.preparing || q.paused || !q.uploading {
		q.mu.Unlock()
		return
	}
	q.dispatching = true

	var started []*Job
	slots := q.cfg.Queue.Concurrency - len(q.active)
	for _, id := range q.order {
		if slots <= 0 {
			break
		}
		job := q.jobs[id]
		if job.Status != StatusQueued {
			continue
		}
		if _, inFlight := q.active[id]; inFlight {
			continue
		}
		q.transitionLocked(job, q.firstStageLocked(job))
		q.active[id] = struct{}{}
		started = append(started, job)
		slots--
	}

	stagger := time.Duration(q.cfg.Queue.StaggerMS) * time.Millisecond
	for i, job := range started {
		q.wg.Add(1)
		go q.runJob(ctx, job, time.Duration(i)*stagger)
	}
	q.dispatching = false
	q.mu.Unlock()
}

// firstStageLocked picks the first in-flight status for a job so the active
// set and the status field stay in lockstep from the moment of dispatch.
func (q *Queue) firstStageLocked(job *Job) Status {
	if job.Kind == media.KindPhoto && q.deps.Normalizer != nil {
		if q.deps.Normalizer.NeedsConversion(job.Source) {
			return StatusConverting
		}
		if q.deps.Normalizer.NeedsCompression(job.Source) {
			return StatusCompressing
		}
	}
	return StatusUploading
}

// watchdog repairs the stall where queued jobs exist with no active workers
// and no dispatch in progress, which a completion-triggered dispatch racing
// the bookkeeping update can leave behind.
func (q *Queue) watchdog(ctx context.Context) {
	defer q.wg.Done()
	interval := time.Duration(q.cfg.Queue.WatchdogIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		q.mu.Lock()
		queued := 0
		for _, job := range q.jobs {
			if job.Status == StatusQueued {
				queued++
			}
		}
		stalled := q.uploading && !q.paused && !q.dispatching && !q.preparing &&
			queued > 0 && len(q.active) == 0
		q.mu.Unlock()

		if stalled {
			q.logger.Warn("queue stalled, forcing dispatch", logging.Int("queued", queued))
			q.dispatch(ctx)
		}
	}
}

// runJob drives one job's pipeline and reclaims its worker slot afterwards.
func (q *Queue) runJob(ctx context.Context, job *Job, delay time.Duration) {
	defer q.wg.Done()
	if delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}

	err := q.process(ctx, job)

	q.mu.Lock()
	delete(q.active, job.ID)
	q.mu.Unlock()

	switch {
	case err == nil:
	case ctx.Err() != nil:
		// Shutdown, not failure. Park the job for a later Start.
		q.setStatus(job, StatusRetrying)
		q.setStatus(job, StatusQueued)
	default:
		q.handleJobError(ctx, job, err)
	}

	q.dispatch(ctx)
}

func (q *Queue) handleJobError(ctx context.Context, job *Job, err error) {
	q.mu.Lock()
	retriesLeft := job.RetryCount < q.cfg.Queue.MaxRetries
	q.mu.Unlock()

	if services.IsRetryable(err) && retriesLeft {
		q.mu.Lock()
		job.RetryCount++
		attempt := job.RetryCount
		q.mu.Unlock()
		q.setStatus(job, StatusRetrying)
		q.logger.Warn("job failed, will retry",
			logging.String(logging.FieldJobID, job.ID),
			logging.Int("retry", attempt),
			logging.Error(err))

		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			select {
			case <-ctx.Done():
			case <-time.After(q.policy.Delay(attempt)):
			}
			q.setStatus(job, StatusQueued)
			q.dispatch(ctx)
		}()
		return
	}

	q.mu.Lock()
	q.transitionLocked(job, StatusError)
	job.ErrorMessage = services.Message(err)
	q.mu.Unlock()
	q.logger.Error("job failed",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("file", job.Source.Name()),
		logging.Error(err))
}

// setStatus applies one state-machine transition under the lock. Same-status
// calls are no-ops; disallowed transitions are logged and refused.
func (q *Queue) setStatus(job *Job, to Status) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.transitionLocked(job, to)
}

func (q *Queue) transitionLocked(job *Job, to Status) {
	if job.Status == to {
		return
	}
	if !CanTransition(job.Status, to) {
		q.logger.Error("invalid status transition refused",
			logging.String(logging.FieldJobID, job.ID),
			logging.String("from", string(job.Status)),
			logging.String("to", string(to)))
		return
	}
	job.Status = to
	job.UpdatedAt = time.Now()
	if to == StatusComplete {
		job.Progress = 100
	}
}

// setProgress raises a job's progress, never lowering it, and reserves 100
// for confirmed registration.
func (q *Queue) setProgress(job *Job, percent int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if percent > 99 {
		percent = 99
	}
	if percent > job.Progress {
		job.Progress = percent
		job.UpdatedAt = time.Now()
	}
}

// Jobs returns a snapshot of all jobs in insertion order.
func (q *Queue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.jobs[id])
	}
	return out
}

// Job returns a snapshot of one job.
func (q *Queue) Job(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Stats returns aggregate batch counts.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	var stats Stats
	progressSum := 0
	counted := 0
	for _, job := range q.jobs {
		stats.Total++
		switch {
		case job.Status == StatusQueued || job.Status == StatusHashing:
			stats.Queued++
		case job.Status == StatusRetrying:
			stats.Retrying++
		case job.IsActive():
			stats.Active++
		case job.Status == StatusComplete:
			stats.Complete++
		case job.Status == StatusError:
			stats.Failed++
		case job.Status == StatusSkipped:
			stats.Skipped++
		}
		if job.Status != StatusSkipped {
			progressSum += job.Progress
			counted++
		}
	}
	if counted > 0 {
		stats.Percent = progressSum / counted
	} else if stats.Total > 0 {
		stats.Percent = 100
	}
	return stats
}

// SetCaption attaches a caption carried into the draft record.
func (q *Queue) SetCaption(id, caption string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return fmt.Errorf("unknown job %s", id)
	}
	job.Caption = caption
	return nil
}

// RetryItem moves one errored job back to queued with a fresh retry budget.
func (q *Queue) RetryItem(id string) error {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("unknown job %s", id)
	}
	if job.Status != StatusError {
		q.mu.Unlock()
		return fmt.Errorf("job %s is %s, only errored jobs can be retried", id, job.Status)
	}
	q.requeueErroredLocked(job)
	ctx := q.runCtx
	uploading := q.uploading
	q.mu.Unlock()

	if uploading {
		q.dispatch(ctx)
	}
	return nil
}

// RetryAllFailed re-queues every errored job and returns how many it moved.
func (q *Queue) RetryAllFailed() int {
	q.mu.Lock()
	moved := 0
	for _, id := range q.order {
		job := q.jobs[id]
		if job.Status == StatusError {
			q.requeueErroredLocked(job)
			moved++
		}
	}
	ctx := q.runCtx
	uploading := q.uploading
	q.mu.Unlock()

	if moved > 0 && uploading {
		q.dispatch(ctx)
	}
	return moved
}

func (q *Queue) requeueErroredLocked(job *Job) {
	q.transitionLocked(job, StatusQueued)
	job.ErrorMessage = ""
	job.RetryCount = 0
	job.Progress = 0
}

// ClearCompleted drops terminal complete and skipped jobs from the
// collection. Active and errored jobs are never removed.
func (q *Queue) ClearCompleted() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	kept := q.order[:0]
	for _, id := range q.order {
		job := q.jobs[id]
		if job.Status == StatusComplete || job.Status == StatusSkipped {
			q.removeLocked(id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
	return removed
}

// Remove drops one job. Active jobs must finish or fail first.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return fmt.Errorf("unknown job %s", id)
	}
	if job.IsActive() {
		return fmt.Errorf("job %s is in flight", id)
	}
	for i, jid := range q.order {
		if jid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	q.removeLocked(id)
	return nil
}

func (q *Queue) removeLocked(id string) {
	delete(q.jobs, id)
	delete(q.active, id)
	delete(q.thumbs, id)
}

// Reset clears every job and regenerates the batch id. It refuses while any
// job is in flight.
func (q *Queue) Reset() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.active) > 0 {
		return errors.New("jobs are in flight")
	}
	q.jobs = make(map[string]*Job)
	q.order = nil
	q.active = make(map[string]struct{})
	q.thumbs = make(map[string]chan media.Source)
	q.batchID = uuid.NewString()
	return nil
}

// Publish promotes every draft in the queue's scope to published.
func (q *Queue) Publish(ctx context.Context) (int, error) {
	if q.deps.Registry == nil {
		return 0, errors.New("no registry configured")
	}
	return q.deps.Registry.PublishDrafts(ctx, q.scopeID)
}
