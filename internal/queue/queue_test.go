package queue_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"hoist/internal/config"
	"hoist/internal/contenthash"
	"hoist/internal/logging"
	"hoist/internal/media"
	"hoist/internal/normalize"
	"hoist/internal/queue"
	"hoist/internal/services"
	"hoist/internal/storage"
	"hoist/internal/testsupport"
	"hoist/internal/videoingest"
)

type uploadRecord struct {
	Bucket string
	Path   string
	Name   string
}

// fakeTransport is an in-memory queue.Transport with failure injection and
// concurrency tracking.
type fakeTransport struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	uploads     []uploadRecord
	converted   []string

	// transient[name] is how many times uploads of that source fail with a
	// retryable error before succeeding.
	transient map[string]int
	// permanent marks sources whose uploads always fail non-retryably.
	permanent map[string]bool

	// hold, when non-nil, blocks each upload until it receives a token or
	// the channel is closed.
	hold chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		transient: make(map[string]int),
		permanent: make(map[string]bool),
	}
}

func (f *fakeTransport) Upload(ctx context.Context, bucket, path, contentType string, src media.Source, onProgress storage.ProgressFunc) (storage.Result, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	hold := f.hold
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if hold != nil {
		select {
		case <-ctx.Done():
			return storage.Result{}, ctx.Err()
		case <-hold:
		}
	}

	f.mu.Lock()
	if f.permanent[src.Name()] {
		f.mu.Unlock()
		return storage.Result{}, services.Wrap(services.ErrPermanent, "storage", "upload", src.Name(), errors.New("forbidden"))
	}
	if remaining := f.transient[src.Name()]; remaining > 0 {
		f.transient[src.Name()] = remaining - 1
		f.mu.Unlock()
		return storage.Result{}, services.Wrap(services.ErrTransient, "storage", "upload", src.Name(), errors.New("gateway timeout"))
	}
	f.uploads = append(f.uploads, uploadRecord{Bucket: bucket, Path: path, Name: src.Name()})
	f.mu.Unlock()

	if onProgress != nil {
		onProgress(50)
		onProgress(100)
	}
	return storage.Result{PublicURL: "https://cdn.example/" + path, Path: path, Provider: "test"}, nil
}

func (f *fakeTransport) ConvertInPlace(ctx context.Context, bucket, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.converted = append(f.converted, path)
	return nil
}

func (f *fakeTransport) Uploads() []uploadRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uploadRecord(nil), f.uploads...)
}

func (f *fakeTransport) UploadCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, rec := range f.uploads {
		if rec.Name == name {
			count++
		}
	}
	return count
}

func (f *fakeTransport) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func (f *fakeTransport) Converted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.converted...)
}

type fakeVideo struct {
	mu     sync.Mutex
	result videoingest.Result
	err    error
	calls  int
}

func (f *fakeVideo) Enabled() bool { return true }

func (f *fakeVideo) Upload(ctx context.Context, src media.Source, onProgress func(int)) (videoingest.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return videoingest.Result{}, f.err
	}
	if onProgress != nil {
		onProgress(100)
	}
	return f.result, nil
}

func newQueue(t *testing.T, cfg *config.Config, deps queue.Deps) *queue.Queue {
	t.Helper()
	if cfg == nil {
		cfg = testsupport.NewConfig(t)
	}
	return queue.New(cfg, "scope-1", deps, logging.NewNop())
}

func photoSource(name string, data []byte) media.Source {
	return media.NewByteSource(name, "image/jpeg", data)
}

func runToCompletion(t *testing.T, q *queue.Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func statusByName(q *queue.Queue) map[string]queue.Status {
	out := make(map[string]queue.Status)
	for _, job := range q.Jobs() {
		out[job.Source.Name()] = job.Status
	}
	return out
}

func TestFiveFilesConcurrencyThree(t *testing.T) {
	transport := newFakeTransport()
	transport.hold = make(chan struct{})
	reg := testsupport.NewMemoryRegistry()
	q := newQueue(t, testsupport.NewConfig(t, testsupport.WithConcurrency(3)),
		queue.Deps{Transport: transport, Registry: reg})

	names := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"}
	for i, name := range names {
		q.AddFiles(photoSource(name, []byte{byte(i), 1, 2, 3}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer q.Stop()

	waitFor(t, "three active jobs", func() bool {
		stats := q.Stats()
		return stats.Active == 3 && stats.Queued == 2
	})
	if stats := q.Stats(); stats.Active != 3 || stats.Queued != 2 {
		t.Fatalf("stats = %+v, want 3 active / 2 queued", stats)
	}

	close(transport.hold)
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	stats := q.Stats()
	if stats.Complete != 5 || stats.Failed != 0 || stats.Skipped != 0 {
		t.Fatalf("stats = %+v, want 5 complete", stats)
	}
	if max := transport.MaxInFlight(); max > 3 {
		t.Fatalf("max in-flight uploads = %d, exceeds concurrency limit", max)
	}
	if drafts := reg.Drafts(); len(drafts) != 5 {
		t.Fatalf("drafts = %d, want 5", len(drafts))
	}
	for _, job := range q.Jobs() {
		if job.Progress != 100 {
			t.Errorf("job %s progress = %d, want 100", job.Source.Name(), job.Progress)
		}
	}
}

func TestDuplicateWithinBatchSkipped(t *testing.T) {
	transport := newFakeTransport()
	reg := testsupport.NewMemoryRegistry()
	q := newQueue(t, nil, queue.Deps{Transport: transport, Registry: reg})

	same := []byte("identical bytes")
	q.AddFiles(
		photoSource("first.jpg", same),
		photoSource("second.jpg", same),
		photoSource("other.jpg", []byte("different bytes")),
	)
	runToCompletion(t, q)

	statuses := statusByName(q)
	if statuses["first.jpg"] != queue.StatusComplete {
		t.Fatalf("first.jpg = %s, want complete", statuses["first.jpg"])
	}
	if statuses["second.jpg"] != queue.StatusSkipped {
		t.Fatalf("second.jpg = %s, want skipped", statuses["second.jpg"])
	}
	if statuses["other.jpg"] != queue.StatusComplete {
		t.Fatalf("other.jpg = %s, want complete", statuses["other.jpg"])
	}
	if n := transport.UploadCount("second.jpg"); n != 0 {
		t.Fatalf("skipped file was uploaded %d times", n)
	}
	if len(reg.Drafts()) != 2 {
		t.Fatalf("drafts = %d, want 2", len(reg.Drafts()))
	}
}

func TestPriorUploadSkipped(t *testing.T) {
	transport := newFakeTransport()
	reg := testsupport.NewMemoryRegistry()
	content := []byte("previously uploaded")
	digest, err := contenthash.Hash(context.Background(), photoSource("seed.jpg", content))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	reg.SeedHash("scope-1", digest)

	q := newQueue(t, nil, queue.Deps{Transport: transport, Registry: reg})
	q.AddFiles(photoSource("again.jpg", content))
	runToCompletion(t, q)

	job := q.Jobs()[0]
	if job.Status != queue.StatusSkipped {
		t.Fatalf("status = %s, want skipped", job.Status)
	}
	if len(transport.Uploads()) != 0 {
		t.Fatal("duplicate was uploaded")
	}
}

// slowDupRegistry delays the duplicate check long enough for several watchdog
// ticks to elapse while the batch is still being prepared.
type slowDupRegistry struct {
	*testsupport.MemoryRegistry
	delay time.Duration
}

func (s *slowDupRegistry) CheckDuplicateHashes(ctx context.Context, scopeID string, hashes []string) (map[string]struct{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
	}
	return s.MemoryRegistry.CheckDuplicateHashes(ctx, scopeID, hashes)
}

func TestSlowDuplicateCheckStillSkipsKnownDuplicate(t *testing.T) {
	transport := newFakeTransport()
	mem := testsupport.NewMemoryRegistry()
	content := []byte("previously uploaded")
	digest, err := contenthash.Hash(context.Background(), photoSource("seed.jpg", content))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	mem.SeedHash("scope-1", digest)
	reg := &slowDupRegistry{MemoryRegistry: mem, delay: 200 * time.Millisecond}

	q := newQueue(t, nil, queue.Deps{Transport: transport, Registry: reg})
	q.AddFiles(
		photoSource("again.jpg", content),
		photoSource("fresh.jpg", []byte("new bytes")),
	)
	runToCompletion(t, q)

	statuses := statusByName(q)
	if statuses["again.jpg"] != queue.StatusSkipped {
		t.Fatalf("again.jpg status = %s, want skipped", statuses["again.jpg"])
	}
	if statuses["fresh.jpg"] != queue.StatusComplete {
		t.Fatalf("fresh.jpg status = %s, want complete", statuses["fresh.jpg"])
	}
	if n := transport.UploadCount("again.jpg"); n != 0 {
		t.Fatalf("again.jpg uploaded %d times, want 0", n)
	}
}

func TestDuplicateCheckFailureUploadsUnchecked(t *testing.T) {
	transport := newFakeTransport()
	reg := testsupport.NewMemoryRegistry()
	reg.FailDup = errors.New("registry unreachable")

	q := newQueue(t, nil, queue.Deps{Transport: transport, Registry: reg})
	q.AddFiles(photoSource("a.jpg", []byte("payload a")))
	runToCompletion(t, q)

	if status := q.Jobs()[0].Status; status != queue.StatusComplete {
		t.Fatalf("status = %s, want complete despite failed duplicate check", status)
	}
}

func TestTransientFailureRetriesThenSucceeds(t *testing.T) {
	transport := newFakeTransport()
	transport.transient["flaky.jpg"] = 2
	reg := testsupport.NewMemoryRegistry()
	q := newQueue(t, testsupport.NewConfig(t, testsupport.WithMaxRetries(3)),
		queue.Deps{Transport: transport, Registry: reg})

	q.AddFiles(photoSource("flaky.jpg", []byte("flaky payload")))
	runToCompletion(t, q)

	job := q.Jobs()[0]
	if job.Status != queue.StatusComplete {
		t.Fatalf("status = %s (%s), want complete", job.Status, job.ErrorMessage)
	}
	if job.RetryCount != 2 {
		t.Fatalf("retry count = %d, want 2", job.RetryCount)
	}
}

func TestPermanentFailureDoesNotRetry(t *testing.T) {
	transport := newFakeTransport()
	transport.permanent["denied.jpg"] = true
	reg := testsupport.NewMemoryRegistry()
	q := newQueue(t, testsupport.NewConfig(t, testsupport.WithMaxRetries(3)),
		queue.Deps{Transport: transport, Registry: reg})

	q.AddFiles(photoSource("denied.jpg", []byte("denied payload")))
	runToCompletion(t, q)

	job := q.Jobs()[0]
	if job.Status != queue.StatusError {
		t.Fatalf("status = %s, want error", job.Status)
	}
	if job.RetryCount != 0 {
		t.Fatalf("retry count = %d, permanent failures must not retry", job.RetryCount)
	}
	if job.ErrorMessage == "" || strings.Contains(job.ErrorMessage, "permanent failure") {
		t.Fatalf("error message %q should be human-readable without the classification prefix", job.ErrorMessage)
	}
}

func TestRetryCeilingExhausted(t *testing.T) {
	transport := newFakeTransport()
	transport.transient["doomed.jpg"] = 100
	reg := testsupport.NewMemoryRegistry()
	q := newQueue(t, testsupport.NewConfig(t, testsupport.WithMaxRetries(2)),
		queue.Deps{Transport: transport, Registry: reg})

	q.AddFiles(photoSource("doomed.jpg", []byte("doomed payload")))
	runToCompletion(t, q)

	job := q.Jobs()[0]
	if job.Status != queue.StatusError {
		t.Fatalf("status = %s, want error", job.Status)
	}
	if job.RetryCount != 2 {
		t.Fatalf("retry count = %d, want exactly the configured ceiling", job.RetryCount)
	}
}

func TestFailedRegistrationThenRetryAllFailed(t *testing.T) {
	transport := newFakeTransport()
	reg := testsupport.NewMemoryRegistry()
	reg.FailSave = errors.New("registry rejected draft")
	q := newQueue(t, nil, queue.Deps{Transport: transport, Registry: reg})

	q.AddFiles(photoSource("a.jpg", []byte("payload")))
	runToCompletion(t, q)

	job := q.Jobs()[0]
	if job.Status != queue.StatusError {
		t.Fatalf("status = %s, want error", job.Status)
	}
	if job.Progress == 100 {
		t.Fatal("progress reached 100 without successful registration")
	}

	reg.FailSave = nil
	if moved := q.RetryAllFailed(); moved != 1 {
		t.Fatalf("RetryAllFailed = %d, want 1", moved)
	}
	runToCompletion(t, q)

	job = q.Jobs()[0]
	if job.Status != queue.StatusComplete || job.Progress != 100 {
		t.Fatalf("after retry: status = %s progress = %d", job.Status, job.Progress)
	}
}

func TestWatchdogRecoversStalledQueue(t *testing.T) {
	transport := newFakeTransport()
	reg := testsupport.NewMemoryRegistry()
	q := newQueue(t, nil, queue.Deps{Transport: transport, Registry: reg})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer q.Stop()

	// Enqueue after the initial dispatch has already run. No completion
	// event will ever fire for these jobs, so only the watchdog can start
	// them.
	time.Sleep(50 * time.Millisecond)
	q.AddFiles(
		photoSource("late1.jpg", []byte("late payload 1")),
		photoSource("late2.jpg", []byte("late payload 2")),
	)

	waitFor(t, "watchdog dispatch", func() bool { return q.Stats().Done() })

	for _, job := range q.Jobs() {
		if job.Status != queue.StatusComplete {
			t.Errorf("job %s = %s, want complete", job.Source.Name(), job.Status)
		}
	}
	if n := transport.UploadCount("late1.jpg"); n != 1 {
		t.Fatalf("late1.jpg uploaded %d times, want exactly once", n)
	}
	if n := transport.UploadCount("late2.jpg"); n != 1 {
		t.Fatalf("late2.jpg uploaded %d times, want exactly once", n)
	}
}

func TestPauseHoldsQueuedJobs(t *testing.T) {
	transport := newFakeTransport()
	transport.hold = make(chan struct{})
	reg := testsupport.NewMemoryRegistry()
	q := newQueue(t, testsupport.NewConfig(t, testsupport.WithConcurrency(1)),
		queue.Deps{Transport: transport, Registry: reg})

	q.AddFiles(
		photoSource("one.jpg", []byte("payload one")),
		photoSource("two.jpg", []byte("payload two")),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer q.Stop()

	waitFor(t, "first job active", func() bool { return q.Stats().Active == 1 })
	q.Pause()
	transport.hold <- struct{}{}

	waitFor(t, "first job complete", func() bool { return q.Stats().Complete == 1 })
	time.Sleep(80 * time.Millisecond) // several watchdog intervals
	if stats := q.Stats(); stats.Queued != 1 || stats.Active != 0 {
		t.Fatalf("stats while paused = %+v, want second job held in queued", stats)
	}

	close(transport.hold)
	q.Resume()
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if stats := q.Stats(); stats.Complete != 2 {
		t.Fatalf("stats = %+v, want 2 complete", stats)
	}
}

func TestVideoIngestPath(t *testing.T) {
	transport := newFakeTransport()
	reg := testsupport.NewMemoryRegistry()
	video := &fakeVideo{result: videoingest.Result{
		VideoID:      "vid-9",
		PlaybackURL:  "https://videos.example/vid-9",
		ThumbnailURL: "https://videos.example/vid-9/thumb.jpg",
	}}
	q := newQueue(t, nil, queue.Deps{Transport: transport, Video: video, Registry: reg})

	q.AddFiles(media.NewByteSource("clip.mp4", "video/mp4", []byte("video payload")))
	runToCompletion(t, q)

	job := q.Jobs()[0]
	if job.Status != queue.StatusComplete {
		t.Fatalf("status = %s (%s), want complete", job.Status, job.ErrorMessage)
	}
	if job.RemoteVideoID != "vid-9" || job.ThumbnailURL == "" {
		t.Fatalf("job artifacts = %+v", job)
	}
	if len(transport.Uploads()) != 0 {
		t.Fatal("video went through object storage instead of the ingest service")
	}
	drafts := reg.Drafts()
	if len(drafts) != 1 || drafts[0].RemoteVideoID != "vid-9" || drafts[0].MediaType != "video" {
		t.Fatalf("draft = %+v", drafts)
	}
}

func TestVideoFallsBackToObjectStorage(t *testing.T) {
	transport := newFakeTransport()
	reg := testsupport.NewMemoryRegistry()
	q := newQueue(t, nil, queue.Deps{Transport: transport, Registry: reg})

	q.AddFiles(media.NewByteSource("clip.mp4", "video/mp4", []byte("video payload")))
	runToCompletion(t, q)

	uploads := transport.Uploads()
	if len(uploads) != 1 || uploads[0].Bucket != "media-videos" {
		t.Fatalf("uploads = %+v, want one upload to the video bucket", uploads)
	}
	if q.Jobs()[0].Status != queue.StatusComplete {
		t.Fatalf("status = %s", q.Jobs()[0].Status)
	}
}

func TestCaptionCarriedToDraft(t *testing.T) {
	transport := newFakeTransport()
	reg := testsupport.NewMemoryRegistry()
	q := newQueue(t, nil, queue.Deps{Transport: transport, Registry: reg})

	added, _ := q.AddFiles(photoSource("captioned.jpg", []byte("payload")))
	if err := q.SetCaption(added[0].ID, "sunset over the pier"); err != nil {
		t.Fatalf("SetCaption: %v", err)
	}
	runToCompletion(t, q)

	drafts := reg.Drafts()
	if len(drafts) != 1 || drafts[0].Caption != "sunset over the pier" {
		t.Fatalf("drafts = %+v", drafts)
	}
	if drafts[0].ContentHash == "" {
		t.Fatal("draft missing content hash")
	}
}

func TestDeferredConversionUploadsRawThenConvertsRemotely(t *testing.T) {
	transport := newFakeTransport()
	reg := testsupport.NewMemoryRegistry()
	normalizer := normalize.New(nil, normalize.Options{
		CompressAboveBytes: 2 << 20,
		MaxImageEdge:       4096,
		JPEGQuality:        82,
		ThumbnailEdge:      64,
	}, logging.NewNop())
	q := newQueue(t, nil, queue.Deps{Transport: transport, Registry: reg, Normalizer: normalizer})

	q.AddFiles(media.NewByteSource("photo.heic", "image/heic", []byte("heic container bytes")))
	runToCompletion(t, q)

	job := q.Jobs()[0]
	if job.Status != queue.StatusComplete {
		t.Fatalf("status = %s (%s), want complete", job.Status, job.ErrorMessage)
	}
	uploads := transport.Uploads()
	if len(uploads) != 1 {
		t.Fatalf("uploads = %+v, want the raw file only", uploads)
	}
	converted := transport.Converted()
	if len(converted) != 1 || converted[0] != uploads[0].Path {
		t.Fatalf("converted = %v, want the uploaded path", converted)
	}
}

func TestThumbnailUploadedForPhotos(t *testing.T) {
	transport := newFakeTransport()
	reg := testsupport.NewMemoryRegistry()
	normalizer := normalize.New(nil, normalize.Options{
		CompressAboveBytes: 2 << 20,
		MaxImageEdge:       4096,
		JPEGQuality:        82,
		ThumbnailEdge:      32,
	}, logging.NewNop())
	q := newQueue(t, nil, queue.Deps{Transport: transport, Registry: reg, Normalizer: normalizer})

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	q.AddFiles(media.NewByteSource("gradient.png", "image/png", buf.Bytes()))
	runToCompletion(t, q)

	job := q.Jobs()[0]
	if job.Status != queue.StatusComplete {
		t.Fatalf("status = %s (%s)", job.Status, job.ErrorMessage)
	}
	if job.ThumbnailURL == "" {
		t.Fatal("thumbnail URL not set")
	}
	foundThumb := false
	for _, rec := range transport.Uploads() {
		if strings.HasPrefix(rec.Path, "thumbs/") {
			foundThumb = true
		}
	}
	if !foundThumb {
		t.Fatalf("no thumbnail upload recorded: %+v", transport.Uploads())
	}
	if reg.Drafts()[0].ThumbnailURL != job.ThumbnailURL {
		t.Fatal("draft thumbnail URL mismatch")
	}
}

func TestAddFilesValidation(t *testing.T) {
	q := newQueue(t, nil, queue.Deps{Transport: newFakeTransport(), Registry: testsupport.NewMemoryRegistry()})

	big := make([]byte, 51<<20) // over the 50 MiB photo limit
	added, rejected := q.AddFiles(
		photoSource("ok.jpg", []byte("fine")),
		media.NewByteSource("notes.txt", "text/plain", []byte("not media")),
		photoSource("huge.jpg", big),
	)
	if len(added) != 1 || added[0].Source.Name() != "ok.jpg" {
		t.Fatalf("added = %+v", added)
	}
	if len(rejected) != 2 {
		t.Fatalf("rejected = %+v, want 2", rejected)
	}
	if stats := q.Stats(); stats.Total != 1 {
		t.Fatalf("stats = %+v, rejected files must not become jobs", stats)
	}
}

func TestClearCompletedRemoveReset(t *testing.T) {
	transport := newFakeTransport()
	transport.permanent["bad.jpg"] = true
	reg := testsupport.NewMemoryRegistry()
	q := newQueue(t, testsupport.NewConfig(t, testsupport.WithMaxRetries(0)),
		queue.Deps{Transport: transport, Registry: reg})

	same := []byte("dup payload")
	q.AddFiles(
		photoSource("good.jpg", []byte("good payload")),
		photoSource("bad.jpg", []byte("bad payload")),
		photoSource("dupA.jpg", same),
		photoSource("dupB.jpg", same),
	)
	runToCompletion(t, q)

	if removed := q.ClearCompleted(); removed != 3 { // good + dupA + skipped dupB
		t.Fatalf("ClearCompleted = %d, want 3", removed)
	}
	jobs := q.Jobs()
	if len(jobs) != 1 || jobs[0].Status != queue.StatusError {
		t.Fatalf("jobs after clear = %+v, errored job must survive", jobs)
	}

	if err := q.Remove("no-such-id"); err == nil {
		t.Fatal("Remove of unknown id should fail")
	}
	if err := q.Remove(jobs[0].ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(q.Jobs()) != 0 {
		t.Fatal("job not removed")
	}

	oldBatch := q.BatchID()
	if err := q.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if q.BatchID() == oldBatch {
		t.Fatal("Reset must regenerate the batch id")
	}
}

func TestRetryItemOnlyErrored(t *testing.T) {
	transport := newFakeTransport()
	reg := testsupport.NewMemoryRegistry()
	q := newQueue(t, nil, queue.Deps{Transport: transport, Registry: reg})

	added, _ := q.AddFiles(photoSource("fine.jpg", []byte("payload")))
	runToCompletion(t, q)

	if err := q.RetryItem(added[0].ID); err == nil {
		t.Fatal("RetryItem on a completed job should fail")
	}
}

func TestPublish(t *testing.T) {
	transport := newFakeTransport()
	reg := testsupport.NewMemoryRegistry()
	q := newQueue(t, nil, queue.Deps{Transport: transport, Registry: reg})

	q.AddFiles(
		photoSource("a.jpg", []byte("payload a")),
		photoSource("b.jpg", []byte("payload b")),
	)
	runToCompletion(t, q)

	count, err := q.Publish(context.Background())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if count != 2 {
		t.Fatalf("published = %d, want 2", count)
	}
}
