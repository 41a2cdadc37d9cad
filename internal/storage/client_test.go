package storage_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"hoist/internal/logging"
	"hoist/internal/media"
	"hoist/internal/retry"
	"hoist/internal/services"
	"hoist/internal/storage"
	"hoist/internal/testsupport"
)

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Sleeper:     func(time.Duration) {},
	}
}

func newClient(backend *testsupport.StorageBackend, threshold, partSize int64) *storage.Client {
	return storage.NewClient(storage.Config{
		Endpoint:           backend.Endpoint(),
		MultipartThreshold: threshold,
		PartSize:           partSize,
		PartConcurrency:    3,
		SingleShotCap:      1 << 20,
		ControlTimeout:     5 * time.Second,
	}, logging.NewNop(), storage.WithRetryPolicy(fastPolicy()))
}

func payload(size int) []byte {
	data := make([]byte, size)
	rng := rand.New(rand.NewSource(42))
	rng.Read(data)
	return data
}

func TestSingleShotUpload(t *testing.T) {
	backend := testsupport.NewStorageBackend(t)
	client := newClient(backend, 1024, 256)
	data := payload(512)

	var percents []int
	result, err := client.Upload(context.Background(), "photos", "batch/a.jpg", "image/jpeg",
		media.NewByteSource("a.jpg", "image/jpeg", data),
		func(p int) { percents = append(percents, p) },
	)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if result.PublicURL != "https://cdn.test/photos/batch/a.jpg" {
		t.Fatalf("unexpected public url %q", result.PublicURL)
	}

	stored, ok := backend.Object("photos", "batch/a.jpg")
	if !ok || !bytes.Equal(stored, data) {
		t.Fatal("stored object does not match payload")
	}
	assertMonotonicTo100(t, percents)
}

func TestMultipartUploadAssemblesInOrder(t *testing.T) {
	backend := testsupport.NewStorageBackend(t)
	client := newClient(backend, 1024, 1000)
	data := payload(2500)

	var percents []int
	result, err := client.Upload(context.Background(), "photos", "batch/big.jpg", "image/jpeg",
		media.NewByteSource("big.jpg", "image/jpeg", data),
		func(p int) { percents = append(percents, p) },
	)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if result.PublicURL == "" {
		t.Fatal("expected public url")
	}

	stored, ok := backend.Object("photos", "batch/big.jpg")
	if !ok {
		t.Fatal("object missing after completion")
	}
	if !bytes.Equal(stored, data) {
		t.Fatal("assembled object is not byte-correct")
	}
	assertMonotonicTo100(t, percents)
}

func TestMultipartPartRetrySucceeds(t *testing.T) {
	backend := testsupport.NewStorageBackend(t)
	backend.PartFailures[2] = 2 // two transient failures before success
	client := newClient(backend, 1024, 1000)
	data := payload(2500)

	_, err := client.Upload(context.Background(), "photos", "batch/retry.jpg", "image/jpeg",
		media.NewByteSource("retry.jpg", "image/jpeg", data), nil)
	if err != nil {
		t.Fatalf("Upload failed despite retryable part errors: %v", err)
	}

	stored, ok := backend.Object("photos", "batch/retry.jpg")
	if !ok || !bytes.Equal(stored, data) {
		t.Fatal("assembled object is not byte-correct after part retry")
	}
	if len(backend.Aborted()) != 0 {
		t.Fatal("no abort expected on success")
	}
}

func TestMultipartPermanentPartFailureAborts(t *testing.T) {
	backend := testsupport.NewStorageBackend(t)
	backend.PermanentFailPart = 3
	client := newClient(backend, 1024, 1000)
	data := payload(5000) // parts 1..5

	_, err := client.Upload(context.Background(), "photos", "batch/fail.jpg", "image/jpeg",
		media.NewByteSource("fail.jpg", "image/jpeg", data), nil)
	if err == nil {
		t.Fatal("expected upload failure")
	}
	var statusErr *services.HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 403 {
		t.Fatalf("expected the original 403 to propagate, got %v", err)
	}

	if got := backend.Aborted(); len(got) != 1 {
		t.Fatalf("expected exactly one abort call, got %d", len(got))
	}
	if _, ok := backend.Object("photos", "batch/fail.jpg"); ok {
		t.Fatal("failed upload must not produce an object")
	}
}

func TestMultipartMissingETagIsConfigurationError(t *testing.T) {
	backend := testsupport.NewStorageBackend(t)
	backend.DropETag = true
	client := newClient(backend, 1024, 1000)

	_, err := client.Upload(context.Background(), "photos", "batch/noetag.jpg", "image/jpeg",
		media.NewByteSource("noetag.jpg", "image/jpeg", payload(2500)), nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for missing ETag, got %v", err)
	}
}

func TestMultipartUnavailableFallsBackWithinCap(t *testing.T) {
	backend := testsupport.NewStorageBackend(t)
	backend.MultipartUnavailable = true
	client := newClient(backend, 1024, 1000)
	data := payload(2500)

	result, err := client.Upload(context.Background(), "photos", "batch/fallback.jpg", "image/jpeg",
		media.NewByteSource("fallback.jpg", "image/jpeg", data), nil)
	if err != nil {
		t.Fatalf("expected single-request fallback, got %v", err)
	}
	if result.PublicURL == "" {
		t.Fatal("expected public url from fallback")
	}
	stored, ok := backend.Object("photos", "batch/fallback.jpg")
	if !ok || !bytes.Equal(stored, data) {
		t.Fatal("fallback object mismatch")
	}
}

func TestMultipartUnavailableBeyondCapFails(t *testing.T) {
	backend := testsupport.NewStorageBackend(t)
	backend.MultipartUnavailable = true
	client := storage.NewClient(storage.Config{
		Endpoint:           backend.Endpoint(),
		MultipartThreshold: 1024,
		PartSize:           1000,
		PartConcurrency:    3,
		SingleShotCap:      2000, // below payload size
		ControlTimeout:     5 * time.Second,
	}, logging.NewNop(), storage.WithRetryPolicy(fastPolicy()))

	_, err := client.Upload(context.Background(), "photos", "batch/toobig.jpg", "image/jpeg",
		media.NewByteSource("toobig.jpg", "image/jpeg", payload(2500)), nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error beyond fallback cap, got %v", err)
	}
}

func TestConvertInPlace(t *testing.T) {
	backend := testsupport.NewStorageBackend(t)
	client := newClient(backend, 1024, 1000)

	if err := client.ConvertInPlace(context.Background(), "photos", "batch/raw.heic"); err != nil {
		t.Fatalf("ConvertInPlace failed: %v", err)
	}
	converted := backend.Converted()
	if len(converted) != 1 || converted[0] != "photos/batch/raw.heic" {
		t.Fatalf("unexpected conversion calls: %v", converted)
	}
}

func assertMonotonicTo100(t *testing.T, percents []int) {
	t.Helper()
	if len(percents) == 0 {
		t.Fatal("expected progress reports")
	}
	prev := -1
	for _, p := range percents {
		if p < prev {
			t.Fatalf("progress went backwards: %v", percents)
		}
		prev = p
	}
	if percents[len(percents)-1] != 100 {
		t.Fatalf("expected final progress 100, got %d", percents[len(percents)-1])
	}
	for _, p := range percents[:len(percents)-1] {
		if p >= 100 {
			t.Fatal("100 must be reserved for confirmed completion")
		}
	}
}
