package queue_test

import (
	"testing"

	"hoist/internal/queue"
)

func TestParseStatus(t *testing.T) {
	status, ok := queue.ParseStatus("  Uploading ")
	if !ok || status != queue.StatusUploading {
		t.Fatalf("ParseStatus = %q, %v", status, ok)
	}
	if _, ok := queue.ParseStatus("ripping"); ok {
		t.Fatal("unknown status accepted")
	}
	if _, ok := queue.ParseStatus(""); ok {
		t.Fatal("empty status accepted")
	}
}

func TestStatusPartitions(t *testing.T) {
	active := []queue.Status{
		queue.StatusConverting,
		queue.StatusCompressing,
		queue.StatusUploading,
		queue.StatusProcessing,
		queue.StatusUploaded,
		queue.StatusSaving,
	}
	for _, status := range active {
		if !queue.IsActive(status) {
			t.Errorf("%s should be active", status)
		}
		if queue.IsTerminal(status) {
			t.Errorf("%s should not be terminal", status)
		}
	}
	for _, status := range []queue.Status{queue.StatusComplete, queue.StatusError, queue.StatusSkipped} {
		if !queue.IsTerminal(status) {
			t.Errorf("%s should be terminal", status)
		}
		if queue.IsActive(status) {
			t.Errorf("%s should not be active", status)
		}
	}
	if queue.IsActive(queue.StatusQueued) || queue.IsActive(queue.StatusRetrying) {
		t.Error("queued and retrying do not occupy worker slots")
	}
}

func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to queue.Status }{
		{queue.StatusQueued, queue.StatusHashing},
		{queue.StatusQueued, queue.StatusUploading},
		{queue.StatusQueued, queue.StatusSkipped},
		{queue.StatusHashing, queue.StatusQueued},
		{queue.StatusConverting, queue.StatusCompressing},
		{queue.StatusUploading, queue.StatusProcessing},
		{queue.StatusUploading, queue.StatusUploaded},
		{queue.StatusProcessing, queue.StatusUploaded},
		{queue.StatusUploaded, queue.StatusSaving},
		{queue.StatusSaving, queue.StatusComplete},
		{queue.StatusSaving, queue.StatusRetrying},
		{queue.StatusRetrying, queue.StatusQueued},
		{queue.StatusError, queue.StatusQueued},
	}
	for _, tc := range allowed {
		if !queue.CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to queue.Status }{
		{queue.StatusComplete, queue.StatusQueued},
		{queue.StatusSkipped, queue.StatusQueued},
		{queue.StatusQueued, queue.StatusComplete},
		{queue.StatusUploading, queue.StatusQueued},
		{queue.StatusSaving, queue.StatusUploading},
		{queue.StatusError, queue.StatusUploading},
	}
	for _, tc := range forbidden {
		if queue.CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be rejected", tc.from, tc.to)
		}
	}
}
