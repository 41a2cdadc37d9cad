package queue

import (
	"strings"
	"time"

	"hoist/internal/media"
)

// Status represents the lifecycle of an upload job.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusHashing     Status = "hashing"
	StatusConverting  Status = "converting"
	StatusCompressing Status = "compressing"
	StatusUploading   Status = "uploading"
	StatusProcessing  Status = "processing"
	StatusUploaded    Status = "uploaded"
	StatusSaving      Status = "saving"
	StatusRetrying    Status = "retrying"
	StatusComplete    Status = "complete"
	StatusError       Status = "error"
	StatusSkipped     Status = "skipped"
)

var allStatuses = []Status{
	StatusQueued,
	StatusHashing,
	StatusConverting,
	StatusCompressing,
	StatusUploading,
	StatusProcessing,
	StatusUploaded,
	StatusSaving,
	StatusRetrying,
	StatusComplete,
	StatusError,
	StatusSkipped,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// activeStatuses are the in-flight statuses counted against the concurrency
// limit. A job id is tracked in the scheduler's active set exactly while its
// status is one of these.
var activeStatuses = map[Status]struct{}{
	StatusConverting:  {},
	StatusCompressing: {},
	StatusUploading:   {},
	StatusProcessing:  {},
	StatusUploaded:    {},
	StatusSaving:      {},
}

// terminalStatuses never leave their state through the pipeline. Error can
// still be re-queued by an explicit user retry.
var terminalStatuses = map[Status]struct{}{
	StatusComplete: {},
	StatusError:    {},
	StatusSkipped:  {},
}

// allowedTransitions is the explicit state machine. Transitions not listed
// here are bugs, not recoverable conditions.
var allowedTransitions = map[Status][]Status{
	StatusQueued:      {StatusHashing, StatusConverting, StatusCompressing, StatusUploading, StatusSkipped},
	StatusHashing:     {StatusQueued, StatusSkipped},
	StatusConverting:  {StatusCompressing, StatusUploading, StatusRetrying, StatusError},
	StatusCompressing: {StatusUploading, StatusRetrying, StatusError},
	StatusUploading:   {StatusProcessing, StatusUploaded, StatusRetrying, StatusError},
	StatusProcessing:  {StatusUploaded, StatusRetrying, StatusError},
	StatusUploaded:    {StatusSaving, StatusRetrying, StatusError},
	StatusSaving:      {StatusComplete, StatusRetrying, StatusError},
	StatusRetrying:    {StatusQueued},
	StatusError:       {StatusQueued},
	StatusComplete:    {},
	StatusSkipped:     {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsActive reports whether a status counts against the concurrency limit.
func IsActive(status Status) bool {
	_, ok := activeStatuses[status]
	return ok
}

// IsTerminal reports whether a status ends the pipeline for a job.
func IsTerminal(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Job is one file moving through the upload pipeline.
type Job struct {
	ID      string
	BatchID string

	Source media.Source
	Kind   media.Kind

	Status       Status
	Progress     int
	RetryCount   int
	ContentHash  string
	ErrorMessage string
	Caption      string

	// Artifacts populated as the pipeline advances.
	PublicURL     string
	ObjectPath    string
	Provider      string
	RemoteVideoID string
	ThumbnailURL  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the job currently occupies a worker slot.
func (j Job) IsActive() bool { return IsActive(j.Status) }

// IsTerminal reports whether the job has finished the pipeline.
func (j Job) IsTerminal() bool { return IsTerminal(j.Status) }

// Stats aggregates batch-level counts for caller rendering.
type Stats struct {
	Total    int
	Queued   int
	Active   int
	Retrying int
	Complete int
	Failed   int
	Skipped  int
	// Percent is the mean job progress across non-skipped jobs, 0-100.
	Percent int
}

// Done reports whether every job has reached a terminal state.
func (s Stats) Done() bool {
	return s.Total > 0 && s.Complete+s.Failed+s.Skipped == s.Total
}
