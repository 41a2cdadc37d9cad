package media

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Constraints describes the file acceptance rules applied before enqueue.
type Constraints struct {
	MaxPhotoBytes   int64
	MaxVideoBytes   int64
	PhotoExtensions []string
	VideoExtensions []string
}

// ValidationError describes a file rejected before it became a job.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid file %s: %s", e.Name, e.Reason)
}

// Kind classifies a file name against the configured extension lists. The
// boolean result reports whether the extension is recognized at all.
func (c Constraints) Kind(name string) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case contains(c.PhotoExtensions, ext):
		return KindPhoto, true
	case contains(c.VideoExtensions, ext):
		return KindVideo, true
	}
	return "", false
}

// Validate checks a source against the constraints, returning its kind on
// success or a *ValidationError describing the rejection.
func (c Constraints) Validate(src Source) (Kind, *ValidationError) {
	name := src.Name()
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return "", &ValidationError{Name: name, Reason: "missing file extension"}
	}

	kind, ok := c.Kind(name)
	if !ok {
		return "", &ValidationError{Name: name, Reason: fmt.Sprintf("unsupported file type %s", ext)}
	}

	max := c.MaxPhotoBytes
	if kind == KindVideo {
		max = c.MaxVideoBytes
	}
	if max > 0 && src.Size() > max {
		return "", &ValidationError{Name: name, Reason: fmt.Sprintf("%s exceeds %d bytes", kind, max)}
	}
	return kind, nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
