// Package media defines the source-file abstraction the upload pipeline
// operates on, plus media kinds and pre-enqueue validation.
//
// A Source is a named, sized, re-openable byte stream. File-backed and
// in-memory implementations are provided; normalization steps produce new
// in-memory sources rather than mutating the original.
package media
