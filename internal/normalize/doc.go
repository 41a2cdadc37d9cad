// Package normalize brings raw media into a form the transport layer accepts.
//
// Conversion is layered: a local Converter runs first, and when none is
// available (the common case for HEIC), the file is flagged for remote
// conversion after upload instead of blocking the pipeline. Compression is
// best effort and never required for correctness; on any failure the original
// source is returned unchanged.
package normalize
