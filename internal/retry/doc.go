// Package retry provides the single backoff policy shared by the single-PUT
// and multipart transport strategies, the video ingest client, and per-job
// requeue delays.
package retry
