// Package storage uploads byte streams to a remote object store through a
// presign backend.
//
// Payloads below the multipart threshold travel as one presigned PUT, fully
// buffered so the source handle cannot be invalidated mid-transfer. Larger
// payloads are partitioned into contiguous parts uploaded with bounded
// parallelism; any part's permanent failure cancels its siblings through the
// shared context and aborts the multipart handle remotely. Both strategies
// share the retry policy in internal/retry.
//
// Control calls (presign, create, complete, abort) run against a client with a
// bounded timeout so an unreachable backend fails fast. Raw byte transfers
// deliberately carry no timeout: a slow genuine transfer must not be killed by
// a timer, only real network errors trigger retry.
package storage
