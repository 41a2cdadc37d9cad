// Package videoingest streams video assets to the remote transcoding service
// over a resumable chunked-upload protocol.
//
// A sized upload target is created first, then fixed-size chunks are sent
// with an explicit offset. After a failed chunk the client re-reads the
// server's committed offset and resumes from there, so an ambiguous network
// failure never duplicates or loses bytes. Transcoding itself completes
// asynchronously on the service side; callers get the remote video id as soon
// as the last chunk is accepted.
package videoingest
