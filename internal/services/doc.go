// Package services defines the error taxonomy shared by the upload pipeline's
// remote-service clients.
//
// Errors are tagged with sentinel markers (validation, transient, permanent,
// conversion, configuration, cancelled) so retry policy and job status mapping
// can classify failures with errors.Is instead of string matching.
package services
