// Package logging assembles structured slog loggers shared across the upload
// pipeline.
//
// It owns console/JSON handler selection, centralizes level parsing and output
// plumbing, and exposes attr helpers so queue and transport code tag log lines
// with job IDs, batches, and components the same way everywhere. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits data with the same shape.
package logging
