// Package registry records uploaded assets as drafts and promotes them to
// published in one batch action.
//
// Two implementations are provided: an HTTP client for the backend RPC
// surface, and a SQLite store for standalone CLI use and tests. Both enforce
// the same two-phase contract: drafts persist immediately after upload,
// nothing is visible until PublishDrafts runs for the scope.
package registry
