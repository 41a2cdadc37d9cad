// Package main hosts the hoist CLI entrypoint and command graph.
//
// The Cobra-based command tree surfaces the upload pipeline to the terminal:
// uploading batches of files as drafts, publishing a scope's drafts, listing
// the local registry, and configuration scaffolding. It centralizes
// configuration resolution, registry selection, and structured logging setup
// so subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
