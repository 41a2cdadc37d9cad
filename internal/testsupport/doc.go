// Package testsupport provides shared fixtures for pipeline tests: temp-dir
// configs, an in-memory draft registry, and a fake presign/storage backend
// speaking the real wire protocol over httptest.
package testsupport
