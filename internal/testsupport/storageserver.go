package testsupport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// StorageBackend is a fake presign/object-store backend speaking the real
// wire protocol. It serves presigned URLs that point back at itself, stores
// uploaded objects in memory, and assembles multipart uploads on completion.
//
// Failure injection knobs must be set before traffic starts.
type StorageBackend struct {
	Server *httptest.Server

	// PartFailures maps part number to how many attempts should fail with a
	// retryable 500 before succeeding.
	PartFailures map[int]int
	// PermanentFailPart makes one part number always fail with 403.
	PermanentFailPart int
	// MultipartUnavailable makes multipart create report storage not configured.
	MultipartUnavailable bool
	// DropETag suppresses the ETag response header on part uploads.
	DropETag bool

	mu        sync.Mutex
	objects   map[string][]byte
	uploads   map[string]*multipartState
	aborted   []string
	converted []string
	putCalls  int
}

type multipartState struct {
	bucket string
	path   string
	parts  map[int][]byte
	etags  map[int]string
}

// NewStorageBackend starts the fake backend; it is shut down with the test.
func NewStorageBackend(t testing.TB) *StorageBackend {
	t.Helper()
	backend := &StorageBackend{
		PartFailures: make(map[int]int),
		objects:      make(map[string][]byte),
		uploads:      make(map[string]*multipartState),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/presign", backend.handlePresign)
	mux.HandleFunc("/multipart/create", backend.handleCreate)
	mux.HandleFunc("/multipart/presign", backend.handlePresignParts)
	mux.HandleFunc("/multipart/complete", backend.handleComplete)
	mux.HandleFunc("/convert", backend.handleConvert)
	mux.HandleFunc("/put/", backend.handlePut)
	mux.HandleFunc("/putpart/", backend.handlePutPart)
	backend.Server = httptest.NewServer(mux)
	t.Cleanup(backend.Server.Close)
	return backend
}

// Endpoint returns the backend base URL.
func (b *StorageBackend) Endpoint() string { return b.Server.URL }

// Object returns a stored object's bytes.
func (b *StorageBackend) Object(bucket, path string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[bucket+"/"+path]
	return data, ok
}

// Aborted returns the upload ids released via the abort variant.
func (b *StorageBackend) Aborted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.aborted...)
}

// Converted returns the object paths sent to the conversion endpoint.
func (b *StorageBackend) Converted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.converted...)
}

// PutCalls returns how many raw PUT requests were received.
func (b *StorageBackend) PutCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.putCalls
}

func (b *StorageBackend) handlePresign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bucket      string `json:"bucket"`
		Path        string `json:"path"`
		ContentType string `json:"contentType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{
		"url":       fmt.Sprintf("%s/put/%s/%s", b.Server.URL, req.Bucket, req.Path),
		"publicUrl": fmt.Sprintf("https://cdn.test/%s/%s", req.Bucket, req.Path),
		"provider":  "fake",
	})
}

func (b *StorageBackend) handleCreate(w http.ResponseWriter, r *http.Request) {
	if b.MultipartUnavailable {
		http.Error(w, "storage not configured", http.StatusNotImplemented)
		return
	}
	var req struct {
		Bucket string `json:"bucket"`
		Path   string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	uploadID := fmt.Sprintf("upload-%d", len(b.uploads)+1)
	b.uploads[uploadID] = &multipartState{
		bucket: req.Bucket,
		path:   req.Path,
		parts:  make(map[int][]byte),
		etags:  make(map[int]string),
	}
	b.mu.Unlock()
	writeJSON(w, map[string]string{
		"uploadId":  uploadID,
		"key":       req.Path,
		"publicUrl": fmt.Sprintf("https://cdn.test/%s/%s", req.Bucket, req.Path),
	})
}

func (b *StorageBackend) handlePresignParts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UploadID    string `json:"uploadId"`
		PartNumbers []int  `json:"partNumbers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	urls := make([]map[string]any, 0, len(req.PartNumbers))
	for _, number := range req.PartNumbers {
		urls = append(urls, map[string]any{
			"partNumber": number,
			"url":        fmt.Sprintf("%s/putpart/%s/%d", b.Server.URL, req.UploadID, number),
		})
	}
	writeJSON(w, map[string]any{"urls": urls})
}

func (b *StorageBackend) handlePut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/put/")
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	b.mu.Lock()
	b.putCalls++
	b.objects[key] = data
	b.mu.Unlock()
	w.Header().Set("ETag", `"single"`)
	w.WriteHeader(http.StatusOK)
}

func (b *StorageBackend) handlePutPart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/putpart/")
	segments := strings.SplitN(rest, "/", 2)
	if len(segments) != 2 {
		http.Error(w, "bad part url", http.StatusBadRequest)
		return
	}
	uploadID := segments[0]
	number, err := strconv.Atoi(segments[1])
	if err != nil {
		http.Error(w, "bad part number", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	b.mu.Lock()
	b.putCalls++
	if number == b.PermanentFailPart {
		b.mu.Unlock()
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if remaining := b.PartFailures[number]; remaining > 0 {
		b.PartFailures[number] = remaining - 1
		b.mu.Unlock()
		http.Error(w, "transient", http.StatusInternalServerError)
		return
	}
	state, ok := b.uploads[uploadID]
	if !ok {
		b.mu.Unlock()
		http.Error(w, "unknown upload", http.StatusNotFound)
		return
	}
	state.parts[number] = data
	etag := fmt.Sprintf("etag-%d-%d", number, len(data))
	state.etags[number] = etag
	drop := b.DropETag
	b.mu.Unlock()

	if !drop {
		w.Header().Set("ETag", `"`+etag+`"`)
	}
	w.WriteHeader(http.StatusOK)
}

func (b *StorageBackend) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bucket   string `json:"bucket"`
		Path     string `json:"path"`
		UploadID string `json:"uploadId"`
		Parts    []struct {
			PartNumber int    `json:"partNumber"`
			ETag       string `json:"etag"`
		} `json:"parts"`
		Abort bool `json:"abort"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.uploads[req.UploadID]
	if !ok {
		http.Error(w, "unknown upload", http.StatusNotFound)
		return
	}
	if req.Abort {
		b.aborted = append(b.aborted, req.UploadID)
		delete(b.uploads, req.UploadID)
		writeJSON(w, map[string]any{})
		return
	}

	sort.Slice(req.Parts, func(i, j int) bool { return req.Parts[i].PartNumber < req.Parts[j].PartNumber })
	var assembled []byte
	for _, part := range req.Parts {
		data, ok := state.parts[part.PartNumber]
		if !ok || state.etags[part.PartNumber] != part.ETag {
			http.Error(w, fmt.Sprintf("part %d missing or etag mismatch", part.PartNumber), http.StatusBadRequest)
			return
		}
		assembled = append(assembled, data...)
	}
	b.objects[req.Bucket+"/"+req.Path] = assembled
	delete(b.uploads, req.UploadID)
	writeJSON(w, map[string]string{
		"publicUrl": fmt.Sprintf("https://cdn.test/%s/%s", req.Bucket, req.Path),
	})
}

func (b *StorageBackend) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bucket string `json:"bucket"`
		Path   string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.converted = append(b.converted, req.Bucket+"/"+req.Path)
	b.mu.Unlock()
	writeJSON(w, map[string]string{
		"publicUrl": fmt.Sprintf("https://cdn.test/%s/%s", req.Bucket, req.Path),
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
