package media

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Source is a named, sized, re-openable byte stream. Open may be called
// multiple times; each call returns an independent reader positioned at the
// start, which is what retrying transports rely on.
type Source interface {
	Name() string
	Size() int64
	ContentType() string
	Open() (io.ReadCloser, error)
}

// FileSource reads from a file on disk.
type FileSource struct {
	path string
	size int64
}

// NewFileSource stats path and returns a file-backed source.
func NewFileSource(path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source %s is a directory", path)
	}
	return &FileSource{path: path, size: info.Size()}, nil
}

func (f *FileSource) Name() string { return filepath.Base(f.path) }

func (f *FileSource) Size() int64 { return f.size }

func (f *FileSource) ContentType() string { return ContentTypeForName(f.path) }

func (f *FileSource) Open() (io.ReadCloser, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	return file, nil
}

// Path returns the underlying file path.
func (f *FileSource) Path() string { return f.path }

// ByteSource holds its payload in memory. Normalization outputs and test
// fixtures use it.
type ByteSource struct {
	name        string
	contentType string
	data        []byte
}

// NewByteSource wraps data in a Source.
func NewByteSource(name, contentType string, data []byte) *ByteSource {
	if contentType == "" {
		contentType = ContentTypeForName(name)
	}
	return &ByteSource{name: name, contentType: contentType, data: data}
}

func (b *ByteSource) Name() string { return b.name }

func (b *ByteSource) Size() int64 { return int64(len(b.data)) }

func (b *ByteSource) ContentType() string { return b.contentType }

func (b *ByteSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

// Bytes returns the underlying payload without copying.
func (b *ByteSource) Bytes() []byte { return b.data }

// ReadAll buffers the full contents of src into memory.
func ReadAll(src Source) ([]byte, error) {
	reader, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source %s: %w", src.Name(), err)
	}
	return data, nil
}

// ContentTypeForName resolves a MIME type from a file name, defaulting to
// application/octet-stream.
func ContentTypeForName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
