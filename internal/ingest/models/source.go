package models

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
)

// Source is an opaque reference to the original binary payload. The payload
// itself is never copied into a FileRecord; consumers stream it on demand.
type Source interface {
	Name() string
	Size() int64
	MimeType() string
	Open() (io.ReadCloser, error)
}

// BytesSource wraps an in-memory payload. Used by tests and small demos.
type BytesSource struct {
	name string
	mime string
	data []byte
}

func NewBytesSource(name, mimeType string, data []byte) *BytesSource {
	return &BytesSource{name: name, mime: mimeType, data: data}
}

func (s *BytesSource) Name() string     { return s.name }
func (s *BytesSource) Size() int64      { return int64(len(s.data)) }
func (s *BytesSource) MimeType() string { return s.mime }

func (s *BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

// FileSource references a payload on the local filesystem. Size and mime type
// are captured at construction; the file is reopened per Open call.
type FileSource struct {
	path string
	size int64
	mime string
}

func NewFileSource(path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrInvalidArgument, path)
	}

	mt := mime.TypeByExtension(filepath.Ext(path))
	if mt == "" {
		mt = "application/octet-stream"
	}

	return &FileSource{path: path, size: info.Size(), mime: mt}, nil
}

func (s *FileSource) Name() string     { return filepath.Base(s.path) }
func (s *FileSource) Size() int64      { return s.size }
func (s *FileSource) MimeType() string { return s.mime }

func (s *FileSource) Open() (io.ReadCloser, error) {
	return os.Open(s.path)
}
