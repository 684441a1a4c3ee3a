package network

import (
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

const defaultContentType = "application/octet-stream"

// Source is a readable byte source with a known length and content type.
// Chunk returns a reader over [offset, offset+length) without buffering the
// whole source; it may be called repeatedly for the same range when a chunk
// is retried.
type Source interface {
	Name() string
	Size() int64
	ContentType() string
	Chunk(offset, length int64) io.Reader
}

// FileSource is a Source backed by a file on disk.
type FileSource struct {
	file        *os.File
	name        string
	size        int64
	contentType string
}

// NewFileSource opens the file at path and sniffs its content type. Detection
// failures fall back to application/octet-stream.
func NewFileSource(path string) (*FileSource, error) {
	contentType := defaultContentType
	if mime, err := mimetype.DetectFile(path); err == nil {
		contentType = mime.String()
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			return nil, fmt.Errorf("stat file: %w (close: %s)", err, closeErr)
		}
		return nil, fmt.Errorf("stat file: %w", err)
	}

	return &FileSource{
		file:        file,
		name:        info.Name(),
		size:        info.Size(),
		contentType: contentType,
	}, nil
}

// Name ...
func (s *FileSource) Name() string { return s.name }

// Size ...
func (s *FileSource) Size() int64 { return s.size }

// ContentType ...
func (s *FileSource) ContentType() string { return s.contentType }

// Chunk ...
func (s *FileSource) Chunk(offset, length int64) io.Reader {
	return io.NewSectionReader(s.file, offset, length)
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	return s.file.Close()
}

// ReaderSource adapts an in-memory or otherwise random-access reader.
type ReaderSource struct {
	r           io.ReaderAt
	name        string
	size        int64
	contentType string
}

// NewReaderSource creates a Source over r. An empty contentType defaults to
// application/octet-stream.
func NewReaderSource(r io.ReaderAt, size int64, name, contentType string) *ReaderSource {
	if contentType == "" {
		contentType = defaultContentType
	}
	return &ReaderSource{r: r, name: name, size: size, contentType: contentType}
}

// Name ...
func (s *ReaderSource) Name() string { return s.name }

// Size ...
func (s *ReaderSource) Size() int64 { return s.size }

// ContentType ...
func (s *ReaderSource) ContentType() string { return s.contentType }

// Chunk ...
func (s *ReaderSource) Chunk(offset, length int64) io.Reader {
	return io.NewSectionReader(s.r, offset, length)
}
