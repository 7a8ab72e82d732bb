package models

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// File is a raw file blob selected for upload.
type File struct {
	Name     string
	Size     int64
	MimeType string
	ModTime  time.Time
	open     func() (io.ReadCloser, error)
}

// NewFileFromBytes wraps an in-memory payload.
func NewFileFromBytes(name string, data []byte) *File {
	return &File{
		Name:     name,
		Size:     int64(len(data)),
		MimeType: mimetype.Detect(data).String(),
		ModTime:  time.Now(),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// NewFileFromPath describes a file on the local filesystem. Content is read lazily.
func NewFileFromPath(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	mime := "application/octet-stream"
	if mt, err := mimetype.DetectFile(path); err == nil {
		mime = mt.String()
	}

	return &File{
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MimeType: mime,
		ModTime:  info.ModTime(),
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// Open returns a fresh reader over the file content.
func (f *File) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, fmt.Errorf("file %s has no content source", f.Name)
	}
	return f.open()
}
