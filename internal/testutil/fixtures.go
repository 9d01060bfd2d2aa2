// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"sync"
	"testing"

	"github.com/johnrirwin/localtv/internal/storage"
)

// SolidImage returns a w x h image filled with c.
func SolidImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// PNG encodes an opaque red w x h image.
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, SolidImage(w, h, color.NRGBA{R: 255, A: 255})); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

// JPEG encodes an opaque blue w x h image.
func JPEG(t testing.TB, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, SolidImage(w, h, color.NRGBA{B: 255, A: 255}), nil); err != nil {
		t.Fatalf("jpeg.Encode() error = %v", err)
	}
	return buf.Bytes()
}

// Op is one call observed by RecordingStorage.
type Op struct {
	Kind string // "save" or "delete"
	Name string
}

// RecordingStorage is an in-memory storage.Storage that logs every write.
type RecordingStorage struct {
	mu    sync.Mutex
	files map[string][]byte
	ops   []Op
	// FailSave makes Save fail for the named file.
	FailSave map[string]error
}

func NewRecordingStorage() *RecordingStorage {
	return &RecordingStorage{files: make(map[string][]byte)}
}

func (s *RecordingStorage) Save(_ context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailSave[name]; err != nil {
		return err
	}
	s.ops = append(s.ops, Op{Kind: "save", Name: name})
	s.files[name] = data
	return nil
}

func (s *RecordingStorage) Open(_ context.Context, name string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	if !ok {
		return nil, storage.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *RecordingStorage) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, Op{Kind: "delete", Name: name})
	delete(s.files, name)
	return nil
}

func (s *RecordingStorage) Exists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[name]
	return ok, nil
}

// File returns the stored bytes of name.
func (s *RecordingStorage) File(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	return data, ok
}

// Ops returns the calls seen so far.
func (s *RecordingStorage) Ops() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Op, len(s.ops))
	copy(out, s.ops)
	return out
}

// Len reports how many files are stored.
func (s *RecordingStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

var _ storage.Storage = (*RecordingStorage)(nil)
