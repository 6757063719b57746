// Package importer implements the archive import pipeline: spooling the
// uploaded stream, scanning it into per-recording segments, delivering each
// segment through a transport strategy, and tracking progress for pollers.
package importer

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Spool buffers a stream in memory up to a threshold and spills to a temp
// file beyond it. The buffered bytes can be re-read any number of times,
// which the pipeline needs since segment offsets are only known after a
// full scan.
type Spool struct {
	threshold int
	tempDir   string
	buf       bytes.Buffer
	file      *os.File
	size      int64
}

// NewSpool creates a spool spilling to tempDir past threshold bytes.
func NewSpool(threshold int, tempDir string) *Spool {
	return &Spool{threshold: threshold, tempDir: tempDir}
}

// Write appends p, spilling to disk when the memory threshold is crossed.
func (s *Spool) Write(p []byte) (int, error) {
	if s.file == nil && s.buf.Len()+len(p) > s.threshold {
		f, err := os.CreateTemp(s.tempDir, "upload-*.spool")
		if err != nil {
			return 0, fmt.Errorf("creating spool file: %w", err)
		}
		if _, err := f.Write(s.buf.Bytes()); err != nil {
			f.Close()
			os.Remove(f.Name())
			return 0, fmt.Errorf("spilling spool buffer: %w", err)
		}
		s.buf.Reset()
		s.file = f
	}

	var n int
	var err error
	if s.file != nil {
		n, err = s.file.Write(p)
	} else {
		n, err = s.buf.Write(p)
	}
	s.size += int64(n)
	return n, err
}

// Size returns the number of bytes written so far.
func (s *Spool) Size() int64 {
	return s.size
}

// Reader returns a fresh reader over the full spooled content, positioned
// at the start. Only one reader is usable at a time for a file-backed spool.
func (s *Spool) Reader() (io.ReadSeeker, error) {
	if s.file != nil {
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewinding spool: %w", err)
		}
		return s.file, nil
	}
	return bytes.NewReader(s.buf.Bytes()), nil
}

// Close releases the backing file, if any.
func (s *Spool) Close() error {
	if s.file == nil {
		return nil
	}
	name := s.file.Name()
	err := s.file.Close()
	os.Remove(name)
	s.file = nil
	return err
}
