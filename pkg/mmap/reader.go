//go:build unix

// Package mmap provides read-only memory-mapped files.
package mmap

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Reader is a read-only memory mapping of a whole file. It is safe for
// concurrent use until Close.
type Reader struct {
	path string
	data []byte

	mu     sync.RWMutex
	closed bool
}

// Open maps path into memory. An empty file yields a reader of length 0.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	r := &Reader{path: path}
	if stat.Size() == 0 {
		return r, nil
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(stat.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap %s: %w", path, err)
	}
	r.data = data
	return r, nil
}

// Len returns the file size in bytes.
func (r *Reader) Len() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.data))
}

// Path returns the mapped file path.
func (r *Reader) Path() string {
	return r.path
}

// Slice returns length bytes at offset without copying. The slice is only
// valid until Close.
func (r *Reader) Slice(offset, length int64) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, fmt.Errorf("mmap reader %s is closed", r.path)
	}
	if offset < 0 || length < 0 || offset+length > int64(len(r.data)) {
		return nil, fmt.Errorf("range [%d,%d) out of file %s of %d bytes", offset, offset+length, r.path, len(r.data))
	}
	return r.data[offset : offset+length], nil
}

// ReadAt implements io.ReaderAt.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return 0, fmt.Errorf("mmap reader %s is closed", r.path)
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WillNeed advises the kernel that [offset, offset+length) will be read soon.
// Failures are ignored.
func (r *Reader) WillNeed(offset, length int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed || len(r.data) == 0 {
		return
	}
	page := int64(os.Getpagesize())
	start := offset / page * page
	end := min(offset+length, int64(len(r.data)))
	if start < 0 || start >= end {
		return
	}
	_ = unix.Madvise(r.data[start:end], unix.MADV_WILLNEED)
}

// Close unmaps the file. Slices returned earlier must not be used afterwards.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}
