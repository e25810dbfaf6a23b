// SPDX-License-Identifier: MIT
//go:build linux || darwin

package shm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

type segment struct {
	file *os.File
	fd   int
	size int
	path string
}

func createSegment(opts Options) (*segment, error) {
	path := opts.Path()
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := f.Truncate(int64(opts.Size())); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate %s: %w", path, err)
	}
	return &segment{file: f, fd: int(f.Fd()), size: opts.Size(), path: path}, nil
}

func openSegment(opts Options) (*segment, error) {
	path := opts.Path()
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() < int64(opts.Size()) {
		f.Close()
		return nil, fmt.Errorf("%s is %d bytes, expected %d", path, fi.Size(), opts.Size())
	}
	return &segment{file: f, fd: int(f.Fd()), size: opts.Size(), path: path}, nil
}

// write maps the segment, stores the values and unmaps it again.
func (s *segment) write(values []float32, flush bool) error {
	mem, err := unix.Mmap(s.fd, 0, s.size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}
	encode(mem, values)
	if flush {
		if err := unix.Msync(mem, unix.MS_ASYNC); err != nil {
			unix.Munmap(mem)
			return fmt.Errorf("msync: %w", err)
		}
	}
	return unix.Munmap(mem)
}

func (s *segment) read(dst []float32) error {
	mem, err := unix.Mmap(s.fd, 0, s.size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}
	decode(dst, mem)
	return unix.Munmap(mem)
}

func (s *segment) close(remove bool) error {
	err := s.file.Close()
	if remove {
		if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) && err == nil {
			err = rmErr
		}
	}
	return err
}
