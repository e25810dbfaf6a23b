// SPDX-License-Identifier: MIT
//go:build windows

package shm

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

type segment struct {
	handle windows.Handle
	size   int
}

// Mappings in the Local\ namespace are per session and vanish when the last
// handle closes, so there is nothing to remove.
func mappingName(opts Options) (*uint16, error) {
	return windows.UTF16PtrFromString(`Local\` + opts.Name)
}

func createSegment(opts Options) (*segment, error) {
	name, err := mappingName(opts)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, uint32(opts.Size()), name)
	if err != nil {
		return nil, fmt.Errorf("CreateFileMapping %s: %w", opts.Name, err)
	}
	return &segment{handle: h, size: opts.Size()}, nil
}

// x/sys/windows has no wrapper for OpenFileMappingW.
var procOpenFileMapping = windows.NewLazySystemDLL("kernel32.dll").NewProc("OpenFileMappingW")

// openSegment opens an existing mapping for reading. It never creates one.
func openSegment(opts Options) (*segment, error) {
	name, err := mappingName(opts)
	if err != nil {
		return nil, err
	}
	r, _, callErr := procOpenFileMapping.Call(uintptr(windows.FILE_MAP_READ), 0, uintptr(unsafe.Pointer(name)))
	if r == 0 {
		if errors.Is(callErr, windows.ERROR_FILE_NOT_FOUND) {
			return nil, fmt.Errorf("%s: %w", opts.Name, ErrNotFound)
		}
		return nil, fmt.Errorf("OpenFileMapping %s: %w", opts.Name, callErr)
	}
	return &segment{handle: windows.Handle(r), size: opts.Size()}, nil
}

func (s *segment) view(access uint32) ([]byte, uintptr, error) {
	addr, err := windows.MapViewOfFile(s.handle, access, 0, 0, uintptr(s.size))
	if err != nil {
		return nil, 0, fmt.Errorf("MapViewOfFile: %w", err)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), s.size), addr, nil
}

func (s *segment) write(values []float32, flush bool) error {
	mem, addr, err := s.view(windows.FILE_MAP_WRITE)
	if err != nil {
		return err
	}
	encode(mem, values)
	if flush {
		if err := windows.FlushViewOfFile(addr, uintptr(s.size)); err != nil {
			windows.UnmapViewOfFile(addr)
			return fmt.Errorf("FlushViewOfFile: %w", err)
		}
	}
	return windows.UnmapViewOfFile(addr)
}

func (s *segment) read(dst []float32) error {
	mem, addr, err := s.view(windows.FILE_MAP_READ)
	if err != nil {
		return err
	}
	decode(dst, mem)
	return windows.UnmapViewOfFile(addr)
}

func (s *segment) close(bool) error {
	return windows.CloseHandle(s.handle)
}
