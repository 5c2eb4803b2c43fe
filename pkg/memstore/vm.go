// Package memstore reserves aligned slabs of virtual memory from the OS and
// hands out fixed-size pages from them. It is the backing layer for the
// binned allocator: slabs are carved into pages, pages into blocks.
package memstore

import (
	"os"
	"syscall"

	apperrors "github.com/taskgraph/pkg/errors"
	"github.com/taskgraph/pkg/concurrent"
)

// reservation is a contiguous anonymous mapping. The usable region is the
// slab-aligned window inside it; the head and tail cut off by alignment stay
// reserved (address space only) until release.
type reservation struct {
	mapping []byte // the full OS mapping, kept for Munmap
	region  []byte // aligned usable window
}

// reserveAligned maps size bytes of inaccessible memory aligned to align.
// The OS gives no alignment guarantee beyond the page, so the mapping is
// over-sized by align and the aligned window is selected inside it. The
// excess is never committed.
func reserveAligned(size, align uintptr) (*reservation, error) {
	mapping, err := syscall.Mmap(-1, 0, int(size+align),
		syscall.PROT_NONE, syscall.MAP_PRIVATE|syscall.MAP_ANON)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeOutOfMemory, "mmap reservation failed", err)
	}

	base := addrOf(mapping)
	alignedBase := concurrent.AlignUp(base, align)
	offset := alignedBase - base

	return &reservation{
		mapping: mapping,
		region:  mapping[offset : offset+size],
	}, nil
}

// release returns the whole mapping to the OS.
func (r *reservation) release() error {
	return syscall.Munmap(r.mapping)
}

// commit makes a sub-range of the region readable and writable.
func (r *reservation) commit(offset, length uintptr) error {
	if err := syscall.Mprotect(r.region[offset:offset+length], syscall.PROT_READ|syscall.PROT_WRITE); err != nil {
		return apperrors.Wrap(apperrors.CodeOutOfMemory, "mprotect commit failed", err)
	}
	return nil
}

// decommit releases the physical memory behind a sub-range and makes it
// inaccessible again.
func (r *reservation) decommit(offset, length uintptr) error {
	sub := r.region[offset : offset+length]
	if err := syscall.Madvise(sub, syscall.MADV_DONTNEED); err != nil {
		return err
	}
	return syscall.Mprotect(sub, syscall.PROT_NONE)
}

// osPageSize returns the OS page size; commit granularity is a multiple of it.
func osPageSize() uintptr {
	return uintptr(os.Getpagesize())
}
