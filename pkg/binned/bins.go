// Package binned implements a thread-caching allocator over the memory
// store. Allocations are grouped into size bins; each bin hands out blocks
// from pages of one size class. Frees from foreign owners land on per-page
// non-local lists and are reclaimed by the owner on demand.
package binned

import (
	"github.com/taskgraph/pkg/concurrent"
	"github.com/taskgraph/pkg/memstore"
)

// MallocAlignment is the minimum alignment of every returned block.
const MallocAlignment = 16

// Bin layout:
//
//	class 0: (0, 1 KiB]    in MallocAlignment steps -> 64 bins, 16 KiB pages
//	class 1: (1 KiB, 8 KiB]   4 sub-bins per octave  -> 12 bins, 64 KiB pages
//	class 2: (8 KiB, 32 KiB]  4 sub-bins per octave  ->  8 bins, 128 KiB pages
//	class 3: (32 KiB, 512 KiB]                       ->  1 bin, 512 KiB pages
//
// Anything beyond class 3 is oversized and takes a dedicated single-page
// slab straight from the store.
const (
	numSmallBins  = 1024 / MallocAlignment
	numClass1Bins = 3 * subBinsPerOctave
	numClass2Bins = 2 * subBinsPerOctave

	subBinsPerOctave = 4

	class1First = numSmallBins
	class2First = class1First + numClass1Bins
	class3Bin   = class2First + numClass2Bins

	// NumBins is the total number of size bins.
	NumBins = class3Bin + 1

	// MaxBinnedSize is the largest size served from a bin; larger requests
	// are oversized.
	MaxBinnedSize = 512 << 10

	maxSmallSize  = 1 << 10
	maxClass1Size = 8 << 10
	maxClass2Size = 32 << 10
)

// binPageSizes maps a bin's class to the page size its blocks are carved
// from. Indexed by the memstore page class.
var binPageSizes = [4]uintptr{16 << 10, 64 << 10, 128 << 10, 512 << 10}

// CalculateBin returns the bin index for an allocation size, or -1 for
// oversized requests. The index is pure arithmetic on the size's MSB and
// the sub-bin divisor; there is no table walk.
func CalculateBin(size uintptr) int {
	switch {
	case size == 0:
		return -1
	case size <= maxSmallSize:
		return int((size+MallocAlignment-1)>>4) - 1
	case size <= maxClass1Size:
		m, sub := octaveSplit(size)
		return class1First + (m-10)*subBinsPerOctave + sub
	case size <= maxClass2Size:
		m, sub := octaveSplit(size)
		return class2First + (m-13)*subBinsPerOctave + sub
	case size <= MaxBinnedSize:
		return class3Bin
	}
	return -1
}

// octaveSplit decomposes a size in (2^m, 2^(m+1)] into its octave m and
// quarter-octave sub-bin.
func octaveSplit(size uintptr) (m, sub int) {
	m = concurrent.MSBScan(uint64(size - 1))
	sub = int((size-1)>>(uint(m)-2)) & (subBinsPerOctave - 1)
	return m, sub
}

// BinBlockSize returns the block size served by a bin.
func BinBlockSize(bin int) uintptr {
	switch {
	case bin < class1First:
		return uintptr(bin+1) * MallocAlignment
	case bin < class2First:
		rel := bin - class1First
		return octaveBlockSize(10+rel/subBinsPerOctave, rel%subBinsPerOctave)
	case bin < class3Bin:
		rel := bin - class2First
		return octaveBlockSize(13+rel/subBinsPerOctave, rel%subBinsPerOctave)
	default:
		return MaxBinnedSize
	}
}

func octaveBlockSize(m, sub int) uintptr {
	return 1<<uint(m) + uintptr(sub+1)<<(uint(m)-2)
}

// BinPageSize returns the page size a bin allocates its blocks from.
func BinPageSize(bin int) uintptr {
	switch {
	case bin < class1First:
		return binPageSizes[0]
	case bin < class2First:
		return binPageSizes[1]
	case bin < class3Bin:
		return binPageSizes[2]
	default:
		return binPageSizes[3]
	}
}

// BinForBlockSize recovers the bin index from a page's uniform block size.
// It is the inverse of BinBlockSize for every valid bin.
func BinForBlockSize(blockSize uintptr) int {
	return CalculateBin(blockSize)
}

// binPageClass returns the memstore page class a bin draws slabs from.
func binPageClass(bin int) int {
	return memstore.PageClassIndex(BinPageSize(bin))
}
