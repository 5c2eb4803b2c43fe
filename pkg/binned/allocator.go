package binned

import (
	"sync/atomic"
	"unsafe"

	"github.com/taskgraph/pkg/concurrent"
	apperrors "github.com/taskgraph/pkg/errors"
	"github.com/taskgraph/pkg/memstore"
	"github.com/taskgraph/pkg/utils"
)

var nextAllocatorID atomic.Int64

// Allocator is a per-owner binned allocator over a shared memory store.
// All allocation goes through the owner; Free and UsableSize accept blocks
// from any owner and route foreign blocks onto non-local free lists.
type Allocator struct {
	store  *memstore.Store
	id     int64
	logger utils.Logger

	bins  [NumBins]blockAllocator
	slabs [memstore.NumPageClasses]concurrent.IntrusiveList

	allocCount atomic.Int64
	freeCount  atomic.Int64
}

// NewAllocator creates an allocator bound to the store. Each worker owns
// exactly one; the zero-allocation fast paths are owner-only.
func NewAllocator(store *memstore.Store, logger utils.Logger) *Allocator {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	a := &Allocator{
		store:  store,
		id:     nextAllocatorID.Add(1),
		logger: logger,
	}
	for i := range a.bins {
		a.bins[i].init(a, i)
	}
	return a
}

// ID returns the allocator's owner id.
func (a *Allocator) ID() int64 {
	return a.id
}

// Store returns the backing memory store.
func (a *Allocator) Store() *memstore.Store {
	return a.store
}

// ============================================================================
// Allocation API
// ============================================================================

// Alloc returns a block of at least size bytes aligned to MallocAlignment.
// A zero size returns nil; allocation failure returns nil.
func (a *Allocator) Alloc(size uintptr) []byte {
	if size == 0 {
		return nil
	}

	bin := CalculateBin(size)
	if bin < 0 {
		return a.allocOversized(size)
	}

	p, i, err := a.bins[bin].allocate()
	if err != nil || p == nil {
		a.logger.Warn("allocation of %d bytes failed: %v", size, err)
		return nil
	}
	a.allocCount.Add(1)
	return p.Bytes(i)[:size]
}

// Calloc returns zeroed memory for count elements of size bytes each.
// Multiplication overflow returns nil.
func (a *Allocator) Calloc(count, size uintptr) []byte {
	total := count * size
	if count != 0 && total/count != size {
		return nil
	}
	b := a.Alloc(total)
	if b != nil {
		clear(b)
	}
	return b
}

// Realloc resizes a block, growing in place when the block's remaining
// capacity allows and relocating otherwise. A nil block allocates; a zero
// size frees and returns nil.
func (a *Allocator) Realloc(b []byte, size uintptr) []byte {
	if b == nil {
		return a.Alloc(size)
	}
	if size == 0 {
		a.Free(b)
		return nil
	}
	if size <= a.UsableSize(b) {
		return b[:size]
	}
	nb := a.Alloc(size)
	if nb == nil {
		return nil
	}
	copy(nb, b)
	a.Free(b)
	return nb
}

// Expand grows a block in place. Returns the resized slice and true when
// the block's remaining capacity covers size, nil and false otherwise.
func (a *Allocator) Expand(b []byte, size uintptr) ([]byte, bool) {
	if b == nil || size == 0 {
		return nil, false
	}
	if size <= a.UsableSize(b) {
		return b[:size], true
	}
	return nil, false
}

// Strdup copies a string into a freshly allocated NUL-terminated block.
func (a *Allocator) Strdup(s string) []byte {
	b := a.Alloc(uintptr(len(s)) + 1)
	if b == nil {
		return nil
	}
	copy(b, s)
	b[len(s)] = 0
	return b
}

// AlignedAlloc returns size bytes aligned to align, which must be a power
// of two. Alignments at or below MallocAlignment take the normal path;
// larger ones over-size the request and bump to the boundary.
func (a *Allocator) AlignedAlloc(size, align uintptr) []byte {
	if size == 0 {
		return nil
	}
	if !concurrent.IsPow2(uint64(align)) {
		return nil
	}
	if align <= MallocAlignment {
		return a.Alloc(size)
	}

	b := a.Alloc(size + align - 1)
	if b == nil {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&b[0]))
	bump := concurrent.AlignUp(addr, align) - addr

	sl := a.store.SlabFor(addr)
	sl.PageFor(addr).MarkAligned()

	return b[bump : bump+size]
}

// Free returns a block to its page. The block may have been allocated by
// any allocator; foreign blocks go onto the page's non-local free list.
func (a *Allocator) Free(b []byte) {
	if b == nil {
		return
	}
	addr := uintptr(unsafe.Pointer(&b[0]))
	sl := a.store.SlabFor(addr)
	utils.Assert(sl != nil, "free of address %#x outside any slab", addr)

	if sl.Large() {
		a.freeOversized(sl)
		return
	}

	p := sl.PageFor(addr)
	index := p.BlockIndex(addr)
	a.freeCount.Add(1)

	if sl.Owner() == a.id {
		bin := BinForBlockSize(p.BlockSize())
		utils.Assert(bin >= 0, "free found page with unbinned block size %d", p.BlockSize())
		a.bins[bin].freeLocal(p, index)
		return
	}
	p.FreeBlockNonLocal(index)
}

// UsableSize returns the block's remaining capacity from the pointer
// forward. For pages that served over-aligned blocks the block start is
// recovered by modular arithmetic against the uniform block size.
func (a *Allocator) UsableSize(b []byte) uintptr {
	if b == nil {
		return 0
	}
	addr := uintptr(unsafe.Pointer(&b[0]))
	sl := a.store.SlabFor(addr)
	if sl == nil {
		return 0
	}
	p := sl.PageFor(addr)
	return p.BlockSize() - (addr - p.BlockBase(addr))
}

// AllocCount returns the number of block allocations served.
func (a *Allocator) AllocCount() int64 {
	return a.allocCount.Load()
}

// FreeCount returns the number of frees made through this allocator,
// including frees of blocks owned by other allocators and oversized frees.
func (a *Allocator) FreeCount() int64 {
	return a.freeCount.Load()
}

// ============================================================================
// Page and slab management
// ============================================================================

// newPage finds or commits a page for a bin: first a matching already
// formatted page anywhere on the class's slab list, then a fresh page from
// an existing slab, then a newly activated slab.
func (a *Allocator) newPage(b *blockAllocator) (*memstore.Page, error) {
	class := binPageClass(b.bin)

	for n := a.slabs[class].Front(); n != nil; n = a.slabs[class].Next(n) {
		sl := n.Value.(*memstore.Slab)
		for i := int32(0); i < sl.NumPages(); i++ {
			p := sl.PageAt(i)
			if p.Committed() && p.BlockSize() == b.blockSize &&
				p.Used() < p.NumBlocks() && !p.Link.Linked() && p != b.active {
				return p, nil
			}
		}
		p, err := sl.AcquirePage(b.blockSize)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}

	// No room on any known slab: activate another one. An adopted slab may
	// arrive full, so retry a bounded number of times before reporting
	// exhaustion.
	for tries := 0; tries < 8; tries++ {
		sl, err := a.store.AllocateSlab(BinPageSize(b.bin), a.id)
		if err != nil {
			return nil, err
		}
		a.activateSlab(sl)
		p, err := sl.AcquirePage(b.blockSize)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, apperrors.ErrOutOfMemory
}

// activateSlab links a slab into the class list and distributes any
// inherited formatted pages to their bins.
func (a *Allocator) activateSlab(sl *memstore.Slab) {
	a.slabs[sl.Class()].PushBack(&sl.OwnerLink)

	for i := int32(0); i < sl.NumPages(); i++ {
		p := sl.PageAt(i)
		if !p.Committed() || p.BlockSize() == 0 {
			continue
		}
		p.ReclaimNonLocal()
		if p.Used() == 0 {
			sl.ReleasePageLocal(p)
			continue
		}
		if bin := BinForBlockSize(p.BlockSize()); bin >= 0 {
			a.bins[bin].adoptPage(p)
		}
	}
}

// maybeRetireSlab returns a slab to the store once its last page is
// decommitted.
func (a *Allocator) maybeRetireSlab(sl *memstore.Slab) {
	if sl.CommittedPages() != 0 {
		return
	}
	sl.OwnerLink.Unlink()
	a.store.DeallocateSlab(sl, true)
}

// allocOversized serves a request beyond the largest bin with a dedicated
// single-page slab.
func (a *Allocator) allocOversized(size uintptr) []byte {
	sl, err := a.store.AllocateLargeSlab(size, a.id)
	if err != nil {
		a.logger.Warn("oversized allocation of %d bytes failed: %v", size, err)
		return nil
	}
	p, err := sl.AcquirePage(size)
	if err != nil || p == nil {
		a.store.DeallocateSlab(sl, true)
		return nil
	}
	p.AllocBlock()
	a.allocCount.Add(1)
	return p.Bytes(0)[:size]
}

// freeOversized releases a single-page slab straight back to the OS. Any
// thread may free an oversized block; large slabs are untracked, so there
// is no owner bookkeeping to undo.
func (a *Allocator) freeOversized(sl *memstore.Slab) {
	p := sl.PageAt(0)
	p.FreeBlockLocal(0)
	sl.ReleasePageLocal(p)
	a.freeCount.Add(1)
	a.store.DeallocateSlab(sl, true)
}

// Shutdown tears the allocator down. Slabs with no live blocks return to
// the store's free list; slabs still holding blocks owned by other threads
// are abandoned for adoption. Oversized slabs are not tracked by the
// allocator and are not examined here; live ones stay committed and trip
// the store's leak assert in Store.Shutdown.
func (a *Allocator) Shutdown() {
	for i := range a.bins {
		a.bins[i].reset()
	}

	for class := range a.slabs {
		for {
			n := a.slabs[class].PopFront()
			if n == nil {
				break
			}
			sl := n.Value.(*memstore.Slab)

			for i := int32(0); i < sl.NumPages(); i++ {
				p := sl.PageAt(i)
				if !p.Committed() {
					continue
				}
				p.ReclaimNonLocal()
				if p.Used() == 0 {
					sl.ReleasePageLocal(p)
				}
			}

			if sl.CommittedPages() == 0 {
				a.store.DeallocateSlab(sl, true)
			} else {
				a.logger.Debug("abandoning slab @%#x with foreign blocks live", sl.Base())
				a.store.DeallocateSlab(sl, false)
			}
		}
	}

}
