package memstore

import (
	"sync/atomic"
	"unsafe"

	"github.com/taskgraph/pkg/concurrent"
	"github.com/taskgraph/pkg/utils"
)

// addrOf returns the base address of a byte slice.
func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

// ============================================================================
// Treiber stack of block/page indices
// ============================================================================

// indexStack is a lock-free LIFO of int32 indices. The head word packs the
// top index (biased by one, zero means empty) with a version counter so a
// concurrent pop/push pair cannot ABA. Links live in the next array.
type indexStack struct {
	head atomic.Uint64
	next []int32
}

func packHead(index int32, version uint32) uint64 {
	return uint64(uint32(index+1)) | uint64(version)<<32
}

func headIndex(h uint64) int32 {
	return int32(uint32(h)) - 1
}

func headVersion(h uint64) uint32 {
	return uint32(h >> 32)
}

func (s *indexStack) init(capacity int32) {
	s.head.Store(0)
	if int32(len(s.next)) < capacity {
		s.next = make([]int32, capacity)
	}
}

// push adds index i. Safe for concurrent producers.
func (s *indexStack) push(i int32) {
	var b concurrent.Backoff
	for {
		h := s.head.Load()
		s.next[i] = headIndex(h)
		if s.head.CompareAndSwap(h, packHead(i, headVersion(h)+1)) {
			return
		}
		b.Wait()
	}
}

// takeAll detaches the whole stack and returns the top index, or -1. The
// caller walks the chain through next.
func (s *indexStack) takeAll() int32 {
	var b concurrent.Backoff
	for {
		h := s.head.Load()
		top := headIndex(h)
		if top < 0 {
			return -1
		}
		if s.head.CompareAndSwap(h, packHead(-1, headVersion(h)+1)) {
			return top
		}
		b.Wait()
	}
}

func (s *indexStack) empty() bool {
	return headIndex(s.head.Load()) < 0
}

// ============================================================================
// Page
// ============================================================================

// Page is a fixed-size region of a Slab carved into equal blocks. The local
// free list belongs to the owning allocator; foreign threads return blocks
// through the non-local stack.
type Page struct {
	slab      *Slab
	index     int32
	blockSize uintptr
	numBlocks int32

	used       atomic.Int32
	committed  bool
	hasAligned atomic.Bool

	localFree []int32
	nonLocal  indexStack

	// Link used by the owning block allocator's page list.
	Link concurrent.ListNode
}

// Slab returns the owning slab.
func (p *Page) Slab() *Slab {
	return p.slab
}

// Index returns the page's position within its slab.
func (p *Page) Index() int32 {
	return p.index
}

// BlockSize returns the size blocks on this page are carved to, or zero when
// the page has not been formatted.
func (p *Page) BlockSize() uintptr {
	return p.blockSize
}

// NumBlocks returns the number of blocks the page holds.
func (p *Page) NumBlocks() int32 {
	return p.numBlocks
}

// Used returns the number of live blocks.
func (p *Page) Used() int32 {
	return p.used.Load()
}

// Committed reports whether the page's memory is committed.
func (p *Page) Committed() bool {
	return p.committed
}

// MarkAligned flags the page as having served over-aligned blocks, which
// forces usable-size queries to recover block starts by modular arithmetic.
func (p *Page) MarkAligned() {
	p.hasAligned.Store(true)
}

// HasAligned reports whether any block on the page was handed out with an
// alignment bump.
func (p *Page) HasAligned() bool {
	return p.hasAligned.Load()
}

// format carves the page into blocks of the given size and resets the free
// lists. Owner-only; the page must be committed and empty.
func (p *Page) format(blockSize uintptr) {
	utils.Assert(p.used.Load() == 0, "page format with %d live blocks", p.used.Load())
	p.blockSize = blockSize
	p.numBlocks = int32(p.slab.pageSize / blockSize)
	p.localFree = p.localFree[:0]
	for i := p.numBlocks - 1; i >= 0; i-- {
		p.localFree = append(p.localFree, i)
	}
	p.nonLocal.init(p.numBlocks)
	p.hasAligned.Store(false)
}

// AllocBlock pops a free block index. Owner-only. It drains the non-local
// stack before giving up.
func (p *Page) AllocBlock() (int32, bool) {
	if len(p.localFree) == 0 {
		p.ReclaimNonLocal()
	}
	n := len(p.localFree)
	if n == 0 {
		return -1, false
	}
	i := p.localFree[n-1]
	p.localFree = p.localFree[:n-1]
	p.used.Add(1)
	return i, true
}

// FreeBlockLocal returns block i on the owner's free list.
func (p *Page) FreeBlockLocal(i int32) {
	p.localFree = append(p.localFree, i)
	p.used.Add(-1)
}

// FreeBlockNonLocal returns block i from a foreign thread.
func (p *Page) FreeBlockNonLocal(i int32) {
	p.nonLocal.push(i)
	p.used.Add(-1)
}

// ReclaimNonLocal splices the non-local stack onto the local free list and
// returns the number of blocks recovered. Owner-only.
func (p *Page) ReclaimNonLocal() int {
	top := p.nonLocal.takeAll()
	n := 0
	for i := top; i >= 0; i = p.nonLocal.next[i] {
		p.localFree = append(p.localFree, i)
		n++
	}
	return n
}

// Bytes returns the memory of block i as a slice of the page's block size.
func (p *Page) Bytes(i int32) []byte {
	off := uintptr(p.index)*p.slab.pageSize + uintptr(i)*p.blockSize
	return p.slab.res.region[off : off+p.blockSize]
}

// BlockIndex maps an address inside the page to its block index.
func (p *Page) BlockIndex(addr uintptr) int32 {
	pageBase := p.slab.base + uintptr(p.index)*p.slab.pageSize
	return int32((addr - pageBase) / p.blockSize)
}

// BlockBase returns the start address of the block containing addr.
func (p *Page) BlockBase(addr uintptr) uintptr {
	pageBase := p.slab.base + uintptr(p.index)*p.slab.pageSize
	return pageBase + (addr-pageBase)/p.blockSize*p.blockSize
}

// ============================================================================
// Slab
// ============================================================================

// Slab is a slab-aligned reservation carved into pages of one size. Pages
// and their free lists are mutated only by the slab's current owner; foreign
// threads hand pages back through the non-local page stack.
type Slab struct {
	res       *reservation
	base      uintptr
	regionLen uintptr
	pageSize  uintptr
	numPages  int32
	large     bool
	class     int

	owner          atomic.Int64
	committedPages atomic.Int32

	pages     []Page
	freePages concurrent.IntrusiveList
	nonLocal  indexStack

	store *Store

	// OwnerLink chains the slab on its owning allocator's per-class list.
	OwnerLink concurrent.ListNode
}

// initSlab lays the slab out for a page size: the region divides into
// numPages equal pages, every page starting uncommitted on the free list.
func (s *Slab) initSlab(pageSize uintptr, owner int64) {
	s.pageSize = pageSize
	s.class = PageClassIndex(pageSize)
	if s.large {
		s.numPages = 1
	} else {
		s.numPages = int32(s.regionLen / pageSize)
	}
	s.owner.Store(owner)
	s.pages = make([]Page, s.numPages)
	s.freePages = concurrent.IntrusiveList{}
	s.nonLocal.init(s.numPages)
	for i := int32(0); i < s.numPages; i++ {
		p := &s.pages[i]
		p.slab = s
		p.index = i
		p.Link = concurrent.ListNode{Value: p}
		s.freePages.PushBack(&p.Link)
	}
	s.OwnerLink = concurrent.ListNode{Value: s}
}

// Base returns the slab's aligned start address.
func (s *Slab) Base() uintptr {
	return s.base
}

// PageSize returns the uniform page size.
func (s *Slab) PageSize() uintptr {
	return s.pageSize
}

// NumPages returns the number of pages the slab is carved into.
func (s *Slab) NumPages() int32 {
	return s.numPages
}

// Class returns the slab's page-size class index.
func (s *Slab) Class() int {
	return s.class
}

// Large reports whether this is a single-page oversized slab.
func (s *Slab) Large() bool {
	return s.large
}

// Owner returns the id of the owning allocator.
func (s *Slab) Owner() int64 {
	return s.owner.Load()
}

// Adopt transfers ownership to a new allocator. Returns false if another
// allocator won the race.
func (s *Slab) Adopt(from, to int64) bool {
	return s.owner.CompareAndSwap(from, to)
}

// CommittedPages returns the number of currently committed pages.
func (s *Slab) CommittedPages() int32 {
	return s.committedPages.Load()
}

// PageAt returns the page header at index i.
func (s *Slab) PageAt(i int32) *Page {
	return &s.pages[i]
}

// PageFor maps an address inside the slab's region to its page header.
func (s *Slab) PageFor(addr uintptr) *Page {
	return &s.pages[(addr-s.base)/s.pageSize]
}

// Contains reports whether addr falls inside the slab's region.
func (s *Slab) Contains(addr uintptr) bool {
	return addr >= s.base && addr < s.base+s.regionLen
}

// AcquirePage takes a free page, reclaiming foreign returns first, commits
// it, and formats it for blockSize. Owner-only. Returns nil when the slab
// is fully committed and busy.
func (s *Slab) AcquirePage(blockSize uintptr) (*Page, error) {
	if s.freePages.Empty() {
		s.reclaimNonLocalPages()
	}
	n := s.freePages.PopFront()
	if n == nil {
		return nil, nil
	}
	p := n.Value.(*Page)
	if !p.committed {
		if err := s.commitPage(p); err != nil {
			s.freePages.PushFront(&p.Link)
			return nil, err
		}
	}
	p.format(blockSize)
	return p, nil
}

// ReleasePageLocal decommits a fully-free page and parks it on the owner's
// free list. Owner-only.
func (s *Slab) ReleasePageLocal(p *Page) {
	utils.Assert(p.used.Load() == 0, "page released with %d live blocks", p.used.Load())
	s.decommitPage(p)
	p.blockSize = 0
	s.freePages.PushBack(&p.Link)
}

// ReleasePageNonLocal hands a page back from a foreign thread. The owner
// reclaims and decommits it on its next page acquisition.
func (s *Slab) ReleasePageNonLocal(p *Page) {
	s.nonLocal.push(p.index)
}

// reclaimNonLocalPages splices foreign page returns into the local free
// list, decommitting them on the way.
func (s *Slab) reclaimNonLocalPages() int {
	top := s.nonLocal.takeAll()
	n := 0
	for i := top; i >= 0; i = s.nonLocal.next[i] {
		p := &s.pages[i]
		s.decommitPage(p)
		p.blockSize = 0
		s.freePages.PushBack(&p.Link)
		n++
	}
	return n
}

func (s *Slab) commitPage(p *Page) error {
	off := uintptr(p.index) * s.pageSize
	length := s.pageSize
	if s.large {
		length = s.regionLen
	}
	if err := s.res.commit(off, length); err != nil {
		return err
	}
	p.committed = true
	s.committedPages.Add(1)
	s.store.committedBytes.Add(uint64(length))
	return nil
}

func (s *Slab) decommitPage(p *Page) {
	if !p.committed {
		return
	}
	off := uintptr(p.index) * s.pageSize
	length := s.pageSize
	if s.large {
		length = s.regionLen
	}
	_ = s.res.decommit(off, length)
	p.committed = false
	s.committedPages.Add(-1)
	s.store.committedBytes.Add(^uint64(length - 1))
}

// decommitAll releases every committed page, e.g. before the slab goes on
// the store's free list.
func (s *Slab) decommitAll() {
	for i := range s.pages {
		p := &s.pages[i]
		utils.Assert(p.used.Load() == 0, "slab decommit with live blocks on page %d", p.index)
		s.decommitPage(p)
	}
}
