package binned

import (
	"github.com/taskgraph/pkg/concurrent"
	"github.com/taskgraph/pkg/memstore"
)

// blockAllocator serves one size bin. It keeps an active page plus a list
// of partially-used pages; fully-used pages are unlisted and resurface
// through the partial list when a local free gives them room.
type blockAllocator struct {
	parent    *Allocator
	bin       int
	blockSize uintptr
	active    *memstore.Page
	partial   concurrent.IntrusiveList
}

func (b *blockAllocator) init(parent *Allocator, bin int) {
	b.parent = parent
	b.bin = bin
	b.blockSize = BinBlockSize(bin)
}

// allocate returns a block from the bin, pulling a new page from the parent
// when every known page is exhausted.
func (b *blockAllocator) allocate() (*memstore.Page, int32, error) {
	if b.active != nil {
		if i, ok := b.active.AllocBlock(); ok {
			return b.active, i, nil
		}
	}

	// The active page is full; find a partial page to promote.
	for {
		n := b.partial.PopFront()
		if n == nil {
			break
		}
		p := n.Value.(*memstore.Page)
		if i, ok := p.AllocBlock(); ok {
			b.active = p
			return p, i, nil
		}
		// Raced full again; leave it unlisted until a free re-adds it.
	}

	p, err := b.parent.newPage(b)
	if err != nil {
		return nil, -1, err
	}
	b.active = p
	i, ok := p.AllocBlock()
	if !ok {
		return nil, -1, nil
	}
	return p, i, nil
}

// freeLocal returns a block on a page owned by the parent allocator and
// performs the page/slab retirement bookkeeping.
func (b *blockAllocator) freeLocal(p *memstore.Page, index int32) {
	wasFull := p.Used() == p.NumBlocks()
	p.FreeBlockLocal(index)

	if p == b.active {
		return
	}

	if p.Used() == 0 {
		// Fully free and not active: give the page back to its slab.
		p.Link.Unlink()
		sl := p.Slab()
		sl.ReleasePageLocal(p)
		b.parent.maybeRetireSlab(sl)
		return
	}

	if wasFull && !p.Link.Linked() {
		b.partial.PushBack(&p.Link)
	}
}

// adoptPage registers a partially-used page inherited from an adopted slab.
func (b *blockAllocator) adoptPage(p *memstore.Page) {
	if p == b.active || p.Link.Linked() {
		return
	}
	b.partial.PushBack(&p.Link)
}

// reset drops page references ahead of allocator teardown.
func (b *blockAllocator) reset() {
	b.active = nil
	for b.partial.PopFront() != nil {
	}
}
