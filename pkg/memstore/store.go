package memstore

import (
	"context"
	"sync/atomic"

	"github.com/taskgraph/pkg/concurrent"
	"github.com/taskgraph/pkg/telemetry"
	"github.com/taskgraph/pkg/utils"
)

// ============================================================================
// Page-size classes
// ============================================================================

// DefaultSlabSize is the size and alignment of a standard slab.
const DefaultSlabSize = 4 << 20

// NumPageClasses is the number of page-size classes tracked by the store:
// four fixed sizes plus a catch-all for larger pages.
const NumPageClasses = 5

// pageClassSizes is the authoritative page-size table. Page sizes above the
// last fixed entry fall into the final "larger" class.
var pageClassSizes = [NumPageClasses - 1]uintptr{
	16 << 10,
	64 << 10,
	128 << 10,
	512 << 10,
}

// PageClassIndex returns the class index for a page size.
func PageClassIndex(pageSize uintptr) int {
	for i, sz := range pageClassSizes {
		if pageSize <= sz {
			return i
		}
	}
	return NumPageClasses - 1
}

// PageClassSize returns the page size of a fixed class. The "larger" class
// has no fixed size and returns zero.
func PageClassSize(class int) uintptr {
	if class < len(pageClassSizes) {
		return pageClassSizes[class]
	}
	return 0
}

// ============================================================================
// Store
// ============================================================================

// StoreConfig configures the process-wide memory store.
type StoreConfig struct {
	// SlabSize is the size and alignment of standard slabs. Must be a
	// power of two. Default: DefaultSlabSize.
	SlabSize uintptr

	// Logger receives slab lifecycle events. Default: the global logger.
	Logger utils.Logger
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		SlabSize: DefaultSlabSize,
	}
}

// Store owns every slab in the process. Freed slabs are cached fully
// decommitted on a free list; slabs whose owner exited with foreign blocks
// still live are parked per class on an abandoned list until another
// allocator adopts them.
type Store struct {
	slabSize uintptr
	logger   utils.Logger

	freeSlabs *concurrent.QueueMPMC[*Slab]
	abandoned [NumPageClasses]*concurrent.QueueMPMC[*Slab]

	// registry maps every slab-aligned window covered by a slab's region
	// to the slab, so any interior address recovers its slab by masking.
	registry map[uintptr]*Slab
	regMu    concurrent.SharedSpinMutex

	reservedBytes  atomic.Uint64
	committedBytes atomic.Uint64
	slabCount      atomic.Int64
}

// NewStore creates a memory store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.SlabSize == 0 {
		cfg.SlabSize = DefaultSlabSize
	}
	utils.Assert(concurrent.IsPow2(uint64(cfg.SlabSize)), "slab size %d is not a power of two", cfg.SlabSize)
	if cfg.Logger == nil {
		cfg.Logger = utils.GetGlobalLogger()
	}
	s := &Store{
		slabSize:  cfg.SlabSize,
		logger:    cfg.Logger,
		freeSlabs: concurrent.NewQueueMPMC[*Slab](16),
		registry:  make(map[uintptr]*Slab),
	}
	for i := range s.abandoned {
		s.abandoned[i] = concurrent.NewQueueMPMC[*Slab](4)
	}
	return s
}

// SlabSize returns the standard slab size.
func (s *Store) SlabSize() uintptr {
	return s.slabSize
}

// AllocateSlab returns a slab carved for the given page size, owned by the
// caller. Preference order: a cached free slab, an abandoned slab of the
// same class, a fresh reservation.
func (s *Store) AllocateSlab(pageSize uintptr, owner int64) (*Slab, error) {
	if pageSize > s.slabSize/2 {
		return s.reserveSlab(pageSize, owner, true)
	}

	if sl, ok := s.freeSlabs.TryPop(); ok {
		// Free slabs are fully decommitted; relayout is free.
		sl.initSlab(pageSize, owner)
		return sl, nil
	}

	if sl := s.AdoptAbandoned(PageClassIndex(pageSize), owner); sl != nil {
		return sl, nil
	}

	return s.reserveSlab(pageSize, owner, false)
}

// AllocateLargeSlab reserves a dedicated single-page slab for an oversized
// allocation, regardless of how the page size compares to the slab size.
// Large slabs bypass the free and abandoned lists.
func (s *Store) AllocateLargeSlab(pageSize uintptr, owner int64) (*Slab, error) {
	return s.reserveSlab(pageSize, owner, true)
}

// AdoptAbandoned takes over an abandoned slab of the given class, if any.
// The slab keeps its committed pages and live foreign blocks.
func (s *Store) AdoptAbandoned(class int, owner int64) *Slab {
	sl, ok := s.abandoned[class].TryPop()
	if !ok {
		return nil
	}
	prev := sl.owner.Load()
	if !sl.Adopt(prev, owner) {
		// Lost the ownership race; put it back.
		s.abandoned[class].TryPush(sl)
		return nil
	}
	s.logger.Debug("adopted abandoned slab @%#x class %d", sl.base, class)
	return sl
}

// DeallocateSlab returns a slab to the store. Large slabs go straight back
// to the OS. With destroy set and no committed pages the slab is cached on
// the free list; otherwise it is abandoned for adoption.
func (s *Store) DeallocateSlab(sl *Slab, destroy bool) {
	if sl.large {
		s.releaseSlab(sl)
		return
	}
	if destroy && sl.CommittedPages() == 0 {
		sl.decommitAll()
		sl.owner.Store(0)
		s.freeSlabs.TryPush(sl)
		return
	}
	s.abandoned[sl.class].TryPush(sl)
}

// SlabFor recovers the slab containing addr by masking down to the
// slab-aligned window and consulting the registry. Returns nil for foreign
// addresses.
func (s *Store) SlabFor(addr uintptr) *Slab {
	window := concurrent.AlignDown(addr, s.slabSize)
	s.regMu.RLock()
	sl := s.registry[window]
	s.regMu.RUnlock()
	if sl != nil && !sl.Contains(addr) {
		return nil
	}
	return sl
}

// ReservedBytes returns the total reserved address space.
func (s *Store) ReservedBytes() uint64 {
	return s.reservedBytes.Load()
}

// CommittedBytes returns the total committed memory.
func (s *Store) CommittedBytes() uint64 {
	return s.committedBytes.Load()
}

// SlabCount returns the number of live slabs.
func (s *Store) SlabCount() int64 {
	return s.slabCount.Load()
}

// Shutdown releases every cached and abandoned slab. Committed pages still
// outstanding at this point are leaks and trip the assert hook.
func (s *Store) Shutdown() {
	for {
		sl, ok := s.freeSlabs.TryPop()
		if !ok {
			break
		}
		s.releaseSlab(sl)
	}
	for class := range s.abandoned {
		for {
			sl, ok := s.abandoned[class].TryPop()
			if !ok {
				break
			}
			for i := range sl.pages {
				p := &sl.pages[i]
				utils.Assert(p.used.Load() == 0,
					"leak: abandoned slab @%#x page %d holds %d live blocks", sl.base, i, p.used.Load())
			}
			sl.decommitAll()
			s.releaseSlab(sl)
		}
	}
	utils.Assert(s.committedBytes.Load() == 0,
		"leak: %d bytes still committed at shutdown", s.committedBytes.Load())
}

// reserveSlab maps a fresh slab from the OS.
func (s *Store) reserveSlab(pageSize uintptr, owner int64, large bool) (*Slab, error) {
	_, span := telemetry.StartSpan(context.Background(), telemetry.ChannelAllocatorDebug, "slab.reserve")
	defer span.End()

	regionLen := s.slabSize
	if large {
		regionLen = concurrent.AlignUp(pageSize, osPageSize())
	}

	res, err := reserveAligned(regionLen, s.slabSize)
	if err != nil {
		return nil, err
	}

	sl := &Slab{
		res:       res,
		base:      addrOf(res.region),
		regionLen: regionLen,
		large:     large,
		store:     s,
	}
	sl.initSlab(pageSize, owner)

	s.register(sl)
	s.reservedBytes.Add(uint64(regionLen))
	s.slabCount.Add(1)
	s.logger.Debug("reserved slab @%#x pageSize=%d large=%v", sl.base, pageSize, large)
	return sl, nil
}

// releaseSlab unregisters a slab and returns its reservation to the OS.
func (s *Store) releaseSlab(sl *Slab) {
	for i := range sl.pages {
		p := &sl.pages[i]
		utils.Assert(p.used.Load() == 0, "slab released with live blocks on page %d", i)
	}
	sl.decommitAll()
	s.unregister(sl)
	_ = sl.res.release()
	s.reservedBytes.Add(^uint64(sl.regionLen - 1))
	s.slabCount.Add(-1)
}

func (s *Store) register(sl *Slab) {
	s.regMu.Lock()
	for w := sl.base; w < sl.base+sl.regionLen; w += s.slabSize {
		s.registry[w] = sl
	}
	s.regMu.Unlock()
}

func (s *Store) unregister(sl *Slab) {
	s.regMu.Lock()
	for w := sl.base; w < sl.base+sl.regionLen; w += s.slabSize {
		delete(s.registry, w)
	}
	s.regMu.Unlock()
}
