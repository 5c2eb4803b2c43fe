package concurrent

import (
	"sync/atomic"
)

// SpinMutex is an unfair test-and-set spin lock. Waiters escalate through
// pause, yield, and sleep; there is no queue, so a late arrival can win.
type SpinMutex struct {
	state atomic.Int32
}

// TryLock attempts to acquire the lock without waiting.
func (m *SpinMutex) TryLock() bool {
	return m.state.CompareAndSwap(0, 1)
}

// Lock acquires the lock, spinning with escalating backoff.
func (m *SpinMutex) Lock() {
	var b Backoff
	for !m.state.CompareAndSwap(0, 1) {
		// Spin on a plain load first so waiters do not bounce the
		// cache line with failed CAS attempts.
		for m.state.Load() != 0 {
			b.Wait()
		}
	}
}

// Unlock releases the lock.
func (m *SpinMutex) Unlock() {
	m.state.Store(0)
}

// SharedSpinMutex is a reader-majority shared/exclusive spin lock. Readers
// increment the state; a writer raises the writer flag and waits for the
// readers to drain.
type SharedSpinMutex struct {
	// state counts readers holding or entering the lock; writer is nonzero
	// while a writer holds or is acquiring it.
	state  atomic.Int64
	writer atomic.Int32
}

// RLock acquires the lock in shared mode.
func (m *SharedSpinMutex) RLock() {
	var b Backoff
	for {
		if m.writer.Load() == 0 {
			if v := m.state.Add(1); v > 0 && m.writer.Load() == 0 {
				return
			}
			m.state.Add(-1)
		}
		b.Wait()
	}
}

// RUnlock releases a shared hold.
func (m *SharedSpinMutex) RUnlock() {
	m.state.Add(-1)
}

// Lock acquires the lock in exclusive mode.
func (m *SharedSpinMutex) Lock() {
	var b Backoff
	for !m.writer.CompareAndSwap(0, 1) {
		b.Wait()
	}
	b.Reset()
	// Wait for in-flight readers to drain.
	for m.state.Load() != 0 {
		b.Wait()
	}
}

// Unlock releases an exclusive hold.
func (m *SharedSpinMutex) Unlock() {
	m.writer.Store(0)
}
