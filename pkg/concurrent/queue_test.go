package concurrent

import (
	"sync"
	"testing"
)

func TestQueueMPMC_FIFO(t *testing.T) {
	q := NewQueueMPMC[int](4)

	if !q.Empty() {
		t.Error("New queue should be empty")
	}

	for i := 0; i < 10; i++ {
		if !q.TryPush(i) {
			t.Fatalf("TryPush(%d) failed", i)
		}
	}
	if q.Len() != 10 {
		t.Errorf("Expected 10 queued, got %d", q.Len())
	}

	for i := 0; i < 10; i++ {
		v, ok := q.TryPop()
		if !ok || v != i {
			t.Fatalf("TryPop = (%d, %v), want (%d, true)", v, ok, i)
		}
	}

	if _, ok := q.TryPop(); ok {
		t.Error("TryPop on empty queue should fail")
	}
}

func TestQueueMPMC_GrowPreservesOrder(t *testing.T) {
	q := NewQueueMPMC[int](2)

	// Wrap the ring before forcing growth.
	q.TryPush(0)
	q.TryPush(1)
	q.TryPop()
	q.TryPush(2)
	q.TryPush(3) // grows

	for want := 1; want <= 3; want++ {
		v, ok := q.TryPop()
		if !ok || v != want {
			t.Fatalf("TryPop = (%d, %v), want (%d, true)", v, ok, want)
		}
	}
}

func TestQueueMPMC_Concurrent(t *testing.T) {
	const producers = 4
	const perProducer = 1000

	q := NewQueueMPMC[int](8)
	var wg sync.WaitGroup

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.TryPush(p*perProducer + i)
			}
		}(p)
	}

	seen := make(map[int]bool)
	var mu sync.Mutex
	var cg sync.WaitGroup
	done := make(chan struct{})

	for c := 0; c < 2; c++ {
		cg.Add(1)
		go func() {
			defer cg.Done()
			for {
				v, ok := q.TryPop()
				if ok {
					mu.Lock()
					if seen[v] {
						t.Errorf("value %d popped twice", v)
					}
					seen[v] = true
					mu.Unlock()
					continue
				}
				select {
				case <-done:
					// Final drain after producers stop.
					for {
						v, ok := q.TryPop()
						if !ok {
							return
						}
						mu.Lock()
						seen[v] = true
						mu.Unlock()
					}
				default:
				}
			}
		}()
	}

	wg.Wait()
	close(done)
	cg.Wait()

	if len(seen) != producers*perProducer {
		t.Errorf("Expected %d distinct values, got %d", producers*perProducer, len(seen))
	}
}

func TestQueueMPSC_Drain(t *testing.T) {
	q := NewQueueMPSC[string](2)

	q.TryPush("a")
	q.TryPush("b")
	q.TryPush("c")

	out := q.Drain(nil)
	if len(out) != 3 || out[0] != "a" || out[2] != "c" {
		t.Errorf("Drain = %v", out)
	}
	if !q.Empty() {
		t.Error("Mailbox should be empty after drain")
	}
}

func TestSpinMutex(t *testing.T) {
	var m SpinMutex
	var counter int
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Lock()
				counter++
				m.Unlock()
			}
		}()
	}
	wg.Wait()

	if counter != 8000 {
		t.Errorf("Expected 8000, got %d", counter)
	}
}

func TestSpinMutex_TryLock(t *testing.T) {
	var m SpinMutex

	if !m.TryLock() {
		t.Fatal("TryLock on free mutex should succeed")
	}
	if m.TryLock() {
		t.Fatal("TryLock on held mutex should fail")
	}
	m.Unlock()
	if !m.TryLock() {
		t.Fatal("TryLock after unlock should succeed")
	}
	m.Unlock()
}

func TestSharedSpinMutex(t *testing.T) {
	var m SharedSpinMutex
	var value int
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				m.Lock()
				value++
				m.Unlock()

				m.RLock()
				_ = value
				m.RUnlock()
			}
		}()
	}
	wg.Wait()

	if value != 2000 {
		t.Errorf("Expected 2000, got %d", value)
	}
}

func TestBackoff_Escalation(t *testing.T) {
	var b Backoff
	for i := 0; i < yieldThreshold+4; i++ {
		b.Wait()
	}
	if b.Count() != yieldThreshold+4 {
		t.Errorf("Count = %d", b.Count())
	}
	b.Reset()
	if b.Count() != 0 {
		t.Error("Reset should zero the count")
	}
}
