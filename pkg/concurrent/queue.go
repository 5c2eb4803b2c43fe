package concurrent

// ============================================================================
// Bounded multi-producer queues
// ============================================================================

// QueueMPMC is a bounded multi-producer multi-consumer FIFO queue. The fast
// path is a short spin-guarded ring operation; the ring doubles in place
// when a push finds it full, so TryPush never rejects an element.
type QueueMPMC[T any] struct {
	mu    SpinMutex
	data  []T
	head  int
	tail  int
	count int
}

// NewQueueMPMC creates a queue with the given initial capacity.
func NewQueueMPMC[T any](capacity int) *QueueMPMC[T] {
	if capacity < 2 {
		capacity = 2
	}
	return &QueueMPMC[T]{
		data: make([]T, capacity),
	}
}

// TryPush enqueues v, growing the ring if it is full. It always returns
// true.
func (q *QueueMPMC[T]) TryPush(v T) bool {
	q.mu.Lock()
	if q.count == len(q.data) {
		q.grow()
	}
	q.data[q.tail] = v
	q.tail = (q.tail + 1) % len(q.data)
	q.count++
	q.mu.Unlock()
	return true
}

// TryPop dequeues the oldest element. Returns false when the queue is empty.
func (q *QueueMPMC[T]) TryPop() (T, bool) {
	var zero T
	q.mu.Lock()
	if q.count == 0 {
		q.mu.Unlock()
		return zero, false
	}
	v := q.data[q.head]
	q.data[q.head] = zero
	q.head = (q.head + 1) % len(q.data)
	q.count--
	q.mu.Unlock()
	return v, true
}

// Len returns the number of queued elements.
func (q *QueueMPMC[T]) Len() int {
	q.mu.Lock()
	n := q.count
	q.mu.Unlock()
	return n
}

// Empty reports whether the queue holds no elements.
func (q *QueueMPMC[T]) Empty() bool {
	return q.Len() == 0
}

// grow doubles the ring. Caller holds the lock.
func (q *QueueMPMC[T]) grow() {
	bigger := make([]T, len(q.data)*2)
	for i := 0; i < q.count; i++ {
		bigger[i] = q.data[(q.head+i)%len(q.data)]
	}
	q.data = bigger
	q.head = 0
	q.tail = q.count
}

// QueueMPSC is the single-consumer variant used as an affinity mailbox.
// Any producer may TryPush; only the owning consumer may TryPop or Drain.
type QueueMPSC[T any] struct {
	inner QueueMPMC[T]
}

// NewQueueMPSC creates a mailbox with the given initial capacity.
func NewQueueMPSC[T any](capacity int) *QueueMPSC[T] {
	if capacity < 2 {
		capacity = 2
	}
	q := &QueueMPSC[T]{}
	q.inner.data = make([]T, capacity)
	return q
}

// TryPush enqueues v from any producer.
func (q *QueueMPSC[T]) TryPush(v T) bool {
	return q.inner.TryPush(v)
}

// TryPop dequeues the oldest element. Consumer-side only.
func (q *QueueMPSC[T]) TryPop() (T, bool) {
	return q.inner.TryPop()
}

// Drain pops every queued element into out and returns the extended slice.
// Consumer-side only.
func (q *QueueMPSC[T]) Drain(out []T) []T {
	for {
		v, ok := q.inner.TryPop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// Len returns the number of queued elements.
func (q *QueueMPSC[T]) Len() int {
	return q.inner.Len()
}

// Empty reports whether the mailbox holds no elements.
func (q *QueueMPSC[T]) Empty() bool {
	return q.inner.Empty()
}
