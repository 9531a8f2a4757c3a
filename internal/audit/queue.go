package audit

import "sync"

// RetryQueue is a bounded, thread-safe ring of records awaiting a retry.
// When full, the oldest entry is evicted to make room for the newest:
// bounded memory wins over delivery guarantee for writes that already
// failed once. Evictions are counted so the tradeoff stays visible.
type RetryQueue struct {
	mu       sync.Mutex
	items    []QueuedItem
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int

	evicted int64
}

// NewRetryQueue creates a retry queue with the given capacity.
func NewRetryQueue(capacity int) *RetryQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RetryQueue{
		items:    make([]QueuedItem, capacity),
		capacity: capacity,
	}
}

// Enqueue adds an item, evicting the oldest if the queue is full. Returns
// true when an eviction happened.
func (q *RetryQueue) Enqueue(item QueuedItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	evicted := false
	if q.count >= q.capacity {
		q.tail = (q.tail + 1) % q.capacity
		q.count--
		q.evicted++
		evicted = true
	}

	q.items[q.head] = item
	q.head = (q.head + 1) % q.capacity
	q.count++
	return evicted
}

// DequeueBatch removes up to n items from the queue in FIFO order.
func (q *RetryQueue) DequeueBatch(n int) []QueuedItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}
	if n > q.count {
		n = q.count
	}

	result := make([]QueuedItem, n)
	for i := 0; i < n; i++ {
		result[i] = q.items[q.tail]
		q.items[q.tail] = QueuedItem{}
		q.tail = (q.tail + 1) % q.capacity
	}
	q.count -= n

	return result
}

// Len returns the current number of queued items.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Evicted returns the total number of items dropped to make room.
func (q *RetryQueue) Evicted() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}
