package channel

import "sync"

// queue is a bounded FIFO that drops the oldest payload when full.
type queue struct {
	items    [][]byte
	capacity int
	dropped  uint64
}

func (q *queue) push(payload []byte) {
	if len(q.items) >= q.capacity {
		q.items[0] = nil
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, payload)
}

func (q *queue) pop() []byte {
	if len(q.items) == 0 {
		return nil
	}
	p := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]

	return p
}

type queues struct {
	mu       sync.Mutex
	capacity int
	byKey    map[string]*queue
}

func newQueues(capacity int) *queues {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &queues{
		capacity: capacity,
		byKey:    make(map[string]*queue),
	}
}

func (qs *queues) push(key string, payload []byte) {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	q, ok := qs.byKey[key]
	if !ok {
		q = &queue{capacity: qs.capacity}
		qs.byKey[key] = q
	}
	q.push(append([]byte(nil), payload...))
}

func (qs *queues) pop(key string) []byte {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	q, ok := qs.byKey[key]
	if !ok {
		return nil
	}

	return q.pop()
}

func (qs *queues) dropped(key string) uint64 {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	if q, ok := qs.byKey[key]; ok {
		return q.dropped
	}

	return 0
}
