package notifier

import (
	"maunium.net/go/mautrix/id"
)

// pendingQueue holds event ids whose decryption hasn't finished yet.
// Bounded FIFO: once full, the stalest id is evicted. An id appears at
// most once. Only the engine run loop touches it.
type pendingQueue struct {
	capacity int
	ids      []id.EventID
}

func newPendingQueue(capacity int) *pendingQueue {
	if capacity <= 0 {
		capacity = MaxPendingDecryption
	}
	return &pendingQueue{capacity: capacity}
}

// enqueue appends eventID and returns any ids evicted to stay within
// capacity. Re-enqueueing a present id keeps its original position.
func (q *pendingQueue) enqueue(eventID id.EventID) (evicted []id.EventID) {
	for _, existing := range q.ids {
		if existing == eventID {
			return nil
		}
	}
	q.ids = append(q.ids, eventID)
	for len(q.ids) > q.capacity {
		evicted = append(evicted, q.ids[0])
		q.ids = q.ids[1:]
	}
	return evicted
}

// resolve removes eventID and reports whether it was queued.
func (q *pendingQueue) resolve(eventID id.EventID) bool {
	for i, existing := range q.ids {
		if existing == eventID {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			return true
		}
	}
	return false
}

func (q *pendingQueue) len() int { return len(q.ids) }

func (q *pendingQueue) snapshot() []id.EventID {
	return append([]id.EventID(nil), q.ids...)
}

func (q *pendingQueue) clear() { q.ids = nil }
