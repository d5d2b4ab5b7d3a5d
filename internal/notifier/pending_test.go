package notifier

import (
	"fmt"
	"testing"

	"maunium.net/go/mautrix/id"
)

func TestPendingQueueEviction(t *testing.T) {
	t.Parallel()
	q := newPendingQueue(3)

	for i := 0; i < 3; i++ {
		if evicted := q.enqueue(id.EventID(fmt.Sprintf("$e%d", i))); len(evicted) != 0 {
			t.Fatalf("eviction before capacity: %v", evicted)
		}
	}
	evicted := q.enqueue("$e3")
	if len(evicted) != 1 || evicted[0] != "$e0" {
		t.Fatalf("evicted = %v, want [$e0]", evicted)
	}
	if q.resolve("$e0") {
		t.Fatalf("evicted id still resolvable")
	}
	if !q.resolve("$e1") {
		t.Fatalf("oldest surviving id not resolvable")
	}
	if q.len() != 2 {
		t.Fatalf("len = %d, want 2", q.len())
	}
	if ids := q.snapshot(); len(ids) != 2 || ids[0] != "$e2" || ids[1] != "$e3" {
		t.Fatalf("snapshot = %v, want [$e2 $e3]", ids)
	}
}

func TestPendingQueueDuplicateKeepsPosition(t *testing.T) {
	t.Parallel()
	q := newPendingQueue(2)

	q.enqueue("$a")
	q.enqueue("$b")
	// Re-queueing an id must not refresh its age or grow the queue.
	if evicted := q.enqueue("$a"); len(evicted) != 0 {
		t.Fatalf("duplicate enqueue evicted %v", evicted)
	}
	if q.len() != 2 {
		t.Fatalf("len = %d after duplicate, want 2", q.len())
	}
	// Next insert still pushes out $a, the true oldest.
	evicted := q.enqueue("$c")
	if len(evicted) != 1 || evicted[0] != "$a" {
		t.Fatalf("evicted = %v, want [$a]", evicted)
	}
}

func TestNotificationIndex(t *testing.T) {
	t.Parallel()
	ix := newNotificationIndex()

	ix.append("!r1:x", "h1")
	ix.append("!r1:x", "h2")
	ix.append("!r2:x", "h3")
	ix.append("!r2:x", "") // unclearable, never tracked

	if got := ix.count("!r1:x"); got != 2 {
		t.Fatalf("count(!r1:x) = %d, want 2", got)
	}
	if got := ix.count("!r2:x"); got != 1 {
		t.Fatalf("count(!r2:x) = %d, want 1", got)
	}

	hs := ix.take("!r1:x")
	if len(hs) != 2 || hs[0] != "h1" || hs[1] != "h2" {
		t.Fatalf("take = %v", hs)
	}
	if got := ix.count("!r1:x"); got != 0 {
		t.Fatalf("count after take = %d", got)
	}
	if hs := ix.take("!r1:x"); hs != nil {
		t.Fatalf("second take = %v, want nil", hs)
	}

	ix.clear()
	if ix.rooms() != 0 {
		t.Fatalf("rooms after clear = %d", ix.rooms())
	}
}
