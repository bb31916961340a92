package engine

import "github.com/vietddude/fundwatch/internal/core/domain"

// compactThreshold is the number of released slots kept before the backing slice is compacted.
const compactThreshold = 1024

// Queue is the FIFO of findings waiting to be released. It is not safe for
// concurrent use; the Engine guards it with its own mutex.
type Queue struct {
	items []domain.Finding
	head  int // release index
}

// Push appends findings in generation order.
func (q *Queue) Push(findings ...domain.Finding) {
	q.items = append(q.items, findings...)
}

// Len returns the number of pending findings.
func (q *Queue) Len() int {
	return len(q.items) - q.head
}

// Release removes and returns at most max findings from the front of the queue.
func (q *Queue) Release(max int) []domain.Finding {
	n := q.Len()
	if max < n {
		n = max
	}
	if n <= 0 {
		return []domain.Finding{}
	}

	out := make([]domain.Finding, n)
	copy(out, q.items[q.head:q.head+n])
	// drop references so released findings can be collected
	for i := q.head; i < q.head+n; i++ {
		q.items[i] = domain.Finding{}
	}
	q.head += n

	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > compactThreshold && q.head*2 > len(q.items) {
		rest := make([]domain.Finding, 0, len(q.items)-q.head)
		rest = append(rest, q.items[q.head:]...)
		q.items = rest
		q.head = 0
	}
	return out
}
