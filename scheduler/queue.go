package scheduler

import (
	"container/heap"

	"github.com/us-irs/asynchronix/action"
	"github.com/us-irs/asynchronix/vtime"
)

// queueEntry is one heap node: a deferred action.Entry ordered by
// (deadline, insertionSeq), the latter drawn from a counter the Scheduler
// owns so same-deadline entries preserve strict FIFO submission order —
// required by the causal-messaging contract.
type queueEntry struct {
	deadline vtime.MonotonicTime
	seq      uint64
	entry    action.Entry
	period   vtime.Duration // zero for non-periodic entries
	periodic bool
}

// minHeap implements container/heap.Interface over queueEntry, ordered by
// (deadline, seq).
type minHeap []*queueEntry

func (h minHeap) Len() int { return len(h) }

func (h minHeap) Less(i, j int) bool {
	c := h[i].deadline.Compare(h[j].deadline)
	if c != 0 {
		return c < 0
	}
	return h[i].seq < h[j].seq
}

func (h minHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) {
	*h = append(*h, x.(*queueEntry))
}

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// queue is the binary min-heap backing the Scheduler Queue component.
type queue struct {
	h minHeap
}

func newQueue() *queue {
	q := &queue{}
	heap.Init(&q.h)
	return q
}

func (q *queue) push(e *queueEntry) {
	heap.Push(&q.h, e)
}

func (q *queue) popMin() (*queueEntry, bool) {
	if q.h.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&q.h).(*queueEntry), true
}

func (q *queue) peekMin() (*queueEntry, bool) {
	if q.h.Len() == 0 {
		return nil, false
	}
	return q.h[0], true
}

func (q *queue) len() int {
	return q.h.Len()
}
