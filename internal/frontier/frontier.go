// Package frontier implements the crawl frontier: a heap-backed priority
// queue of not-yet-fetched URLs, paired with companion sets enforcing
// the queued-or-visited invariant (at most one entry per canonical URL
// across the queue and the visited set combined).
package frontier

import "container/heap"

// Entry is one frontier item: a canonical URL awaiting a fetch, its
// priority score, discovery depth, and the canonical URL of the page it
// was discovered on.
type Entry struct {
	Canonical string
	Priority  int
	Depth     int
	Source    string
}

// Frontier is a priority-ordered queue of Entry values. A URL may be
// enqueued at most once until it is dequeued and marked visited.
type Frontier struct {
	heap    priorityHeap
	queued  Set[string]
	visited Set[string]
	seq     int64
}

// New returns an empty Frontier.
func New() *Frontier {
	return &Frontier{
		heap:    priorityHeap{},
		queued:  NewSet[string](),
		visited: NewSet[string](),
	}
}

// Enqueue adds canonical at the given priority/depth/source. It returns
// false without modifying the frontier if canonical is already queued or
// has already been dequeued and marked visited.
func (f *Frontier) Enqueue(canonical string, priority, depth int, source string) bool {
	if f.queued.Contains(canonical) || f.visited.Contains(canonical) {
		return false
	}
	f.queued.Add(canonical)
	heap.Push(&f.heap, priorityItem{
		entry:    Entry{Canonical: canonical, Priority: priority, Depth: depth, Source: source},
		sequence: f.seq,
	})
	f.seq++
	return true
}

// Dequeue removes and returns the highest-priority entry (FIFO among
// ties), marking its URL visited. The second return is false when the
// frontier is empty.
func (f *Frontier) Dequeue() (Entry, bool) {
	if f.heap.Len() == 0 {
		return Entry{}, false
	}
	item := heap.Pop(&f.heap).(priorityItem)
	f.queued.Remove(item.entry.Canonical)
	f.visited.Add(item.entry.Canonical)
	return item.entry, true
}

// Len returns the number of entries currently queued (not yet dequeued).
func (f *Frontier) Len() int {
	return f.heap.Len()
}

// Visited reports whether canonical has already been dequeued.
func (f *Frontier) Visited(canonical string) bool {
	return f.visited.Contains(canonical)
}

// VisitedCount returns the number of URLs dequeued so far.
func (f *Frontier) VisitedCount() int {
	return f.visited.Size()
}
