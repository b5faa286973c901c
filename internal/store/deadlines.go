package store

import "container/heap"

// deadline is a scheduled close check. Entries become stale when the incident gains a
// newer member; stale entries are skipped when popped rather than removed eagerly.
type deadline struct {
	id string
	at int64
}

type deadlineHeap []deadline

func (h deadlineHeap) Len() int { return len(h) }
func (h deadlineHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].id < h[j].id
}
func (h deadlineHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *deadlineHeap) Push(x any) { *h = append(*h, x.(deadline)) }

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (h *deadlineHeap) schedule(id string, at int64) {
	heap.Push(h, deadline{id: id, at: at})
}

// due pops every entry whose deadline is strictly before now.
func (h *deadlineHeap) due(now int64) []deadline {
	var out []deadline
	for h.Len() > 0 && (*h)[0].at < now {
		out = append(out, heap.Pop(h).(deadline))
	}
	return out
}
