// Package queue provides value-based binary heaps of (id, distance) pairs used
// by index providers for candidate lists and bounded top-k selection.
package queue

import "slices"

// Item is a candidate neighbor.
type Item struct {
	ID       uint32
	Distance float32
}

// Queue is a binary heap of Items ordered by Distance.
// A min-queue pops the closest item first, a max-queue pops the farthest.
// Queue is not safe for concurrent use.
type Queue struct {
	isMaxHeap bool
	items     []Item
}

// NewMin returns an empty min-queue with the given capacity hint.
func NewMin(capacity int) *Queue {
	return &Queue{items: make([]Item, 0, capacity)}
}

// NewMax returns an empty max-queue with the given capacity hint.
func NewMax(capacity int) *Queue {
	return &Queue{isMaxHeap: true, items: make([]Item, 0, capacity)}
}

// Len returns the number of queued items.
func (q *Queue) Len() int { return len(q.items) }

// Reset empties the queue, keeping its backing storage.
func (q *Queue) Reset() { q.items = q.items[:0] }

// Top returns the head of the queue without removing it.
func (q *Queue) Top() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Push inserts an item while maintaining the heap invariant.
func (q *Queue) Push(item Item) {
	q.items = append(q.items, item)
	q.siftUp(len(q.items) - 1)
}

// Pop removes and returns the head of the queue.
func (q *Queue) Pop() (Item, bool) {
	n := len(q.items)
	if n == 0 {
		return Item{}, false
	}
	root := q.items[0]
	last := q.items[n-1]
	q.items = q.items[:n-1]
	if n-1 > 0 {
		q.items[0] = last
		q.siftDown(0)
	}
	return root, true
}

// Offer keeps the k closest items seen so far. It must be used on a max-queue:
// the head is the current worst candidate and is evicted when item is closer.
// Reports whether item was retained.
func (q *Queue) Offer(item Item, k int) bool {
	if k <= 0 {
		return false
	}
	if len(q.items) < k {
		q.Push(item)
		return true
	}
	if item.Distance >= q.items[0].Distance {
		return false
	}
	q.items[0] = item
	q.siftDown(0)
	return true
}

// Sorted returns the queued items ordered by increasing distance, ties broken by id.
// The queue itself is left untouched.
func (q *Queue) Sorted() []Item {
	out := slices.Clone(q.items)
	slices.SortFunc(out, func(a, b Item) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

func (q *Queue) less(i, j int) bool {
	if q.isMaxHeap {
		return q.items[i].Distance > q.items[j].Distance
	}
	return q.items[i].Distance < q.items[j].Distance
}

func (q *Queue) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !q.less(i, p) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *Queue) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && q.less(r, l) {
			best = r
		}
		if !q.less(best, i) {
			return
		}
		q.items[i], q.items[best] = q.items[best], q.items[i]
		i = best
	}
}
