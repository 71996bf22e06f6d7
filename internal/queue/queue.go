// Package queue provides the priority queues used by the query executors.
package queue

import (
	"container/heap"
	"math"
	"slices"
)

// Compile time check to ensure the heaps satisfy the heap interface.
var (
	_ heap.Interface = (*knnItems)(nil)
	_ heap.Interface = (*minItems[int])(nil)
)

// Candidate is a (distance, id) pair kept by a KNNHeap.
type Candidate struct {
	ID   uint64
	Dist float64
}

// Less orders candidates by distance, then id.
func (c Candidate) Less(o Candidate) bool {
	if c.Dist != o.Dist {
		return c.Dist < o.Dist
	}
	return c.ID < o.ID
}

type knnItems []Candidate

func (h knnItems) Len() int           { return len(h) }
func (h knnItems) Less(i, j int) bool { return h[j].Less(h[i]) } // max-heap
func (h knnItems) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *knnItems) Push(x any)        { *h = append(*h, x.(Candidate)) }
func (h *knnItems) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// KNNHeap is a bounded max-heap holding the k best candidates seen so far.
// The worst candidate sits on top, so its distance is the pruning bound.
type KNNHeap struct {
	k     int
	items knnItems
}

func NewKNNHeap(k int) *KNNHeap {
	return &KNNHeap{k: k, items: make(knnItems, 0, k)}
}

// Offer adds the candidate if the heap is not full or if it beats the current
// worst. Reports whether it was kept.
func (h *KNNHeap) Offer(id uint64, dist float64) bool {
	if h.k <= 0 {
		return false
	}
	c := Candidate{ID: id, Dist: dist}
	if len(h.items) < h.k {
		heap.Push(&h.items, c)
		return true
	}
	if !c.Less(h.items[0]) {
		return false
	}
	h.items[0] = c
	heap.Fix(&h.items, 0)
	return true
}

// Bound returns the k-th best distance, or +Inf while fewer than k
// candidates are known.
func (h *KNNHeap) Bound() float64 {
	if len(h.items) < h.k || h.k <= 0 {
		return math.Inf(1)
	}
	return h.items[0].Dist
}

func (h *KNNHeap) Len() int   { return len(h.items) }
func (h *KNNHeap) K() int     { return h.k }
func (h *KNNHeap) Full() bool { return len(h.items) >= h.k }

// Sorted returns the candidates in ascending (distance, id) order without
// consuming the heap.
func (h *KNNHeap) Sorted() []Candidate {
	out := slices.Clone([]Candidate(h.items))
	slices.SortFunc(out, func(a, b Candidate) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return out
}

type minItem[T any] struct {
	value    T
	priority float64
	seq      uint64
}

type minItems[T any] []minItem[T]

func (h minItems[T]) Len() int { return len(h) }
func (h minItems[T]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h minItems[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *minItems[T]) Push(x any)   { *h = append(*h, x.(minItem[T])) }
func (h *minItems[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = minItem[T]{}
	*h = old[:n-1]
	return item
}

// MinQueue pops values in ascending priority; equal priorities come out in
// insertion order.
type MinQueue[T any] struct {
	items minItems[T]
	seq   uint64
}

func (q *MinQueue[T]) Push(v T, priority float64) {
	heap.Push(&q.items, minItem[T]{value: v, priority: priority, seq: q.seq})
	q.seq++
}

// Pop removes the lowest-priority value.
func (q *MinQueue[T]) Pop() (T, float64, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, 0, false
	}
	it := heap.Pop(&q.items).(minItem[T])
	return it.value, it.priority, true
}

// Peek returns the lowest priority, or +Inf when empty.
func (q *MinQueue[T]) Peek() float64 {
	if len(q.items) == 0 {
		return math.Inf(1)
	}
	return q.items[0].priority
}

func (q *MinQueue[T]) Len() int { return len(q.items) }
