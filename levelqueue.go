package csp

import "github.com/eapache/queue"

type leveled interface {
	queueLevel() uint32
}

// levelqueue is a priority queue of FIFO buckets, one per level.
// Pop removes the earliest element with the least level.
type levelqueue[E leveled] struct {
	buckets []*queue.Queue
	n       int
}

func (q *levelqueue[E]) Empty() bool {
	return q.n == 0
}

func (q *levelqueue[E]) Len() int {
	return q.n
}

func (q *levelqueue[E]) Push(v E) {
	l := int(v.queueLevel())
	for len(q.buckets) <= l {
		q.buckets = append(q.buckets, nil)
	}
	b := q.buckets[l]
	if b == nil {
		b = queue.New()
		q.buckets[l] = b
	}
	b.Add(v)
	q.n++
}

func (q *levelqueue[E]) Pop() (v E) {
	for _, b := range q.buckets {
		if b != nil && b.Length() != 0 {
			q.n--
			return b.Remove().(E)
		}
	}
	panic("csp: internal error: pop from empty queue")
}
