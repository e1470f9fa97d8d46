package isolate

import (
	"container/heap"
	"time"
)

// task is a unit of work scheduled on the virtual clock.
type task struct {
	id       int
	at       time.Duration
	seq      int
	every    time.Duration
	run      func()
	canceled bool
	index    int
}

type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	t := x.(*task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	t.index = -1
	return t
}

// clock orders tasks by due time, then by scheduling order. Time only moves
// when a task is taken.
type clock struct {
	now    time.Duration
	seq    int
	nextID int
	queue  taskQueue
	timers map[int]*task
}

func newClock() *clock {
	return &clock{timers: make(map[int]*task)}
}

func (c *clock) schedule(delay time.Duration, every time.Duration, run func()) *task {
	if delay < 0 {
		delay = 0
	}
	c.seq++
	c.nextID++
	t := &task{id: c.nextID, at: c.now + delay, seq: c.seq, every: every, run: run}
	heap.Push(&c.queue, t)
	c.timers[t.id] = t
	return t
}

func (c *clock) cancel(id int) {
	if t, ok := c.timers[id]; ok {
		t.canceled = true
		delete(c.timers, id)
	}
}

// next pops the earliest live task due at or before limit and advances the
// clock to it.
func (c *clock) next(limit time.Duration) (*task, bool) {
	for c.queue.Len() > 0 {
		t := c.queue[0]
		if t.canceled {
			heap.Pop(&c.queue)
			continue
		}
		if t.at > limit {
			return nil, false
		}
		heap.Pop(&c.queue)
		if t.at > c.now {
			c.now = t.at
		}
		if t.every > 0 {
			c.seq++
			t.at = c.now + t.every
			t.seq = c.seq
			heap.Push(&c.queue, t)
		} else {
			delete(c.timers, t.id)
		}
		return t, true
	}
	return nil, false
}

func (c *clock) pending() int {
	n := 0
	for _, t := range c.queue {
		if !t.canceled {
			n++
		}
	}
	return n
}
