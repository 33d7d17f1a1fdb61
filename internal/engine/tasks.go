package engine

import "container/heap"

// taskQueue is a min-heap of (fire-time, action) pairs drained once per tick.
// One-shot effects that must outlive their scheduler (outage restorations,
// the delayed adjacency penalty) live here instead of on independent timers,
// so their ordering is deterministic and testable without wall-clock waits.
type taskQueue struct {
	heap taskHeap
	seq  int
}

type task struct {
	fireAt int64 // UnixNano; ties broken by seq (schedule order)
	seq    int
	run    func()
}

func newTaskQueue() *taskQueue {
	tq := &taskQueue{}
	heap.Init(&tq.heap)
	return tq
}

// Schedule enqueues fn to run at the first drain at or after fireAt.
// Tasks are never cancelled; whoever schedules one guards its effect.
func (tq *taskQueue) Schedule(fireAt int64, fn func()) {
	tq.seq++
	heap.Push(&tq.heap, task{fireAt: fireAt, seq: tq.seq, run: fn})
}

// RunDue pops and runs every task due at now, in (fire-time, schedule-order)
// order. Returns the number of tasks run.
func (tq *taskQueue) RunDue(now int64) int {
	ran := 0
	for tq.heap.Len() > 0 && tq.heap[0].fireAt <= now {
		t := heap.Pop(&tq.heap).(task)
		t.run()
		ran++
	}
	return ran
}

// Len reports how many tasks are pending.
func (tq *taskQueue) Len() int {
	return tq.heap.Len()
}

type taskHeap []task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].fireAt != h[j].fireAt {
		return h[i].fireAt < h[j].fireAt
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) {
	*h = append(*h, x.(task))
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}
