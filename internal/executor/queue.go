package executor

// queueItem is one dispatchable task waiting in the ready queue.
type queueItem struct {
	key      string
	priority int
	seq      int
}

// readyQueue orders ready tasks for dispatch: highest priority first,
// ties broken by submission order. It implements heap.Interface.
type readyQueue []queueItem

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *readyQueue) Push(x any) {
	*q = append(*q, x.(queueItem))
}

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
