package book

// entry is what actually sits in the priority queues: an immutable
// (price, seq, id) triple. The mutable order record lives in the arena,
// keyed by id, so heap ordering never depends on mutable state.
type entry struct {
	price int64
	seq   uint64
	id    uint64
}

// bidQueue implements heap.Interface for resting bids
// (highest price on top, earlier seq wins ties).
// Use container/heap to manipulate it (Init, Push, Pop).
type bidQueue []entry

func (q bidQueue) Len() int { return len(q) }
func (q bidQueue) Less(i, j int) bool {
	if q[i].price != q[j].price {
		return q[i].price > q[j].price // max heap on price
	}
	return q[i].seq < q[j].seq // time priority on ties
}
func (q bidQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *bidQueue) Push(x interface{}) {
	*q = append(*q, x.(entry))
}

func (q *bidQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[0 : n-1]
	return x
}

// Peek returns the top entry without removing it.
func (q bidQueue) Peek() (entry, bool) {
	if len(q) == 0 {
		return entry{}, false
	}
	return q[0], true
}

// askQueue implements heap.Interface for resting asks
// (lowest price on top, earlier seq wins ties).
type askQueue []entry

func (q askQueue) Len() int { return len(q) }
func (q askQueue) Less(i, j int) bool {
	if q[i].price != q[j].price {
		return q[i].price < q[j].price // min heap on price
	}
	return q[i].seq < q[j].seq
}
func (q askQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *askQueue) Push(x interface{}) {
	*q = append(*q, x.(entry))
}

func (q *askQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[0 : n-1]
	return x
}

// Peek returns the top entry without removing it.
func (q askQueue) Peek() (entry, bool) {
	if len(q) == 0 {
		return entry{}, false
	}
	return q[0], true
}
