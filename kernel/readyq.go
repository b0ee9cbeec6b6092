package kernel

// threadQueue is an intrusive doubly linked list of thread slots, threaded
// through Thread.next and Thread.prev. The ends are stored as slot+1 so the
// zero value is an empty queue.
type threadQueue struct {
	h, t int16
}

func (q *threadQueue) head() int16     { return q.h - 1 }
func (q *threadQueue) tail() int16     { return q.t - 1 }
func (q *threadQueue) setHead(i int16) { q.h = i + 1 }
func (q *threadQueue) setTail(i int16) { q.t = i + 1 }
func (q *threadQueue) empty() bool     { return q.h == 0 }

func (k *Kernel) insertBefore(q *threadQueue, at, i int16) {
	t := &k.threads[i]
	if at == nilSlot {
		t.prev = q.tail()
		t.next = nilSlot
		if t.prev == nilSlot {
			q.setHead(i)
		} else {
			k.threads[t.prev].next = i
		}
		q.setTail(i)
		return
	}
	a := &k.threads[at]
	t.next = at
	t.prev = a.prev
	if a.prev == nilSlot {
		q.setHead(i)
	} else {
		k.threads[a.prev].next = i
	}
	a.prev = i
}

func (k *Kernel) pushBack(q *threadQueue, i int16) {
	k.insertBefore(q, nilSlot, i)
}

func (k *Kernel) remove(q *threadQueue, i int16) {
	t := &k.threads[i]
	if t.prev == nilSlot {
		q.setHead(t.next)
	} else {
		k.threads[t.prev].next = t.next
	}
	if t.next == nilSlot {
		q.setTail(t.prev)
	} else {
		k.threads[t.next].prev = t.prev
	}
	t.next, t.prev = nilSlot, nilSlot
}

func (k *Kernel) popFront(q *threadQueue) int16 {
	i := q.head()
	if i != nilSlot {
		k.remove(q, i)
	}
	return i
}

// insertBehind queues i after every ready thread of equal or higher
// priority, so equal-priority threads run round-robin.
func (k *Kernel) insertBehind(i int16) {
	p := k.threads[i].prio
	at := k.ready.head()
	for at != nilSlot && k.threads[at].prio >= p {
		at = k.threads[at].next
	}
	k.insertBefore(&k.ready, at, i)
}

// insertAhead queues i in front of its priority peers. A preempted thread
// goes here so it resumes before threads that were merely waiting.
func (k *Kernel) insertAhead(i int16) {
	p := k.threads[i].prio
	at := k.ready.head()
	for at != nilSlot && k.threads[at].prio > p {
		at = k.threads[at].next
	}
	k.insertBefore(&k.ready, at, i)
}

// readyHead returns the priority of the best ready thread, or 0 if only
// idle could run.
func (k *Kernel) readyHead() Priority {
	if k.ready.empty() {
		return IdlePriority
	}
	return k.threads[k.ready.head()].prio
}
