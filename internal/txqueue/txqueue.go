// Package txqueue implements the transmit queue the MAC controller drains:
// a thread-safe two-priority FIFO (high-priority control/ack traffic ahead
// of low-priority bulk data), grounded on the reference TNC's tq.go queue
// but condition-variable driven rather than polled.
package txqueue

import "sync"

type Priority int

const (
	PrioHigh Priority = iota
	PrioLow
	numPriorities
)

// Item is one queued outbound packet: already-fragmented payload bytes
// plus the oper_mode it should be transmitted with.
type Item struct {
	Payload []byte
	Mode    byte
}

type node struct {
	item Item
	next *node
}

// TxQueue is a priority FIFO with a Cond that callers can Wait on instead
// of polling; Push always wakes exactly one waiter.
type TxQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	heads   [numPriorities]*node
	tails   [numPriorities]*node
	closed  bool
}

func New() *TxQueue {
	q := &TxQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues an item at the given priority and wakes one waiting Pop.
func (q *TxQueue) Push(prio Priority, item Item) {
	n := &node{item: item}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.tails[prio] == nil {
		q.heads[prio] = n
	} else {
		q.tails[prio].next = n
	}
	q.tails[prio] = n
	q.cond.Signal()
}

// Pop blocks until an item is available (high priority drained first) or
// the queue is closed, in which case ok is false.
func (q *TxQueue) Pop() (item Item, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		for prio := Priority(0); prio < numPriorities; prio++ {
			if n := q.heads[prio]; n != nil {
				q.heads[prio] = n.next
				if q.heads[prio] == nil {
					q.tails[prio] = nil
				}
				return n.item, true
			}
		}
		if q.closed {
			return Item{}, false
		}
		q.cond.Wait()
	}
}

// TryPop returns immediately with ok=false if nothing is queued.
func (q *TxQueue) TryPop() (item Item, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for prio := Priority(0); prio < numPriorities; prio++ {
		if n := q.heads[prio]; n != nil {
			q.heads[prio] = n.next
			if q.heads[prio] == nil {
				q.tails[prio] = nil
			}
			return n.item, true
		}
	}
	return Item{}, false
}

// Len reports the total number of queued items across both priorities.
func (q *TxQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for prio := Priority(0); prio < numPriorities; prio++ {
		for cur := q.heads[prio]; cur != nil; cur = cur.next {
			n++
		}
	}
	return n
}

// Clear drops every queued item without transmitting it.
func (q *TxQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for prio := Priority(0); prio < numPriorities; prio++ {
		q.heads[prio] = nil
		q.tails[prio] = nil
	}
}

// Close wakes all Pop waiters permanently; subsequent Pops return ok=false
// once drained.
func (q *TxQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
