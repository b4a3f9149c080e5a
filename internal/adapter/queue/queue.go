// Package queue implements the PriorityQueue: three FIFO lanes drained in
// strict priority order (High, then Normal, then Dropable), using plain
// slices instead of an intrusive list (see SPEC_FULL.md §3), replacing
// original_source/capture/http.c's DLL_PUSH_TAIL / DLL_POP_HEAD intrusive
// doubly-linked requests[] array.
package queue

import (
	"sync"

	"github.com/arkime/httppool/internal/core/domain"
)

// Queue holds the three priority lanes. Enqueue is called by arbitrary
// submitter goroutines; Pop is called only by the dispatcher loop — both
// paths go through the same mutex since submitters are concurrent (§5).
type Queue struct {
	mu     sync.Mutex
	lanes  [domain.High + 1][]*domain.Request
}

// New returns an empty PriorityQueue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends req to the tail of its priority's lane and reports
// whether the queue was empty beforehand. The Dispatcher does not consult
// it: it signals its wake channel on every enqueue.
func (q *Queue) Enqueue(req *domain.Request) (wasEmpty bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	wasEmpty = q.lenLocked() == 0
	q.lanes[req.Priority] = append(q.lanes[req.Priority], req)
	return wasEmpty
}

// Pop removes and returns the request at the head of the highest
// non-empty lane (High, then Normal, then Dropable), or nil if every lane
// is empty.
func (q *Queue) Pop() *domain.Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	for p := int(domain.High); p >= int(domain.Dropable); p-- {
		lane := q.lanes[p]
		if len(lane) == 0 {
			continue
		}
		req := lane[0]
		// Clear the slot so the backing array doesn't pin the request's
		// body/headers alive past dispatch.
		lane[0] = nil
		q.lanes[p] = lane[1:]
		return req
	}
	return nil
}

// Len reports the total number of requests waiting across all lanes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

func (q *Queue) lenLocked() int {
	n := 0
	for _, lane := range q.lanes {
		n += len(lane)
	}
	return n
}
