package remote

import "sync"

// queue is the unbounded outbound request queue drained by the sender.
type queue struct {
	mu    sync.Mutex
	items []*request
	ready chan struct{}
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(r *request) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop blocks until a request is queued or done is closed.
func (q *queue) pop(done <-chan struct{}) (*request, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			r := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return r, true
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-done:
			return nil, false
		}
	}
}
