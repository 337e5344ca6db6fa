package dispatch

import "sync"

// keyedQueue runs jobs one at a time per key, in submission order. Each key
// gets a worker goroutine while it has pending jobs; different keys run
// concurrently.
type keyedQueue struct {
	mu      sync.Mutex
	pending map[string][]func()
	closed  bool
	wg      sync.WaitGroup
}

func newKeyedQueue() *keyedQueue {
	return &keyedQueue{pending: make(map[string][]func())}
}

// push enqueues job under key. It returns false once the queue is closed.
func (q *keyedQueue) push(key string, job func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	jobs, running := q.pending[key]
	q.pending[key] = append(jobs, job)
	if !running {
		q.wg.Go(func() { q.work(key) })
	}
	return true
}

// work drains key's jobs. The map entry stays present, possibly empty, for
// as long as the worker runs.
func (q *keyedQueue) work(key string) {
	for {
		q.mu.Lock()
		jobs := q.pending[key]
		if len(jobs) == 0 {
			delete(q.pending, key)
			q.mu.Unlock()
			return
		}
		job := jobs[0]
		jobs[0] = nil
		q.pending[key] = jobs[1:]
		q.mu.Unlock()

		job()
	}
}

// close rejects new jobs and waits for queued ones to finish.
func (q *keyedQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}
