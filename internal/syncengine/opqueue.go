package syncengine

import "sync"

// opQueue serializes operations per session id. Different ids run
// concurrently; entries are dropped once nobody holds or waits for them.
type opQueue struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newOpQueue() *opQueue {
	return &opQueue{locks: map[string]*keyLock{}}
}

func (q *opQueue) Do(key string, fn func() error) error {
	q.mu.Lock()
	l, ok := q.locks[key]
	if !ok {
		l = &keyLock{}
		q.locks[key] = l
	}
	l.refs++
	q.mu.Unlock()

	l.mu.Lock()
	defer func() {
		l.mu.Unlock()
		q.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(q.locks, key)
		}
		q.mu.Unlock()
	}()
	return fn()
}

func (q *opQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.locks)
}
