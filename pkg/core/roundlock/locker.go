package roundlock

import "sync"

// Locker hands out one mutex per round id. Entries are reference counted and
// removed once the last holder or waiter releases, so the map only holds
// rounds with in-flight mutations.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Lock blocks until the round's mutex is held and returns the matching unlock func
func (l *Locker) Lock(roundID string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.locks[roundID]
	if !ok {
		e = &entry{}
		l.locks[roundID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.locks, roundID)
			}
			l.mu.Unlock()
		})
	}
}

// Active returns the number of rounds currently held or waited on
func (l *Locker) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
