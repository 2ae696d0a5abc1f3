package signaling

import "sync"

type refMutex struct {
	sync.Mutex
	refs int
}

// userLocks serializes presence updates per user id.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*refMutex)}
}

// lock blocks until userID is free and returns the matching unlock.
func (u *userLocks) lock(userID string) func() {
	u.mu.Lock()
	m, ok := u.locks[userID]
	if !ok {
		m = &refMutex{}
		u.locks[userID] = m
	}
	m.refs++
	u.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		u.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(u.locks, userID)
		}
		u.mu.Unlock()
	}
}

func (u *userLocks) size() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.locks)
}
