package sync

import (
	"sync"
	"time"
)

// TryMutex provides a mutex that allows you to attempt to grab a mutex, and
// then fail if the mutex is either grabbed or is not available within a
// certain duration.
type TryMutex struct {
	once sync.Once
	lock chan struct{}
}

// init initializes the TryMutex.
func (tm *TryMutex) init() {
	tm.lock = make(chan struct{}, 1)
	tm.lock <- struct{}{}
}

// Lock grabs a lock on the TryMutex, blocking until the lock is available.
func (tm *TryMutex) Lock() {
	tm.once.Do(tm.init)
	<-tm.lock
}

// TryLock grabs a lock on the TryMutex, returning false if the mutex is
// already locked.
func (tm *TryMutex) TryLock() bool {
	tm.once.Do(tm.init)
	select {
	case <-tm.lock:
		return true
	default:
		return false
	}
}

// TryLockTimed attempts to grab a lock on the TryMutex, returning false if
// the mutex is still locked after 'duration' has elapsed.
func (tm *TryMutex) TryLockTimed(duration time.Duration) bool {
	tm.once.Do(tm.init)
	select {
	case <-tm.lock:
		return true
	case <-time.After(duration):
		return false
	}
}

// Unlock releases a lock on the TryMutex.
func (tm *TryMutex) Unlock() {
	tm.once.Do(tm.init)
	select {
	case tm.lock <- struct{}{}:
	default:
		panic("Unlock called when TryMutex is not locked")
	}
}
