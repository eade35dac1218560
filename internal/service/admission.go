package service

import "time"

// Semaphore bounds how many synchronous conversions run at once. Acquire
// with a zero timeout is a non-blocking try; otherwise it waits up to the
// timeout and then fails fast.
type Semaphore struct {
	slots chan struct{}
}

func NewSemaphore(n int) *Semaphore {
	return &Semaphore{slots: make(chan struct{}, n)}
}

func (s *Semaphore) Acquire(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case s.slots <- struct{}{}:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s.slots <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Semaphore) Release() {
	select {
	case <-s.slots:
	default:
		// Release without acquire is a programming error; don't block.
	}
}

// InUse reports currently held slots, for the health endpoint.
func (s *Semaphore) InUse() int {
	return len(s.slots)
}
