package threads

import (
	"log"

	"nachos/interrupt"
	"nachos/list"
)

// Semaphore is the base primitive: a non-negative counter plus a FIFO
// queue of waiters.
type Semaphore struct {
	sched *Scheduler
	name  string
	value int
	queue *list.List
}

func (s *Scheduler) NewSemaphore(name string, value int) *Semaphore {
	return &Semaphore{
		sched: s,
		name:  name,
		value: value,
		queue: list.New(),
	}
}

// P waits for the value to become positive, then decrements it.
func (sem *Semaphore) P() {
	s := sem.sched
	old := s.intr.SetLevel(interrupt.IntOff)

	for sem.value == 0 {
		sem.queue.Append(s.current)
		s.current.Sleep()
	}
	sem.value--

	s.intr.SetLevel(old)
}

// V increments the value and wakes the longest-waiting thread, if any.
func (sem *Semaphore) V() {
	s := sem.sched
	old := s.intr.SetLevel(interrupt.IntOff)

	if t := sem.queue.RemoveFront(); t != nil {
		s.ReadyToRun(t.(*Thread))
	}
	sem.value++

	s.intr.SetLevel(old)
}

// Lock is a binary semaphore that remembers its holder. Releasing a
// lock the caller does not hold is fatal.
type Lock struct {
	sched  *Scheduler
	name   string
	sem    *Semaphore
	holder *Thread
}

func (s *Scheduler) NewLock(name string) *Lock {
	return &Lock{
		sched: s,
		name:  name,
		sem:   s.NewSemaphore(name+" sem", 1),
	}
}

func (l *Lock) Acquire() {
	l.sem.P()
	l.holder = l.sched.current
}

func (l *Lock) Release() {
	if !l.IsHeldByCurrentThread() {
		log.Panicf("lock %q released by %q, held by another thread",
			l.name, l.sched.current.name)
	}
	l.holder = nil
	l.sem.V()
}

func (l *Lock) IsHeldByCurrentThread() bool {
	return l.holder == l.sched.current
}

// Condition is a Mesa-style condition variable: Signal readies at most
// one waiter, the woken thread reacquires the lock before returning
// from Wait, and a signal with no waiter is lost.
type Condition struct {
	sched *Scheduler
	name  string
	count int // threads between Wait's release and wakeup
	sem   *Semaphore
}

func (s *Scheduler) NewCondition(name string) *Condition {
	return &Condition{
		sched: s,
		name:  name,
		sem:   s.NewSemaphore(name+" sem", 0),
	}
}

func (c *Condition) Wait(lock *Lock) {
	if !lock.IsHeldByCurrentThread() {
		log.Panicf("condition %q: Wait without holding %q", c.name, lock.name)
	}
	c.count++
	lock.Release()
	c.sem.P()
	lock.Acquire()
}

func (c *Condition) Signal(lock *Lock) {
	if !lock.IsHeldByCurrentThread() {
		log.Panicf("condition %q: Signal without holding %q", c.name, lock.name)
	}
	if c.count == 0 {
		return
	}
	c.count--
	c.sem.V()
}

func (c *Condition) Broadcast(lock *Lock) {
	if !lock.IsHeldByCurrentThread() {
		log.Panicf("condition %q: Broadcast without holding %q", c.name, lock.name)
	}
	for c.count > 0 {
		c.count--
		c.sem.V()
	}
}
