// Package threads implements kernel threads, the priority scheduler, and
// the synchronization primitives built on them. The kernel runs on one
// simulated CPU: every thread is a goroutine parked on its own resume
// channel, and the scheduler unparks exactly one of them at a time, so
// masking interrupts is all the mutual exclusion kernel code needs.
package threads

import (
	"log"

	"nachos/interrupt"
	"nachos/list"
)

type Status int

const (
	JustCreated Status = iota
	Ready
	Running
	Blocked
	Finished
)

func (s Status) String() string {
	switch s {
	case JustCreated:
		return "JUST_CREATED"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Blocked:
		return "BLOCKED"
	case Finished:
		return "FINISHED"
	}
	return "UNKNOWN"
}

const (
	// MaxThreads bounds the tid pool.
	MaxThreads = 128

	// Priorities are a small range where a numerically smaller value is
	// a better priority.
	PriorityMin     = 0
	PriorityMax     = 31
	DefaultPriority = 16
)

// Space is the per-thread MMU state owned by a user thread. The
// scheduler saves the outgoing thread's view and restores the incoming
// one's on every dispatch.
type Space interface {
	SaveState()
	RestoreState()
}

// Thread is one kernel thread. A thread is created in JustCreated,
// becomes Ready on Fork, and then alternates Ready/Running/Blocked
// until Finish.
type Thread struct {
	sched *Scheduler

	tid    int
	epoch  int
	userID int
	name   string
	status Status

	basePriority int
	effPriority  int
	sliceUsed    int // on-CPU ticks consumed in the current slice
	lastReady    int // tick at which the thread last became Ready

	// Space is the address space owned by this thread, nil for pure
	// kernel threads.
	Space Space

	resume  chan struct{}
	joiners *list.List
}

func (t *Thread) Tid() int     { return t.tid }
func (t *Thread) Epoch() int   { return t.epoch }
func (t *Thread) Name() string { return t.name }
func (t *Thread) UserID() int  { return t.userID }
func (t *Thread) State() Status {
	return t.status
}

func (t *Thread) SetUserID(id int) { t.userID = id }

// Priority returns the base priority; EffPriority the aged one the
// scheduler dispatches by.
func (t *Thread) Priority() int    { return t.basePriority }
func (t *Thread) EffPriority() int { return t.effPriority }

// TimeSlice is the number of ticks this thread may run before the timer
// forces a requeue. Better (smaller) priorities earn longer slices.
func (t *Thread) TimeSlice() int {
	return (PriorityMax + 1 - t.effPriority) * sliceUnit
}

// Fork makes the thread runnable, entering fn(arg) the first time it is
// dispatched.
func (t *Thread) Fork(fn func(arg interface{}), arg interface{}) {
	old := t.sched.intr.SetLevel(interrupt.IntOff)

	go func() {
		<-t.resume
		t.sched.finishSwitch()
		fn(arg)
		t.Finish()
	}()

	t.sched.ReadyToRun(t)
	t.sched.intr.SetLevel(old)
}

// Yield relinquishes the CPU if another thread is ready. The caller is
// requeued and resumes when the scheduler picks it again.
func (t *Thread) Yield() {
	s := t.sched
	old := s.intr.SetLevel(interrupt.IntOff)
	if t != s.current {
		log.Panicf("thread %q yielding while not running", t.name)
	}
	if next := s.findNextToRun(); next != nil {
		s.ReadyToRun(t)
		s.run(next)
	}
	s.intr.SetLevel(old)
}

// Sleep blocks the thread. Interrupts must already be masked: the
// caller first queues itself on some wait list, then sleeps, and the
// wakeup side readies it from an interrupt handler or another thread.
// If nothing is ready the machine idles until an interrupt arrives.
// Sleep returns with interrupts still masked.
func (t *Thread) Sleep() {
	s := t.sched
	if s.intr.Level() != interrupt.IntOff {
		log.Panicf("thread %q sleeping with interrupts enabled", t.name)
	}
	if t != s.current {
		log.Panicf("thread %q sleeping while not running", t.name)
	}

	t.status = Blocked
	next := s.findNextToRun()
	for next == nil {
		s.intr.Idle()
		next = s.findNextToRun()
	}
	s.run(next)
}

// Finish terminates the thread. The tid is reaped by the next thread to
// be dispatched, after which it may be reused; joiners are woken here.
func (t *Thread) Finish() {
	s := t.sched
	s.intr.SetLevel(interrupt.IntOff)
	if t != s.current {
		log.Panicf("thread %q finishing while not running", t.name)
	}

	t.status = Finished
	for {
		j := t.joiners.RemoveFront()
		if j == nil {
			break
		}
		s.ReadyToRun(j.(*Thread))
	}

	s.toBeDestroyed = t
	next := s.findNextToRun()
	for next == nil {
		s.intr.Idle()
		next = s.findNextToRun()
	}
	s.run(next)
	// run returned without parking because this thread is finished; the
	// goroutine unwinds from here.
}

// Join blocks the caller until this thread has finished. Joining an
// already-finished thread returns immediately; the handle stays valid
// across tid reuse, so there is no aliasing hazard.
func (t *Thread) Join() {
	s := t.sched
	old := s.intr.SetLevel(interrupt.IntOff)
	if t.status != Finished && t != s.current {
		t.joiners.Append(s.current)
		s.current.Sleep()
	}
	s.intr.SetLevel(old)
}
