package threads

import (
	"bytes"
	"fmt"
	"log"

	"nachos/interrupt"
	"nachos/list"
)

const (
	// sliceUnit scales a priority into a time slice in ticks.
	sliceUnit = 4

	// AgingInterval is the number of ticks between aging passes; each
	// pass improves the effective priority of every thread that has
	// waited Ready at least this long.
	AgingInterval = 100
)

// Scheduler multiplexes the simulated CPU among threads. Dispatch order
// is by effective priority, FIFO within one priority class; aging keeps
// low-priority work from starving.
type Scheduler struct {
	intr *interrupt.Interrupt

	ready   *list.List // Ready threads, sorted by effective priority
	current *Thread

	// toBeDestroyed is the zombie whose tid the next dispatched thread
	// reaps before running anything else.
	toBeDestroyed *Thread

	threads   [MaxThreads]*Thread // live threads indexed by tid
	epochs    [MaxThreads]int     // bumped on every reap, guards tid reuse
	lastAging int
}

// NewScheduler builds the scheduler and adopts the calling goroutine as
// the running "main" thread (tid 0).
func NewScheduler(intr *interrupt.Interrupt) *Scheduler {
	s := &Scheduler{
		intr:  intr,
		ready: list.New(),
	}

	main := s.newThread("main")
	main.status = Running
	s.current = main

	intr.SetYieldFunc(func() { s.current.Yield() })
	return s
}

// NewThread allocates a thread with the default priority. Exhausting
// the tid pool is fatal.
func (s *Scheduler) NewThread(name string) *Thread {
	old := s.intr.SetLevel(interrupt.IntOff)
	t := s.newThread(name)
	s.intr.SetLevel(old)
	return t
}

func (s *Scheduler) newThread(name string) *Thread {
	tid := -1
	for i := 0; i < MaxThreads; i++ {
		if s.threads[i] == nil {
			tid = i
			break
		}
	}
	if tid == -1 {
		log.Panicf("scheduler: tid pool exhausted creating %q", name)
	}

	t := &Thread{
		sched:        s,
		tid:          tid,
		epoch:        s.epochs[tid],
		name:         name,
		status:       JustCreated,
		basePriority: DefaultPriority,
		effPriority:  DefaultPriority,
		resume:       make(chan struct{}, 1),
		joiners:      list.New(),
	}
	s.threads[tid] = t
	return t
}

// CurrentThread is the thread now running on the CPU.
func (s *Scheduler) CurrentThread() *Thread {
	return s.current
}

// ThreadByTid returns the live thread with the given tid, or nil. The
// returned handle may belong to a later reuse of the tid; callers that
// care should hold the handle from creation time instead.
func (s *Scheduler) ThreadByTid(tid int) *Thread {
	if tid < 0 || tid >= MaxThreads {
		return nil
	}
	return s.threads[tid]
}

// ReadyToRun marks the thread Ready and queues it for dispatch. If it
// has a strictly better effective priority than the running thread, a
// preemption is requested; the switch happens at the next safe point.
func (s *Scheduler) ReadyToRun(t *Thread) {
	if s.intr.Level() != interrupt.IntOff {
		log.Panicf("scheduler: ReadyToRun(%q) with interrupts enabled", t.name)
	}
	t.status = Ready
	t.lastReady = s.intr.TotalTicks()
	s.ready.SortedInsert(t, t.effPriority)

	if s.current != nil && t.effPriority < s.current.effPriority {
		s.intr.YieldOnReturn()
	}
}

func (s *Scheduler) findNextToRun() *Thread {
	t := s.ready.RemoveFront()
	if t == nil {
		return nil
	}
	return t.(*Thread)
}

// run switches the CPU from the current thread to next. The caller's
// goroutine parks until it is dispatched again, unless it has finished,
// in which case run returns immediately so the goroutine can unwind.
func (s *Scheduler) run(next *Thread) {
	old := s.current
	finished := old.status == Finished
	if old.Space != nil && !finished {
		old.Space.SaveState()
	}

	next.status = Running
	next.sliceUsed = 0
	s.current = next
	next.resume <- struct{}{}

	// Past the send, the dispatched chain may ready and redispatch old
	// before this goroutine parks, so nothing shared may be touched here.
	if finished {
		return
	}
	<-old.resume
	s.finishSwitch()
}

// finishSwitch runs in the newly dispatched thread: reap the previous
// thread if it finished, then restore our MMU view.
func (s *Scheduler) finishSwitch() {
	if z := s.toBeDestroyed; z != nil && z != s.current {
		s.toBeDestroyed = nil
		s.epochs[z.tid]++
		s.threads[z.tid] = nil
	}
	if s.current.Space != nil {
		s.current.Space.RestoreState()
	}
}

// SetPriority updates a thread's base and effective priority and, if it
// is Ready, re-sorts it into the ready queue.
func (s *Scheduler) SetPriority(t *Thread, priority int) {
	if priority < PriorityMin {
		priority = PriorityMin
	}
	if priority > PriorityMax {
		priority = PriorityMax
	}
	old := s.intr.SetLevel(interrupt.IntOff)
	t.basePriority = priority
	t.effPriority = priority
	if t.status == Ready {
		s.ready.Remove(t)
		s.ready.SortedInsert(t, t.effPriority)
		if s.current != nil && t.effPriority < s.current.effPriority {
			s.intr.YieldOnReturn()
		}
	}
	s.intr.SetLevel(old)
}

// Tick is the timer hook: account the running thread's slice, age the
// ready queue, and force a requeue when the slice is spent. Runs inside
// the timer interrupt with interrupts masked.
func (s *Scheduler) Tick(interval int) {
	now := s.intr.TotalTicks()
	if now-s.lastAging >= AgingInterval {
		s.lastAging = now
		s.age(now)
	}

	cur := s.current
	cur.sliceUsed += interval
	if cur.sliceUsed >= cur.TimeSlice() {
		cur.sliceUsed = 0
		s.intr.YieldOnReturn()
	}
}

// age improves the effective priority of every thread that has sat
// Ready for at least AgingInterval ticks, down to the floor. Relative
// order within the queue is preserved, so the keys are simply rebuilt.
func (s *Scheduler) age(now int) {
	var aged []*Thread
	for {
		t := s.ready.RemoveFront()
		if t == nil {
			break
		}
		aged = append(aged, t.(*Thread))
	}
	for _, t := range aged {
		if t.effPriority > PriorityMin && now-t.lastReady >= AgingInterval {
			t.effPriority--
		}
		s.ready.SortedInsert(t, t.effPriority)
	}
}

// StartTimer arms the periodic timer that drives preemption and aging.
func (s *Scheduler) StartTimer(interval int) *interrupt.Timer {
	return interrupt.NewTimer(s.intr, interval, func() { s.Tick(interval) })
}

// TS dumps every live thread, one per line, for debugging.
func (s *Scheduler) TS() string {
	buf := bytes.NewBuffer(nil)
	fmt.Fprintf(buf, "%4s %-16s %-12s %6s %6s %6s\n",
		"TID", "NAME", "STATE", "UID", "EFFPRI", "SLICE")
	for _, t := range s.threads {
		if t == nil {
			continue
		}
		fmt.Fprintf(buf, "%4d %-16s %-12s %6d %6d %6d\n",
			t.tid, t.name, t.status, t.userID, t.effPriority, t.TimeSlice())
	}
	return buf.String()
}

// Interrupt exposes the interrupt gate so primitives built on the
// scheduler can mask around their critical sections.
func (s *Scheduler) Interrupt() *interrupt.Interrupt {
	return s.intr
}
