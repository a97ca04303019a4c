// Package interrupt simulates the interrupt hardware of the machine: a
// maskable interrupt level, a tick clock, and a queue of pending
// interrupts ordered by due time. Kernel code brackets every critical
// section with SetLevel(IntOff) / SetLevel(old); re-enabling interrupts
// advances the clock, which is when pending device interrupts fire and
// when a requested preemption actually takes place.
package interrupt

import (
	"log"

	"nachos/list"
)

type Level int

const (
	IntOff Level = iota
	IntOn
)

// Ticks charged for various events.
const (
	SystemTick = 1  // advancing time inside the kernel
	UserTick   = 10 // advancing time for one user instruction
)

type Handler func()

type pending struct {
	handler Handler
	name    string
}

type Interrupt struct {
	level     Level
	queue     *list.List
	ticks     int
	inHandler bool

	// yieldOnReturn is set by the scheduler from inside an interrupt
	// handler; the context switch is deferred to the end of the handler,
	// when it is safe to switch.
	yieldOnReturn bool
	yieldFunc     func()

	// idleFunc is consulted by Idle when the pending queue is empty.
	// If nil, an idle machine with nothing pending is a fatal condition.
	idleFunc func()
}

func New() *Interrupt {
	return &Interrupt{
		level: IntOn,
		queue: list.New(),
	}
}

// SetLevel changes the interrupt mask and returns the previous level.
// Turning interrupts on advances simulated time by one system tick, so
// any interrupt that came due while masked is delivered here.
func (i *Interrupt) SetLevel(level Level) Level {
	old := i.level
	i.level = level
	if level == IntOn && old == IntOff && !i.inHandler {
		i.OneTick(SystemTick)
	}
	return old
}

func (i *Interrupt) Level() Level {
	return i.level
}

// Schedule arranges for handler to be called fromNow ticks in the
// future. The name is only for diagnostics.
func (i *Interrupt) Schedule(handler Handler, fromNow int, name string) {
	if fromNow <= 0 {
		log.Panicf("interrupt: schedule %q %d ticks in the past", name, fromNow)
	}
	i.queue.SortedInsert(&pending{handler, name}, i.ticks+fromNow)
}

// OneTick advances simulated time and delivers any interrupts that have
// come due. If a handler requested a reschedule, the current thread
// yields before OneTick returns.
func (i *Interrupt) OneTick(ticks int) {
	i.ticks += ticks
	i.checkIfDue()

	if i.yieldOnReturn && i.level == IntOn && i.yieldFunc != nil {
		i.yieldOnReturn = false
		i.yieldFunc()
	}
}

// Idle is called when no thread is ready to run: simulated time jumps
// forward to the next pending interrupt, whose handler should make some
// thread runnable again. An idle machine with nothing pending can make
// no further progress.
func (i *Interrupt) Idle() {
	when, ok := i.queue.FrontKey()
	if !ok {
		if i.idleFunc != nil {
			i.idleFunc()
			return
		}
		log.Panicf("interrupt: machine idle with no pending interrupts; deadlock at tick %d", i.ticks)
	}
	if when > i.ticks {
		i.ticks = when
	}
	i.checkIfDue()
}

func (i *Interrupt) checkIfDue() {
	for {
		when, ok := i.queue.FrontKey()
		if !ok || when > i.ticks {
			return
		}
		item, _ := i.queue.RemoveFrontKeyed()
		p := item.(*pending)

		// Handlers run with interrupts masked.
		old := i.level
		i.level = IntOff
		i.inHandler = true
		p.handler()
		i.inHandler = false
		i.level = old
	}
}

// YieldOnReturn asks for a context switch at the end of the current
// interrupt handler. Called by the scheduler when a readied thread
// should preempt the running one.
func (i *Interrupt) YieldOnReturn() {
	i.yieldOnReturn = true
}

// SetYieldFunc installs the scheduler callback that performs the
// deferred yield.
func (i *Interrupt) SetYieldFunc(fn func()) {
	i.yieldFunc = fn
}

// SetIdleFunc installs a fallback for Idle with an empty pending queue,
// used by drivers that prefer halting over panicking.
func (i *Interrupt) SetIdleFunc(fn func()) {
	i.idleFunc = fn
}

// TotalTicks reports the simulated time elapsed since startup.
func (i *Interrupt) TotalTicks() int {
	return i.ticks
}
