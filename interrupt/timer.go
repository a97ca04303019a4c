package interrupt

// TimerTicks is the default interval between timer interrupts.
const TimerTicks = 100

// Timer is the periodic hardware timer. Each time it fires it invokes
// its handler (the scheduler's tick hook) and re-arms itself.
type Timer struct {
	intr     *Interrupt
	interval int
	handler  Handler
	stopped  bool
}

func NewTimer(intr *Interrupt, interval int, handler Handler) *Timer {
	t := &Timer{intr: intr, interval: interval, handler: handler}
	intr.Schedule(t.fire, interval, "timer")
	return t
}

func (t *Timer) fire() {
	if t.stopped {
		return
	}
	t.handler()
	t.intr.Schedule(t.fire, t.interval, "timer")
}

// Stop disarms the timer; the already-scheduled interrupt becomes a
// no-op when it comes due.
func (t *Timer) Stop() {
	t.stopped = true
}
