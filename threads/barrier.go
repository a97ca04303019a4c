package threads

// Barrier is a two-phase barrier that is safe across successive rounds:
// nobody leaves round k until all n threads have both arrived and
// observed the arrival, so a fast thread cannot lap a slow one.
type Barrier struct {
	name    string
	n       int
	arrived int
	lock    *Lock
	condIn  *Condition
	condOut *Condition
}

func (s *Scheduler) NewBarrier(name string, n int) *Barrier {
	return &Barrier{
		name:    name,
		n:       n,
		lock:    s.NewLock(name + " lock"),
		condIn:  s.NewCondition(name + " in"),
		condOut: s.NewCondition(name + " out"),
	}
}

// AlignedBarrier blocks until all n threads have called it for the
// current round.
func (b *Barrier) AlignedBarrier() {
	b.lock.Acquire()

	b.arrived++
	if b.arrived == b.n {
		b.condIn.Broadcast(b.lock)
	} else {
		b.condIn.Wait(b.lock)
	}

	b.arrived--
	if b.arrived == 0 {
		b.condOut.Broadcast(b.lock)
	} else {
		b.condOut.Wait(b.lock)
	}

	b.lock.Release()
}
