package threads

import (
	"testing"

	"nachos/testutils"
)

func TestSemaphorePV(t *testing.T) {
	sched := newTestScheduler()
	sem := sched.NewSemaphore("test", 0)
	woken := false

	waiter := sched.NewThread("waiter")
	waiter.Fork(func(interface{}) {
		sem.P()
		woken = true
	}, nil)

	sched.CurrentThread().Yield() // waiter blocks on P
	if woken {
		testutils.FatalHere(t, "P passed a zero semaphore")
	}
	sem.V()
	waiter.Join()
	if !woken {
		testutils.FatalHere(t, "V did not release the waiter")
	}
}

func TestSemaphoreWakesInArrivalOrder(t *testing.T) {
	sched := newTestScheduler()
	sem := sched.NewSemaphore("fifo", 0)
	var order []int

	for i := 0; i < 3; i++ {
		i := i
		w := sched.NewThread("waiter")
		w.Fork(func(interface{}) {
			sem.P()
			order = append(order, i)
		}, nil)
		sched.CurrentThread().Yield() // block them one at a time
	}

	for i := 0; i < 3; i++ {
		sem.V()
		sched.CurrentThread().Yield()
	}
	for i := range order {
		if order[i] != i {
			testutils.FatalHere(t, "wake order %v, expected FIFO", order)
		}
	}
}

func TestLockMutualExclusion(t *testing.T) {
	sched := newTestScheduler()
	lock := sched.NewLock("mutex")
	inside := 0
	worst := 0

	worker := func(interface{}) {
		for i := 0; i < 3; i++ {
			lock.Acquire()
			inside++
			if inside > worst {
				worst = inside
			}
			sched.CurrentThread().Yield() // try to let someone else in
			inside--
			lock.Release()
		}
	}
	a := sched.NewThread("a")
	b := sched.NewThread("b")
	a.Fork(worker, nil)
	b.Fork(worker, nil)
	a.Join()
	b.Join()

	if worst != 1 {
		testutils.FatalHere(t, "%d threads inside the lock at once", worst)
	}
}

func TestLockHeldByCurrentThread(t *testing.T) {
	sched := newTestScheduler()
	lock := sched.NewLock("owner")
	if lock.IsHeldByCurrentThread() {
		testutils.FatalHere(t, "unheld lock claims an owner")
	}
	lock.Acquire()
	if !lock.IsHeldByCurrentThread() {
		testutils.FatalHere(t, "held lock denies its owner")
	}
	lock.Release()
}

func TestConditionSignalWakesOne(t *testing.T) {
	sched := newTestScheduler()
	lock := sched.NewLock("cv lock")
	cond := sched.NewCondition("cv")
	woken := 0

	for i := 0; i < 2; i++ {
		w := sched.NewThread("waiter")
		w.Fork(func(interface{}) {
			lock.Acquire()
			cond.Wait(lock)
			woken++
			lock.Release()
		}, nil)
	}
	sched.CurrentThread().Yield()

	lock.Acquire()
	cond.Signal(lock)
	lock.Release()
	sched.CurrentThread().Yield()
	if woken != 1 {
		testutils.FatalHere(t, "%d woken by signal, expected 1", woken)
	}

	lock.Acquire()
	cond.Broadcast(lock)
	lock.Release()
	sched.CurrentThread().Yield()
	if woken != 2 {
		testutils.FatalHere(t, "%d woken after broadcast, expected 2", woken)
	}
}

func runProducerConsumer(t *testing.T, sched *Scheduler, produce func(int), consume func(int, func(interface{}))) {
	const perProducer = 8
	var got []int

	producers := make([]*Thread, 2)
	for i := range producers {
		producers[i] = sched.NewThread("producer")
		producers[i].Fork(func(interface{}) {
			produce(perProducer)
		}, nil)
	}
	consumer := sched.NewThread("consumer")
	consumer.Fork(func(interface{}) {
		consume(len(producers)*perProducer, func(item interface{}) {
			got = append(got, item.(int))
		})
	}, nil)

	for _, p := range producers {
		p.Join()
	}
	consumer.Join()

	if len(got) != len(producers)*perProducer {
		testutils.FatalHere(t, "consumed %d items, expected %d",
			len(got), len(producers)*perProducer)
	}
	// Each producer pushes 0..n-1 in order; the interleaving may vary
	// but per-producer order survives, so counts per value must match.
	counts := make(map[int]int)
	for _, v := range got {
		counts[v]++
	}
	for v := 0; v < perProducer; v++ {
		if counts[v] != len(producers) {
			testutils.FatalHere(t, "value %d consumed %d times, expected %d",
				v, counts[v], len(producers))
		}
	}
}

func TestProducerConsumerCondition(t *testing.T) {
	sched := newTestScheduler()
	pc := sched.NewPCCondition(4)
	runProducerConsumer(t, sched, pc.Produce, pc.Consume)
}

func TestProducerConsumerSemaphore(t *testing.T) {
	sched := newTestScheduler()
	pc := sched.NewPCSemaphore(4)
	runProducerConsumer(t, sched, pc.Produce, pc.Consume)
}

func TestBarrierRounds(t *testing.T) {
	sched := newTestScheduler()
	const n, rounds = 4, 3
	barrier := sched.NewBarrier("test", n)
	progress := make([]int, n)

	workers := make([]*Thread, n)
	for i := 0; i < n; i++ {
		i := i
		workers[i] = sched.NewThread("worker")
		workers[i].Fork(func(interface{}) {
			for r := 0; r < rounds; r++ {
				progress[i] = r
				barrier.AlignedBarrier()
				// After the barrier everyone must be in this round.
				for j := 0; j < n; j++ {
					if progress[j] < r {
						testutils.ErrorHere(t, "worker %d at round %d while %d leaves %d",
							j, progress[j], i, r)
					}
				}
			}
		}, nil)
	}
	for _, w := range workers {
		w.Join()
	}
}

func TestRWLockReadersShareWritersExclude(t *testing.T) {
	sched := newTestScheduler()
	rw := sched.NewRWLock("rw")
	readers, writers := 0, 0
	maxReaders := 0
	var violations int

	reader := func(interface{}) {
		rw.ReadAcquire()
		readers++
		if readers > maxReaders {
			maxReaders = readers
		}
		if writers > 0 {
			violations++
		}
		sched.CurrentThread().Yield()
		readers--
		rw.ReadRelease()
	}
	writer := func(interface{}) {
		rw.WriteAcquire()
		writers++
		if readers > 0 || writers > 1 {
			violations++
		}
		sched.CurrentThread().Yield()
		writers--
		rw.WriteRelease()
	}

	var all []*Thread
	for i := 0; i < 3; i++ {
		r := sched.NewThread("reader")
		r.Fork(reader, nil)
		all = append(all, r)
	}
	w := sched.NewThread("writer")
	w.Fork(writer, nil)
	all = append(all, w)
	for i := 0; i < 2; i++ {
		r := sched.NewThread("reader")
		r.Fork(reader, nil)
		all = append(all, r)
	}
	for _, th := range all {
		th.Join()
	}

	if violations != 0 {
		testutils.FatalHere(t, "%d reader/writer overlaps", violations)
	}
	if maxReaders < 2 {
		testutils.ErrorHere(t, "readers never overlapped, max %d", maxReaders)
	}
}

func TestWriterPrefRWLock(t *testing.T) {
	sched := newTestScheduler()
	rw := sched.NewWriterPrefRWLock("rw")
	var order []string

	r1 := sched.NewThread("r1")
	r1.Fork(func(interface{}) {
		rw.ReadAcquire()
		sched.CurrentThread().Yield() // hold while the others queue up
		sched.CurrentThread().Yield()
		order = append(order, "r1")
		rw.ReadRelease()
	}, nil)
	sched.CurrentThread().Yield() // r1 acquires

	w := sched.NewThread("w")
	w.Fork(func(interface{}) {
		rw.WriteAcquire()
		order = append(order, "w")
		rw.WriteRelease()
	}, nil)
	sched.CurrentThread().Yield() // w blocks behind r1

	r2 := sched.NewThread("r2")
	r2.Fork(func(interface{}) {
		rw.ReadAcquire()
		order = append(order, "r2")
		rw.ReadRelease()
	}, nil)

	r1.Join()
	w.Join()
	r2.Join()

	// The waiting writer goes before the late reader.
	if len(order) != 3 || order[0] != "r1" || order[1] != "w" || order[2] != "r2" {
		testutils.FatalHere(t, "got order %v, expected [r1 w r2]", order)
	}
}
