package threads

// RWLock allows any number of readers or a single writer. The default
// discipline is reader-preferring: the first reader takes the write
// lock and the last one releases it, so a steady
// stream of readers starves writers. NewWriterPrefRWLock selects a
// writer-preferring discipline where arriving readers queue behind any
// waiting writer.
type RWLock struct {
	name      string
	mutex     *Lock
	writeLock *Lock
	readers   int

	writerPref     bool
	condReader     *Condition
	condWriter     *Condition
	waitingWriters int
	activeWriter   bool
}

func (s *Scheduler) NewRWLock(name string) *RWLock {
	return &RWLock{
		name:      name,
		mutex:     s.NewLock(name + " mutex"),
		writeLock: s.NewLock(name + " write"),
	}
}

func (s *Scheduler) NewWriterPrefRWLock(name string) *RWLock {
	return &RWLock{
		name:       name,
		writerPref: true,
		mutex:      s.NewLock(name + " mutex"),
		condReader: s.NewCondition(name + " readers"),
		condWriter: s.NewCondition(name + " writers"),
	}
}

func (rw *RWLock) ReadAcquire() {
	if rw.writerPref {
		rw.mutex.Acquire()
		for rw.activeWriter || rw.waitingWriters > 0 {
			rw.condReader.Wait(rw.mutex)
		}
		rw.readers++
		rw.mutex.Release()
		return
	}

	rw.mutex.Acquire()
	rw.readers++
	if rw.readers == 1 {
		rw.writeLock.Acquire()
	}
	rw.mutex.Release()
}

func (rw *RWLock) ReadRelease() {
	if rw.writerPref {
		rw.mutex.Acquire()
		rw.readers--
		if rw.readers == 0 {
			rw.condWriter.Signal(rw.mutex)
		}
		rw.mutex.Release()
		return
	}

	rw.mutex.Acquire()
	rw.readers--
	if rw.writeLock.IsHeldByCurrentThread() {
		// This thread was the first reader and owns the write lock on
		// behalf of all readers; it cannot give it up until the rest
		// have drained.
		for rw.readers != 0 {
			rw.mutex.Release()
			rw.mutex.sched.current.Yield()
			rw.mutex.Acquire()
		}
		rw.writeLock.Release()
	}
	rw.mutex.Release()
}

func (rw *RWLock) WriteAcquire() {
	if rw.writerPref {
		rw.mutex.Acquire()
		rw.waitingWriters++
		for rw.activeWriter || rw.readers > 0 {
			rw.condWriter.Wait(rw.mutex)
		}
		rw.waitingWriters--
		rw.activeWriter = true
		rw.mutex.Release()
		return
	}

	rw.writeLock.Acquire()
}

func (rw *RWLock) WriteRelease() {
	if rw.writerPref {
		rw.mutex.Acquire()
		rw.activeWriter = false
		if rw.waitingWriters > 0 {
			rw.condWriter.Signal(rw.mutex)
		} else {
			rw.condReader.Broadcast(rw.mutex)
		}
		rw.mutex.Release()
		return
	}

	rw.writeLock.Release()
}
