package filesys

import (
	"nachos/interrupt"
	"nachos/machine"
	"nachos/threads"
)

// SynchDisk layers synchronous sector I/O on the asynchronous disk: a
// request is posted, the caller sleeps on the completion semaphore, and
// the disk interrupt V's it. One mutex serializes all sector traffic,
// which is also what currently serializes unrelated file-system
// mutations against each other.
type SynchDisk struct {
	sched *threads.Scheduler
	disk  *machine.Disk

	semaphore *threads.Semaphore
	lock      *threads.Lock

	// Per-sector locks for fine-grained file-header synchronization.
	// hdrLocks guards a header's contents, countLock the open-count
	// bookkeeping on it; both are created on first use.
	hdrLocks  [machine.NumSectors]*threads.Lock
	countLock [machine.NumSectors]*threads.Lock
}

func NewSynchDisk(sched *threads.Scheduler, intr *interrupt.Interrupt) *SynchDisk {
	sd := &SynchDisk{
		sched:     sched,
		semaphore: sched.NewSemaphore("synch disk", 0),
		lock:      sched.NewLock("synch disk lock"),
	}
	sd.disk = machine.NewDisk(intr, sd.requestDone)
	return sd
}

// ReadSector reads a sector into buf, returning only once the data has
// arrived.
func (sd *SynchDisk) ReadSector(sector int, buf []byte) {
	sd.lock.Acquire() // only one disk I/O at a time
	sd.disk.ReadRequest(sector, buf)
	sd.semaphore.P() // wait for interrupt
	sd.lock.Release()
}

// WriteSector writes buf to a sector, returning only once the write has
// completed.
func (sd *SynchDisk) WriteSector(sector int, buf []byte) {
	sd.lock.Acquire() // only one disk I/O at a time
	sd.disk.WriteRequest(sector, buf)
	sd.semaphore.P() // wait for interrupt
	sd.lock.Release()
}

// requestDone is the disk interrupt handler.
func (sd *SynchDisk) requestDone() {
	sd.semaphore.V()
}

// HdrLock returns the lock guarding the file header at the given
// sector.
func (sd *SynchDisk) HdrLock(sector int) *threads.Lock {
	if sd.hdrLocks[sector] == nil {
		sd.hdrLocks[sector] = sd.sched.NewLock("hdr lock")
	}
	return sd.hdrLocks[sector]
}

// CountLock returns the lock guarding open-count updates for the file
// header at the given sector.
func (sd *SynchDisk) CountLock(sector int) *threads.Lock {
	if sd.countLock[sector] == nil {
		sd.countLock[sector] = sd.sched.NewLock("open count lock")
	}
	return sd.countLock[sector]
}

// Scheduler exposes the thread system for primitives layered on files,
// such as pipes.
func (sd *SynchDisk) Scheduler() *threads.Scheduler {
	return sd.sched
}
