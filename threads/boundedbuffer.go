package threads

// BoundedBuffer is a fixed-capacity FIFO of items, with no internal
// synchronization; the producer/consumer drivers below wrap it two
// different ways.
type BoundedBuffer struct {
	items []interface{}
	size  int
}

func NewBoundedBuffer(size int) *BoundedBuffer {
	return &BoundedBuffer{size: size}
}

func (b *BoundedBuffer) Append(item interface{}) {
	b.items = append(b.items, item)
}

func (b *BoundedBuffer) Remove() interface{} {
	if len(b.items) == 0 {
		return nil
	}
	item := b.items[0]
	b.items = b.items[1:]
	return item
}

func (b *BoundedBuffer) IsFull() bool  { return len(b.items) == b.size }
func (b *BoundedBuffer) IsEmpty() bool { return len(b.items) == 0 }

func (b *BoundedBuffer) Apply(fn func(item interface{})) {
	for _, item := range b.items {
		fn(item)
	}
}

// PCCondition is the producer/consumer realization built on one lock
// and two condition variables.
type PCCondition struct {
	buffer  *BoundedBuffer
	lock    *Lock
	condPro *Condition
	condCon *Condition
}

func (s *Scheduler) NewPCCondition(size int) *PCCondition {
	return &PCCondition{
		buffer:  NewBoundedBuffer(size),
		lock:    s.NewLock("pc cond lock"),
		condPro: s.NewCondition("pro cond"),
		condCon: s.NewCondition("con cond"),
	}
}

// Produce pushes the values 0..count-1 in order.
func (pc *PCCondition) Produce(count int) {
	for i := 0; i < count; i++ {
		pc.lock.Acquire()
		for pc.buffer.IsFull() {
			pc.condPro.Wait(pc.lock)
		}
		pc.buffer.Append(i)
		pc.condCon.Signal(pc.lock)
		pc.lock.Release()
	}
}

// Consume pops count values and hands each to fn in arrival order.
func (pc *PCCondition) Consume(count int, fn func(item interface{})) {
	for i := 0; i < count; i++ {
		pc.lock.Acquire()
		for pc.buffer.IsEmpty() {
			pc.condCon.Wait(pc.lock)
		}
		fn(pc.buffer.Remove())
		pc.condPro.Signal(pc.lock)
		pc.lock.Release()
	}
}

// PCSemaphore is the same contract built on three semaphores: a mutex,
// a count of empty slots, and a count of full slots.
type PCSemaphore struct {
	buffer *BoundedBuffer
	mutex  *Semaphore
	empty  *Semaphore
	full   *Semaphore
}

func (s *Scheduler) NewPCSemaphore(size int) *PCSemaphore {
	return &PCSemaphore{
		buffer: NewBoundedBuffer(size),
		mutex:  s.NewSemaphore("pc mutex", 1),
		empty:  s.NewSemaphore("pc empty", size),
		full:   s.NewSemaphore("pc full", 0),
	}
}

func (pc *PCSemaphore) Produce(count int) {
	for i := 0; i < count; i++ {
		pc.empty.P()
		pc.mutex.P()
		pc.buffer.Append(i)
		pc.mutex.V()
		pc.full.V()
	}
}

func (pc *PCSemaphore) Consume(count int, fn func(item interface{})) {
	for i := 0; i < count; i++ {
		pc.full.P()
		pc.mutex.P()
		fn(pc.buffer.Remove())
		pc.mutex.V()
		pc.empty.V()
	}
}
