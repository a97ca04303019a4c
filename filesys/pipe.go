package filesys

import "nachos/threads"

// MaxPipeLength bounds how many bytes a pipe can buffer.
const MaxPipeLength = 128

// PipeFile gives a disk file mailbox semantics: writers append until
// the pipe fills, a reader drains everything at once and resets it.
// The buffered byte count lives only in the handle, so a pipe has one
// PipeFile for its lifetime. A lock serializes writers and readers,
// since file I/O sleeps on the disk mid-operation.
type PipeFile struct {
	file   *OpenFile
	lock   *threads.Lock
	length int
}

func NewPipeFile(file *OpenFile) *PipeFile {
	return &PipeFile{
		file: file,
		lock: file.sd.Scheduler().NewLock("pipe"),
	}
}

func (p *PipeFile) Length() int { return p.length }

// Write appends data to the pipe. ErrPipeFull if it does not fit;
// nothing is written in that case.
func (p *PipeFile) Write(data []byte) error {
	p.lock.Acquire()
	defer p.lock.Release()

	if p.length+len(data) > MaxPipeLength {
		return ErrPipeFull
	}
	p.file.WriteAt(data, p.length)
	p.length += len(data)
	return nil
}

// Read drains the pipe into buf, returning how many bytes came out,
// and resets the pipe to empty.
func (p *PipeFile) Read(buf []byte) int {
	p.lock.Acquire()
	defer p.lock.Release()

	n := p.length
	if n > len(buf) {
		n = len(buf)
	}
	p.file.ReadAt(buf[:n], 0)
	p.length = 0
	p.file.Seek(0)
	return n
}
