// Package machine simulates the hardware the kernel runs on: registers,
// physical memory, the MMU (TLB, page tables, inverted page table), and
// the asynchronous sector disk. The kernel consumes this interface; the
// instruction interpreter itself is outside the kernel core, so user
// "execution" is driven by ReadMem/WriteMem plus the exception path.
package machine

import (
	"log"

	"nachos/interrupt"
)

const (
	PageSize = SectorSize // page == disk sector

	// Register file layout. R0..R31 are the MIPS general registers;
	// the rest are simulator registers.
	NumGPRegs    = 32
	StackReg     = 29
	RetAddrReg   = 31
	PCReg        = 34
	NextPCReg    = 35
	PrevPCReg    = 36
	LoadReg      = 37
	LoadValueReg = 38
	BadVAddrReg  = 39
	NumTotalRegs = 40

	// Syscall convention: number in R2, arguments in R4..R7, result
	// back in R2.
	SyscallNumReg = 2
	RetValReg     = 2
	Arg1Reg       = 4
	Arg2Reg       = 5
	Arg3Reg       = 6
	Arg4Reg       = 7
)

// ExceptionType classifies what the hardware raised.
type ExceptionType int

const (
	NoException ExceptionType = iota
	SyscallException
	PageFaultException
	ReadOnlyException
	BusErrorException
	AddressErrorException
	OverflowException
	IllegalInstrException
)

func (e ExceptionType) String() string {
	switch e {
	case NoException:
		return "no exception"
	case SyscallException:
		return "syscall"
	case PageFaultException:
		return "page fault"
	case ReadOnlyException:
		return "write to read-only page"
	case BusErrorException:
		return "bus error"
	case AddressErrorException:
		return "address error"
	case OverflowException:
		return "arithmetic overflow"
	case IllegalInstrException:
		return "illegal instruction"
	}
	return "unknown exception"
}

type Machine struct {
	intr *interrupt.Interrupt

	Registers  [NumTotalRegs]int
	MainMemory []byte

	NumPhysPages int
	frameInUse   []bool

	// TLB is nil when the machine translates straight through the page
	// table; otherwise every translation must hit the TLB and a miss
	// raises a page fault for the kernel to repair.
	TLB []TranslationEntry

	// Trans is the active translation structure: swapped per process
	// for PerProcess, machine-wide for Inverted.
	Trans Translation

	// CurrentTid tags references for inverted-page-table lookups; the
	// scheduler sets it when it restores a thread's MMU state.
	CurrentTid int

	lruClock uint32
}

func New(intr *interrupt.Interrupt, numPhysPages, tlbSize int) *Machine {
	m := &Machine{
		intr:         intr,
		MainMemory:   make([]byte, numPhysPages*PageSize),
		NumPhysPages: numPhysPages,
		frameInUse:   make([]bool, numPhysPages),
	}
	if tlbSize > 0 {
		m.TLB = make([]TranslationEntry, tlbSize)
	}
	return m
}

func (m *Machine) ReadRegister(num int) int {
	return m.Registers[num]
}

func (m *Machine) WriteRegister(num, value int) {
	m.Registers[num] = value
}

// AdvancePC moves the program counters past the instruction that
// trapped, so a handled syscall does not re-execute.
func (m *Machine) AdvancePC() {
	pc := m.Registers[PCReg]
	m.Registers[PrevPCReg] = pc
	m.Registers[PCReg] = m.Registers[NextPCReg]
	m.Registers[NextPCReg] = m.Registers[NextPCReg] + 4
}

// Touch bumps the recency clock on a translation entry.
func (m *Machine) Touch(e *TranslationEntry) {
	m.lruClock++
	e.LRURecord = m.lruClock
}

// Translate maps a virtual address to a physical one, charging one
// reference against the entry used. With a TLB installed, only the TLB
// is consulted and a miss surfaces as a page fault.
func (m *Machine) Translate(vaddr int, write bool) (int, ExceptionType) {
	if vaddr < 0 {
		return 0, AddressErrorException
	}
	vpn := vaddr / PageSize
	offset := vaddr % PageSize

	var entry *TranslationEntry
	if m.TLB != nil {
		for i := range m.TLB {
			if m.TLB[i].Valid && m.TLB[i].VirtualPage == vpn {
				entry = &m.TLB[i]
				break
			}
		}
	} else {
		switch tr := m.Trans.(type) {
		case *PerProcess:
			if vpn >= len(tr.Table) {
				return 0, AddressErrorException
			}
			entry = tr.Lookup(m.CurrentTid, vpn)
		case *Inverted:
			entry = tr.Lookup(m.CurrentTid, vpn)
		default:
			log.Panicf("machine: no translation structure installed")
		}
	}

	if entry == nil {
		m.Registers[BadVAddrReg] = vaddr
		return 0, PageFaultException
	}
	if entry.ReadOnly && write {
		m.Registers[BadVAddrReg] = vaddr
		return 0, ReadOnlyException
	}

	frame := entry.PhysicalPage
	if frame < 0 || frame >= m.NumPhysPages {
		return 0, BusErrorException
	}

	entry.Use = true
	if write {
		entry.Dirty = true
	}
	m.Touch(entry)

	return frame*PageSize + offset, NoException
}

// ReadMem reads size bytes (1, 2, or 4, little-endian) at vaddr.
func (m *Machine) ReadMem(vaddr, size int) (int, ExceptionType) {
	paddr, exc := m.Translate(vaddr, false)
	if exc != NoException {
		return 0, exc
	}
	value := 0
	for i := 0; i < size; i++ {
		value |= int(m.MainMemory[paddr+i]) << (8 * i)
	}
	m.intr.OneTick(interrupt.UserTick)
	return value, NoException
}

// WriteMem writes size bytes (1, 2, or 4, little-endian) at vaddr.
func (m *Machine) WriteMem(vaddr, size, value int) ExceptionType {
	paddr, exc := m.Translate(vaddr, true)
	if exc != NoException {
		return exc
	}
	for i := 0; i < size; i++ {
		m.MainMemory[paddr+i] = byte(value >> (8 * i))
	}
	m.intr.OneTick(interrupt.UserTick)
	return NoException
}

// AllocFrame grabs an unused physical frame, or -1 when memory is full.
func (m *Machine) AllocFrame() int {
	for i, used := range m.frameInUse {
		if !used {
			m.frameInUse[i] = true
			return i
		}
	}
	return -1
}

func (m *Machine) FreeFrame(frame int) {
	if frame < 0 || frame >= m.NumPhysPages || !m.frameInUse[frame] {
		log.Panicf("machine: freeing bad frame %d", frame)
	}
	m.frameInUse[frame] = false
}

// FreeFrames counts unused physical frames.
func (m *Machine) FreeFrames() int {
	n := 0
	for _, used := range m.frameInUse {
		if !used {
			n++
		}
	}
	return n
}

// Frame returns the byte slice backing one physical frame.
func (m *Machine) Frame(frame int) []byte {
	return m.MainMemory[frame*PageSize : (frame+1)*PageSize]
}

// FlushTLB invalidates every TLB entry, propagating dirty bits into the
// backing translation structure first.
func (m *Machine) FlushTLB() {
	if m.TLB == nil {
		return
	}
	for i := range m.TLB {
		if m.TLB[i].Valid && m.TLB[i].Dirty {
			if e := m.lookupBacking(m.TLB[i].Tid, m.TLB[i].VirtualPage); e != nil {
				e.Dirty = true
			}
		}
		m.TLB[i].Valid = false
	}
}

func (m *Machine) lookupBacking(tid, vpn int) *TranslationEntry {
	switch tr := m.Trans.(type) {
	case *PerProcess:
		return tr.Lookup(tid, vpn)
	case *Inverted:
		return tr.Lookup(tid, vpn)
	}
	return nil
}
