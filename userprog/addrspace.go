package userprog

import (
	"fmt"
	"log"

	"nachos/filesys"
	"nachos/machine"
)

// StackPages is the room reserved above the executable image for the
// user stack.
const StackPages = 8

// AddrSpace is one user address space, demand paged out of a private
// swap file named vm_<tid> in the root directory. The executable image
// is copied into the swap file up front, so every page-in reads from
// one place. No page is resident until it faults in.
type AddrSpace struct {
	pager    *Pager
	mach     *machine.Machine
	tid      int
	execPath string
	numPages int

	// pageTable is this space's private table in per-process mode,
	// nil when the machine runs an inverted table.
	pageTable []machine.TranslationEntry

	swap     *filesys.OpenFile
	swapPath string

	userRegisters [machine.NumTotalRegs]int
}

// NewAddrSpace builds an address space for a thread out of a flat
// executable image in the file system and registers it with the pager.
func (p *Pager) NewAddrSpace(tid int, execPath string) (*AddrSpace, error) {
	exec, err := p.fs.Open(execPath)
	if err != nil {
		return nil, err
	}
	size := exec.Length()
	numPages := (size+machine.PageSize-1)/machine.PageSize + StackPages

	swapPath := fmt.Sprintf("/vm_%d", tid)
	if err := p.fs.Create(swapPath, numPages*machine.PageSize); err != nil {
		return nil, err
	}
	swap, err := p.fs.Open(swapPath)
	if err != nil {
		return nil, err
	}
	if size > 0 {
		image := make([]byte, size)
		exec.ReadAt(image, 0)
		swap.WriteAt(image, 0)
	}

	space := &AddrSpace{
		pager:    p,
		mach:     p.mach,
		tid:      tid,
		execPath: execPath,
		numPages: numPages,
		swap:     swap,
		swapPath: swapPath,
	}
	if p.mode == ModePerProcess {
		space.pageTable = make([]machine.TranslationEntry, numPages)
		for i := range space.pageTable {
			space.pageTable[i] = machine.TranslationEntry{VirtualPage: i, Tid: tid}
		}
	}
	p.spaces[tid] = space

	log.Printf("userprog: space for tid %d, %q: %d pages", tid, execPath, numPages)
	return space, nil
}

func (s *AddrSpace) Tid() int      { return s.tid }
func (s *AddrSpace) NumPages() int { return s.numPages }
func (s *AddrSpace) Exec() string  { return s.execPath }

// InitRegisters sets up the register file for entry at virtual address
// zero with the stack at the top of the space.
func (s *AddrSpace) InitRegisters() {
	for i := range s.mach.Registers {
		s.mach.Registers[i] = 0
	}
	s.mach.WriteRegister(machine.PCReg, 0)
	s.mach.WriteRegister(machine.NextPCReg, 4)
	s.mach.WriteRegister(machine.StackReg, s.numPages*machine.PageSize-16)
}

// SaveState parks this space on a context switch: the register file is
// copied out and TLB dirty bits are pushed into the backing table.
func (s *AddrSpace) SaveState() {
	copy(s.userRegisters[:], s.mach.Registers[:])
	s.mach.FlushTLB()
}

// RestoreState makes this space current: registers come back, the
// machine translates through this space's table (per-process mode),
// and the TLB starts cold.
func (s *AddrSpace) RestoreState() {
	copy(s.mach.Registers[:], s.userRegisters[:])
	if s.pageTable != nil {
		s.mach.Trans = &machine.PerProcess{Table: s.pageTable}
	}
	s.mach.CurrentTid = s.tid
	s.mach.FlushTLB()
}

// Destroy releases every frame the space holds, drops its TLB entries,
// unregisters it, and removes the swap file.
func (s *AddrSpace) Destroy() {
	if tlb := s.mach.TLB; tlb != nil {
		for i := range tlb {
			if tlb[i].Valid && tlb[i].Tid == s.tid {
				tlb[i].Valid = false
			}
		}
	}
	for _, e := range s.pager.candidates(s.tid, true) {
		s.mach.FreeFrame(e.PhysicalPage)
		e.Valid = false
	}
	delete(s.pager.spaces, s.tid)
	if err := s.pager.fs.Remove(s.swapPath); err != nil {
		log.Printf("userprog: removing %s: %v", s.swapPath, err)
	}
}
