package machine

import (
	"bytes"
	"testing"

	"nachos/interrupt"
	"nachos/testutils"
)

func TestReadWriteMem(t *testing.T) {
	intr := interrupt.New()
	m := New(intr, 4, 0)
	m.Trans = &PerProcess{Table: []TranslationEntry{
		{VirtualPage: 0, PhysicalPage: 2, Valid: true},
		{VirtualPage: 1, PhysicalPage: 0, Valid: true},
	}}

	if exc := m.WriteMem(5, 4, 0x12345678); exc != NoException {
		testutils.FatalHere(t, "write raised %v", exc)
	}
	v, exc := m.ReadMem(5, 4)
	if exc != NoException {
		testutils.FatalHere(t, "read raised %v", exc)
	}
	if v != 0x12345678 {
		testutils.FatalHere(t, "read %#x, expected 0x12345678", v)
	}
	// Little-endian byte order in main memory.
	if m.MainMemory[2*PageSize+5] != 0x78 {
		testutils.ErrorHere(t, "low byte not first in memory")
	}
}

func TestTranslateFaults(t *testing.T) {
	intr := interrupt.New()
	m := New(intr, 4, 0)
	m.Trans = &PerProcess{Table: []TranslationEntry{
		{VirtualPage: 0, PhysicalPage: 1, Valid: true, ReadOnly: true},
		{VirtualPage: 1},
	}}

	if _, exc := m.Translate(PageSize, false); exc != PageFaultException {
		testutils.ErrorHere(t, "invalid page raised %v, expected page fault", exc)
	}
	if m.ReadRegister(BadVAddrReg) != PageSize {
		testutils.ErrorHere(t, "bad vaddr register %d, expected %d",
			m.ReadRegister(BadVAddrReg), PageSize)
	}
	if _, exc := m.Translate(0, true); exc != ReadOnlyException {
		testutils.ErrorHere(t, "read-only write raised %v", exc)
	}
	if _, exc := m.Translate(8*PageSize, false); exc != AddressErrorException {
		testutils.ErrorHere(t, "out-of-range access raised %v", exc)
	}
}

func TestTranslateSetsUseAndDirty(t *testing.T) {
	intr := interrupt.New()
	m := New(intr, 4, 0)
	table := []TranslationEntry{{VirtualPage: 0, PhysicalPage: 0, Valid: true}}
	m.Trans = &PerProcess{Table: table}

	m.Translate(0, false)
	if !table[0].Use || table[0].Dirty {
		testutils.ErrorHere(t, "after read: use=%v dirty=%v", table[0].Use, table[0].Dirty)
	}
	m.Translate(0, true)
	if !table[0].Dirty {
		testutils.ErrorHere(t, "write did not set dirty")
	}
	if table[0].LRURecord == 0 {
		testutils.ErrorHere(t, "reference did not bump the recency clock")
	}
}

func TestTLBMissRaisesPageFault(t *testing.T) {
	intr := interrupt.New()
	m := New(intr, 4, 2)
	m.Trans = &PerProcess{Table: []TranslationEntry{
		{VirtualPage: 0, PhysicalPage: 1, Valid: true},
	}}

	// Valid in the page table but absent from the TLB still faults.
	if _, exc := m.Translate(0, false); exc != PageFaultException {
		testutils.FatalHere(t, "TLB miss raised %v, expected page fault", exc)
	}

	m.TLB[0] = TranslationEntry{VirtualPage: 0, PhysicalPage: 1, Valid: true}
	if _, exc := m.Translate(0, false); exc != NoException {
		testutils.FatalHere(t, "TLB hit raised %v", exc)
	}
}

func TestFlushTLBPropagatesDirty(t *testing.T) {
	intr := interrupt.New()
	m := New(intr, 4, 2)
	table := []TranslationEntry{{VirtualPage: 0, PhysicalPage: 1, Valid: true}}
	m.Trans = &PerProcess{Table: table}
	m.CurrentTid = 7
	table[0].Tid = 7

	m.TLB[0] = table[0]
	m.Translate(0, true) // dirties only the TLB copy
	if table[0].Dirty {
		testutils.FatalHere(t, "write through TLB dirtied the page table directly")
	}
	m.FlushTLB()
	if !table[0].Dirty {
		testutils.FatalHere(t, "flush lost the dirty bit")
	}
	if m.TLB[0].Valid {
		testutils.ErrorHere(t, "flush left a valid TLB entry")
	}
}

func TestInvertedLookup(t *testing.T) {
	ipt := &Inverted{Table: []TranslationEntry{
		{VirtualPage: 3, PhysicalPage: 0, Valid: true, Tid: 1},
		{VirtualPage: 3, PhysicalPage: 1, Valid: true, Tid: 2},
	}}
	e := ipt.Lookup(2, 3)
	if e == nil || e.PhysicalPage != 1 {
		testutils.FatalHere(t, "lookup found %+v, expected tid 2's frame", e)
	}
	if ipt.Lookup(3, 3) != nil {
		testutils.FatalHere(t, "lookup matched a foreign tid")
	}
}

func TestFrameAllocator(t *testing.T) {
	intr := interrupt.New()
	m := New(intr, 2, 0)
	a := m.AllocFrame()
	b := m.AllocFrame()
	if a == -1 || b == -1 || a == b {
		testutils.FatalHere(t, "allocated frames %d, %d", a, b)
	}
	if m.AllocFrame() != -1 {
		testutils.FatalHere(t, "allocated a third frame from a 2-frame machine")
	}
	m.FreeFrame(a)
	if m.AllocFrame() != a {
		testutils.FatalHere(t, "freed frame not reallocated")
	}
}

func TestAdvancePC(t *testing.T) {
	intr := interrupt.New()
	m := New(intr, 1, 0)
	m.WriteRegister(PCReg, 100)
	m.WriteRegister(NextPCReg, 104)
	m.AdvancePC()
	if m.ReadRegister(PCReg) != 104 || m.ReadRegister(NextPCReg) != 108 {
		testutils.FatalHere(t, "pc=%d next=%d after advance",
			m.ReadRegister(PCReg), m.ReadRegister(NextPCReg))
	}
	if m.ReadRegister(PrevPCReg) != 100 {
		testutils.ErrorHere(t, "prev pc %d, expected 100", m.ReadRegister(PrevPCReg))
	}
}

func TestDiskCompletionIsDelayed(t *testing.T) {
	intr := interrupt.New()
	done := 0
	d := NewDisk(intr, func() { done++ })

	out := bytes.Repeat([]byte{0xab}, SectorSize)
	d.WriteRequest(9, out)
	if done != 0 {
		testutils.FatalHere(t, "completion fired before the disk delay")
	}
	intr.SetLevel(interrupt.IntOff)
	intr.Idle()
	intr.SetLevel(interrupt.IntOn)
	if done != 1 {
		testutils.FatalHere(t, "completion count %d after idle, expected 1", done)
	}

	in := make([]byte, SectorSize)
	d.ReadRequest(9, in)
	intr.SetLevel(interrupt.IntOff)
	intr.Idle()
	intr.SetLevel(interrupt.IntOn)
	if !bytes.Equal(in, out) {
		testutils.FatalHere(t, "sector contents did not survive the roundtrip")
	}
}
