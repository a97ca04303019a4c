package userprog

import (
	"log"

	"nachos/filesys"
	"nachos/machine"
)

// TLBPolicy selects the TLB victim when a refill finds no free slot.
type TLBPolicy int

const (
	// TLBSimple indexes by virtual page number modulo the TLB size.
	TLBSimple TLBPolicy = iota
	// TLBFIFO rotates a hand over the slots.
	TLBFIFO
	// TLBLRU evicts the slot with the oldest reference record.
	TLBLRU
)

// ReplaceScope selects where page replacement may steal frames from.
type ReplaceScope int

const (
	// ReplaceLocal evicts only the faulting thread's own pages,
	// falling back to any page when it has none resident.
	ReplaceLocal ReplaceScope = iota
	// ReplaceGlobal evicts the least recently used page machine-wide.
	ReplaceGlobal
)

// TransMode selects the translation structure the machine runs with.
type TransMode int

const (
	// ModePerProcess gives each address space its own page table,
	// swapped in on context switch.
	ModePerProcess TransMode = iota
	// ModeInverted keeps one machine-wide table with an entry per
	// physical frame, tagged by thread id.
	ModeInverted
)

// Pager implements demand paging over the file system: every address
// space is backed by a swap file, pages come in on fault and go out
// only when dirty. It also owns TLB refill.
type Pager struct {
	mach   *machine.Machine
	fs     *filesys.FileSystem
	mode   TransMode
	policy TLBPolicy
	scope  ReplaceScope

	spaces    map[int]*AddrSpace
	tlbHand   int
	NumFaults int
}

func NewPager(mach *machine.Machine, fs *filesys.FileSystem, mode TransMode, policy TLBPolicy, scope ReplaceScope) *Pager {
	p := &Pager{
		mach:   mach,
		fs:     fs,
		mode:   mode,
		policy: policy,
		scope:  scope,
		spaces: make(map[int]*AddrSpace),
	}
	if mode == ModeInverted {
		mach.Trans = &machine.Inverted{
			Table: make([]machine.TranslationEntry, mach.NumPhysPages),
		}
	}
	return p
}

func (p *Pager) Space(tid int) *AddrSpace { return p.spaces[tid] }

// lookup finds the backing translation entry for (tid, vpn), bypassing
// the TLB.
func (p *Pager) lookup(tid, vpn int) *machine.TranslationEntry {
	switch tr := p.mach.Trans.(type) {
	case *machine.PerProcess:
		return tr.Lookup(tid, vpn)
	case *machine.Inverted:
		return tr.Lookup(tid, vpn)
	}
	return nil
}

// HandlePageFault repairs the fault at vaddr for the current thread: a
// TLB refill when the page is already resident, otherwise a page-in
// from the owner's swap file, evicting a victim if no frame is free.
func (p *Pager) HandlePageFault(vaddr int) {
	p.NumFaults++
	vpn := vaddr / machine.PageSize
	tid := p.mach.CurrentTid

	space := p.spaces[tid]
	if space == nil || vpn >= space.numPages {
		log.Panicf("pager: fault at %#x outside any space of tid %d", vaddr, tid)
	}

	if e := p.lookup(tid, vpn); e != nil && e.Valid {
		p.refillTLB(*e)
		return
	}

	frame := p.mach.AllocFrame()
	if frame == -1 {
		frame = p.evict(tid)
	}

	space.swap.ReadAt(p.mach.Frame(frame), vpn*machine.PageSize)

	entry := machine.TranslationEntry{
		VirtualPage:  vpn,
		PhysicalPage: frame,
		Valid:        true,
		Tid:          tid,
	}
	p.mach.Touch(&entry)
	p.install(entry)
	p.refillTLB(entry)
}

func (p *Pager) install(entry machine.TranslationEntry) {
	switch tr := p.mach.Trans.(type) {
	case *machine.PerProcess:
		tr.Table[entry.VirtualPage] = entry
	case *machine.Inverted:
		tr.Table[entry.PhysicalPage] = entry
	default:
		log.Panicf("pager: no translation structure installed")
	}
}

// candidates lists every resident page the replacement scope allows.
func (p *Pager) candidates(tid int, localOnly bool) []*machine.TranslationEntry {
	var out []*machine.TranslationEntry
	collect := func(table []machine.TranslationEntry) {
		for i := range table {
			if table[i].Valid && (!localOnly || table[i].Tid == tid) {
				out = append(out, &table[i])
			}
		}
	}
	switch tr := p.mach.Trans.(type) {
	case *machine.Inverted:
		collect(tr.Table)
	case *machine.PerProcess:
		for _, s := range p.spaces {
			if s.pageTable != nil {
				collect(s.pageTable)
			}
		}
	}
	return out
}

// evict frees the least recently used frame in scope and returns it.
// Dirty contents go back to the owner's swap file first.
func (p *Pager) evict(tid int) int {
	// TLB dirty bits must reach the backing entries before we judge
	// the victim clean.
	p.mach.FlushTLB()

	local := p.scope == ReplaceLocal
	cands := p.candidates(tid, local)
	if len(cands) == 0 && local {
		cands = p.candidates(tid, false)
	}
	if len(cands) == 0 {
		log.Panicf("pager: no frame to evict")
	}

	victim := cands[0]
	for _, e := range cands[1:] {
		if e.LRURecord < victim.LRURecord {
			victim = e
		}
	}

	frame := victim.PhysicalPage
	if victim.Dirty {
		owner := p.spaces[victim.Tid]
		if owner == nil {
			log.Panicf("pager: dirty page owned by unknown tid %d", victim.Tid)
		}
		owner.swap.WriteAt(p.mach.Frame(frame), victim.VirtualPage*machine.PageSize)
	}
	victim.Valid = false
	victim.Dirty = false
	return frame
}

// refillTLB installs entry in the TLB, evicting by the configured
// policy. No-op on a machine without a TLB.
func (p *Pager) refillTLB(entry machine.TranslationEntry) {
	tlb := p.mach.TLB
	if tlb == nil {
		return
	}

	slot := -1
	if p.policy == TLBSimple {
		// Direct-mapped: the slot is fixed by the page number, even
		// when other slots sit empty.
		slot = entry.VirtualPage % len(tlb)
	} else {
		for i := range tlb {
			if !tlb[i].Valid {
				slot = i
				break
			}
		}
	}
	if slot == -1 {
		switch p.policy {
		case TLBFIFO:
			slot = p.tlbHand
			p.tlbHand = (p.tlbHand + 1) % len(tlb)
		case TLBLRU:
			slot = 0
			for i := range tlb {
				if tlb[i].LRURecord < tlb[slot].LRURecord {
					slot = i
				}
			}
		}
	}
	if tlb[slot].Valid && tlb[slot].Dirty {
		if e := p.lookup(tlb[slot].Tid, tlb[slot].VirtualPage); e != nil {
			e.Dirty = true
		}
	}
	tlb[slot] = entry
	p.mach.Touch(&tlb[slot])
}
