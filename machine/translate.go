package machine

// TranslationEntry is one virtual-to-physical mapping, shared between
// the TLB, per-process page tables, and the inverted page table.
type TranslationEntry struct {
	VirtualPage  int
	PhysicalPage int
	Valid        bool
	Use          bool
	Dirty        bool
	ReadOnly     bool

	// LRURecord is bumped from a machine-wide counter on every
	// reference, giving a monotonic recency order for LRU eviction.
	LRURecord uint32

	// Tid tags inverted-page-table entries with their owning thread.
	Tid int
}

// Translation is the active address-translation structure: either a
// per-process table indexed by virtual page, or a machine-wide inverted
// table indexed by physical frame and keyed by (tid, vpn). Page-fault
// handling type-switches on the concrete form.
type Translation interface {
	isTranslation()
}

// PerProcess is a page table owned by one address space, indexed by
// virtual page number.
type PerProcess struct {
	Table []TranslationEntry
}

// Inverted is the machine-wide inverted page table, indexed by frame.
type Inverted struct {
	Table []TranslationEntry
}

func (*PerProcess) isTranslation() {}
func (*Inverted) isTranslation()   {}

// Lookup finds the entry mapping vpn for the given thread. The frame
// index is only meaningful for Inverted.
func (pt *PerProcess) Lookup(tid, vpn int) *TranslationEntry {
	if vpn < 0 || vpn >= len(pt.Table) {
		return nil
	}
	if !pt.Table[vpn].Valid {
		return nil
	}
	return &pt.Table[vpn]
}

func (ipt *Inverted) Lookup(tid, vpn int) *TranslationEntry {
	for i := range ipt.Table {
		e := &ipt.Table[i]
		if e.Valid && e.Tid == tid && e.VirtualPage == vpn {
			return e
		}
	}
	return nil
}
