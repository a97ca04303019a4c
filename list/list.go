// Package list implements the ordered lists used by the scheduler and the
// synchronization primitives. A List is FIFO by default; SortedInsert
// keeps elements ordered by an integer key with FIFO tie-breaking, which
// is what the ready queue and the pending-interrupt queue need.
package list

type element struct {
	next *element
	key  int
	item interface{}
}

type List struct {
	first *element
	last  *element
	size  int
}

func New() *List {
	return &List{}
}

// Append adds an item to the end of the list.
func (l *List) Append(item interface{}) {
	e := &element{item: item}
	if l.last == nil {
		l.first = e
		l.last = e
	} else {
		l.last.next = e
		l.last = e
	}
	l.size++
}

// Prepend adds an item to the front of the list.
func (l *List) Prepend(item interface{}) {
	e := &element{item: item, next: l.first}
	l.first = e
	if l.last == nil {
		l.last = e
	}
	l.size++
}

// SortedInsert places the item so that keys are non-decreasing from the
// front. Equal keys keep insertion order, so a priority queue built on
// this degrades to FIFO within one priority class.
func (l *List) SortedInsert(item interface{}, key int) {
	e := &element{item: item, key: key}
	if l.first == nil || key < l.first.key {
		e.next = l.first
		l.first = e
		if l.last == nil {
			l.last = e
		}
		l.size++
		return
	}

	prev := l.first
	for prev.next != nil && prev.next.key <= key {
		prev = prev.next
	}
	e.next = prev.next
	prev.next = e
	if e.next == nil {
		l.last = e
	}
	l.size++
}

// RemoveFront removes and returns the first item, or nil if the list is
// empty.
func (l *List) RemoveFront() interface{} {
	item, _ := l.RemoveFrontKeyed()
	return item
}

// RemoveFrontKeyed is RemoveFront plus the key the item was sorted under.
func (l *List) RemoveFrontKeyed() (interface{}, int) {
	if l.first == nil {
		return nil, 0
	}
	e := l.first
	l.first = e.next
	if l.first == nil {
		l.last = nil
	}
	l.size--
	return e.item, e.key
}

// FrontKey returns the sort key of the first element. The second return
// is false if the list is empty.
func (l *List) FrontKey() (int, bool) {
	if l.first == nil {
		return 0, false
	}
	return l.first.key, true
}

// Remove unlinks the first element equal to item and reports whether it
// was found.
func (l *List) Remove(item interface{}) bool {
	var prev *element
	for e := l.first; e != nil; e = e.next {
		if e.item == item {
			if prev == nil {
				l.first = e.next
			} else {
				prev.next = e.next
			}
			if l.last == e {
				l.last = prev
			}
			l.size--
			return true
		}
		prev = e
	}
	return false
}

// Apply calls fn on every item in list order.
func (l *List) Apply(fn func(item interface{})) {
	for e := l.first; e != nil; e = e.next {
		fn(e.item)
	}
}

func (l *List) IsEmpty() bool {
	return l.size == 0
}

func (l *List) Len() int {
	return l.size
}
