// Package segment implements a fixed-capacity segment-descriptor
// arena: each descriptor belongs to exactly one of the free pool or a
// per-SDU segment list at a time, addressed by integer index rather
// than pointer so the arena never allocates past its configured
// capacity.
package segment

import "errors"

// ErrArenaFull is returned by Alloc when no free descriptor remains.
var ErrArenaFull = errors.New("segment: arena exhausted")

// Invalid marks the absence of a sibling/next index.
const Invalid = -1

// Desc describes one transmitted or received byte range of an SDU.
// Next is the intrusive next-sibling index within the owning SDU's
// segment list while the descriptor is in use, and the next free slot
// while it sits in the arena free list, so a record belongs to exactly
// one list at a time without separate linked-list nodes.
type Desc struct {
	SN       uint32
	SOStart  uint16
	SOEnd    uint16 // exclusive; 0xFFFF means "end of SDU" is unresolved/unsegmented
	Data     []byte
	Next     int
	inUse    bool
}

// Arena is a fixed-capacity pool of Desc records, indexed by integer
// handle, with O(1) allocation and release via a free list threaded
// through the same Next field descriptors use for their owning SDU's
// sibling chain while in use.
type Arena struct {
	slots    []Desc
	freeHead int
}

// NewArena allocates an arena with room for exactly capacity segment
// descriptors.
func NewArena(capacity int) *Arena {
	a := &Arena{slots: make([]Desc, capacity), freeHead: 0}
	for i := range a.slots {
		if i == len(a.slots)-1 {
			a.slots[i].Next = Invalid
		} else {
			a.slots[i].Next = i + 1
		}
	}
	return a
}

// Cap returns the arena's fixed capacity.
func (a *Arena) Cap() int { return len(a.slots) }

// Alloc reserves a descriptor slot and returns its handle.
func (a *Arena) Alloc() (int, error) {
	if a.freeHead == Invalid {
		return -1, ErrArenaFull
	}
	h := a.freeHead
	a.freeHead = a.slots[h].Next
	a.slots[h] = Desc{Next: Invalid, inUse: true}
	return h, nil
}

// Free releases a descriptor back to the free list. It does not
// follow Next: callers that own a sibling chain must walk and free
// each handle explicitly (see List.Clear).
func (a *Arena) Free(h int) {
	a.slots[h] = Desc{Next: a.freeHead}
	a.freeHead = h
}

// Get returns a pointer to the descriptor at handle h for in-place
// mutation.
func (a *Arena) Get(h int) *Desc { return &a.slots[h] }

// InUse returns the number of descriptors currently allocated.
func (a *Arena) InUse() int {
	n := 0
	for i := range a.slots {
		if a.slots[i].inUse {
			n++
		}
	}
	return n
}

// List is a singly-linked chain of segment descriptors belonging to
// one SDU, threaded through Desc.Next and backed by a shared Arena.
type List struct {
	arena *Arena
	head  int
	tail  int
}

// NewList returns an empty segment list backed by arena.
func NewList(arena *Arena) *List {
	return &List{arena: arena, head: Invalid, tail: Invalid}
}

// Append allocates a new descriptor, sets its fields, and links it to
// the tail of the list. Returns the new descriptor's handle.
func (l *List) Append(sn uint32, soStart, soEnd uint16, data []byte) (int, error) {
	h, err := l.arena.Alloc()
	if err != nil {
		return -1, err
	}
	d := l.arena.Get(h)
	d.SN = sn
	d.SOStart = soStart
	d.SOEnd = soEnd
	d.Data = data
	d.Next = Invalid

	if l.head == Invalid {
		l.head = h
		l.tail = h
	} else {
		l.arena.Get(l.tail).Next = h
		l.tail = h
	}
	return h, nil
}

// Head returns the first descriptor's handle, or Invalid if empty.
func (l *List) Head() int { return l.head }

// Next returns the descriptor following h, or Invalid at the tail.
func (l *List) Next(h int) int { return l.arena.Get(h).Next }

// Find returns the handle of the first descriptor whose [SOStart,
// SOEnd) range intersects [so, so], or Invalid if none does.
func (l *List) Find(so uint16) int {
	for h := l.head; h != Invalid; h = l.arena.Get(h).Next {
		d := l.arena.Get(h)
		if so >= d.SOStart && (d.SOEnd == 0xFFFF || so < d.SOEnd) {
			return h
		}
	}
	return Invalid
}

// Each calls fn once per descriptor currently in the list, in order
// from head to tail.
func (l *List) Each(fn func(d Desc)) {
	for h := l.head; h != Invalid; h = l.arena.Get(h).Next {
		fn(*l.arena.Get(h))
	}
}

// First returns a copy of the head descriptor and true, or a zero
// Desc and false if the list is empty.
func (l *List) First() (Desc, bool) {
	if l.head == Invalid {
		return Desc{}, false
	}
	return *l.arena.Get(l.head), true
}

// Clear releases every descriptor in the list back to the arena.
func (l *List) Clear() {
	h := l.head
	for h != Invalid {
		next := l.arena.Get(h).Next
		l.arena.Free(h)
		h = next
	}
	l.head = Invalid
	l.tail = Invalid
}

// Empty reports whether the list currently holds no descriptors.
func (l *List) Empty() bool { return l.head == Invalid }
