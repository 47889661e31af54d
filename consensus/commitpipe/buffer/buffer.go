// Package buffer holds the ordered work items of the commit pipeline and the
// state machine each item moves through. The buffer is owned and mutated
// exclusively by the pipeline driver goroutine.
package buffer

import (
	"fmt"

	"github.com/arborchain/arbor-go/model/arbor"
)

// Buffer is an ordered container of pipeline items addressed by stable
// cursors. A cursor is the identifier of the item's last block; it remains
// valid until the item is popped. Items are strictly ordered by block
// sequence: only the tail grows, and only a contiguous prefix is popped.
//
// Items are mutated through the take/set discipline: Take removes the item
// from its slot for exclusive mutation and Set puts it back. Holding more
// than one taken item, or searching the buffer while holding one, is a
// programming error and panics.
type Buffer struct {
	slots map[arbor.Identifier]*slot
	head  arbor.Identifier
	tail  arbor.Identifier
	size  int
}

type slot struct {
	item  *Item
	taken bool
	prev  arbor.Identifier
	next  arbor.Identifier
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{slots: make(map[arbor.Identifier]*slot)}
}

// Len returns the number of items, including any taken one.
func (b *Buffer) Len() int {
	return b.size
}

// Head returns the cursor of the first item, or arbor.ZeroID when empty.
func (b *Buffer) Head() arbor.Identifier {
	return b.head
}

// Tail returns the cursor of the last item, or arbor.ZeroID when empty.
func (b *Buffer) Tail() arbor.Identifier {
	return b.tail
}

// PushBack appends the item and returns its cursor.
func (b *Buffer) PushBack(item *Item) arbor.Identifier {
	cursor := item.ID()
	if _, ok := b.slots[cursor]; ok {
		panic(fmt.Sprintf("buffer already contains item %v", cursor))
	}
	b.slots[cursor] = &slot{item: item, prev: b.tail}
	if b.tail != arbor.ZeroID {
		b.slots[b.tail].next = cursor
	} else {
		b.head = cursor
	}
	b.tail = cursor
	b.size++
	return cursor
}

// PopFront removes and returns the first item, or nil when the buffer is
// empty. Popping while the head item is taken panics.
func (b *Buffer) PopFront() *Item {
	if b.head == arbor.ZeroID {
		return nil
	}
	s := b.slots[b.head]
	if s.taken {
		panic(fmt.Sprintf("cannot pop taken item %v", b.head))
	}
	delete(b.slots, b.head)
	b.head = s.next
	if b.head != arbor.ZeroID {
		b.slots[b.head].prev = arbor.ZeroID
	} else {
		b.tail = arbor.ZeroID
	}
	b.size--
	return s.item
}

// Get returns the item at the cursor for read-only inspection, or nil if no
// such item exists. Inspecting a taken slot panics.
func (b *Buffer) Get(cursor arbor.Identifier) *Item {
	s, ok := b.slots[cursor]
	if !ok {
		return nil
	}
	if s.taken {
		panic(fmt.Sprintf("item %v is currently taken", cursor))
	}
	return s.item
}

// Take removes the item at the cursor for exclusive mutation. The caller
// must put it back with Set before any other buffer operation touches the
// slot.
func (b *Buffer) Take(cursor arbor.Identifier) *Item {
	s, ok := b.slots[cursor]
	if !ok {
		panic(fmt.Sprintf("cannot take unknown item %v", cursor))
	}
	if s.taken {
		panic(fmt.Sprintf("item %v is already taken", cursor))
	}
	s.taken = true
	item := s.item
	s.item = nil
	return item
}

// Set returns a previously taken item to its slot. The item must still be
// keyed by the same cursor.
func (b *Buffer) Set(cursor arbor.Identifier, item *Item) {
	s, ok := b.slots[cursor]
	if !ok {
		panic(fmt.Sprintf("cannot set unknown item %v", cursor))
	}
	if !s.taken {
		panic(fmt.Sprintf("item %v was never taken", cursor))
	}
	if item.ID() != cursor {
		panic(fmt.Sprintf("item key changed from %v to %v", cursor, item.ID()))
	}
	s.item = item
	s.taken = false
}

// FindFrom scans forward from the given cursor (or the head when zero) and
// returns the cursor of the first item satisfying the predicate, or
// arbor.ZeroID if none does.
func (b *Buffer) FindFrom(start arbor.Identifier, pred func(*Item) bool) arbor.Identifier {
	cursor := b.resolveStart(start)
	for cursor != arbor.ZeroID {
		s := b.slots[cursor]
		if s.taken {
			panic(fmt.Sprintf("cannot search past taken item %v", cursor))
		}
		if pred(s.item) {
			return cursor
		}
		cursor = s.next
	}
	return arbor.ZeroID
}

// FindByKey scans forward from the given cursor (or the head when zero) and
// returns the cursor of the item whose key, the identifier of its last
// block, equals blockID. Returns arbor.ZeroID when no item matches; interior
// blocks of a batch are not searchable.
func (b *Buffer) FindByKey(start arbor.Identifier, blockID arbor.Identifier) arbor.Identifier {
	return b.FindFrom(start, func(item *Item) bool {
		return item.ID() == blockID
	})
}

// ForEach visits all items front to back.
func (b *Buffer) ForEach(fn func(*Item)) {
	cursor := b.head
	for cursor != arbor.ZeroID {
		s := b.slots[cursor]
		if s.taken {
			panic(fmt.Sprintf("cannot visit taken item %v", cursor))
		}
		fn(s.item)
		cursor = s.next
	}
}

func (b *Buffer) resolveStart(start arbor.Identifier) arbor.Identifier {
	if start == arbor.ZeroID {
		return b.head
	}
	if _, ok := b.slots[start]; !ok {
		panic(fmt.Sprintf("stale cursor %v", start))
	}
	return start
}
