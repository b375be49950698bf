package engine

// arena is a fixed capacity table of entries addressed by correlation id.
// Slots are preallocated, free slots are kept in a stack of indices and the
// id to slot mapping is a map sized for the capacity, so no operation allocates
// after construction. Not safe for concurrent use.
type arena[T any] struct {
	slots []T
	free  []int
	index map[uint32]int
}

func newArena[T any](capacity int) *arena[T] {
	a := &arena[T]{
		slots: make([]T, capacity),
		free:  make([]int, capacity),
		index: make(map[uint32]int, capacity),
	}
	// lowest index on top of the stack
	for i := range a.free {
		a.free[i] = capacity - 1 - i
	}
	return a
}

// insert stores v under id
func (a *arena[T]) insert(id uint32, v T) error {
	if _, ok := a.index[id]; ok {
		return errDuplicateID
	}
	if len(a.free) == 0 {
		return ErrTableFull
	}

	slot := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]

	a.slots[slot] = v
	a.index[id] = slot
	return nil
}

// get returns a pointer to the entry of id. The pointer is only valid until the entry is removed.
func (a *arena[T]) get(id uint32) (*T, bool) {
	slot, ok := a.index[id]
	if !ok {
		return nil, false
	}
	return &a.slots[slot], true
}

// remove deletes the entry of id and returns it
func (a *arena[T]) remove(id uint32) (T, bool) {
	var zero T
	slot, ok := a.index[id]
	if !ok {
		return zero, false
	}

	v := a.slots[slot]
	a.slots[slot] = zero
	delete(a.index, id)
	a.free = append(a.free, slot)
	return v, true
}

// contains reports whether id has an entry
func (a *arena[T]) contains(id uint32) bool {
	_, ok := a.index[id]
	return ok
}

// removeAll empties the arena and returns all entries
func (a *arena[T]) removeAll() []T {
	out := make([]T, 0, len(a.index))
	for id := range a.index {
		v, _ := a.remove(id)
		out = append(out, v)
	}
	return out
}

func (a *arena[T]) len() int {
	return len(a.index)
}

func (a *arena[T]) capacity() int {
	return len(a.slots)
}
