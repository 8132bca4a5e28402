package graph

// Bounded is an append-only collection with a hard capacity, enforced at
// every mutation site. It replaces scattered ad hoc length guards: a merge
// can never push the graph past its memory bound no matter what fan-out a
// relay supplies.
type Bounded[T any] struct {
	items []T
	cap   int
}

// NewBounded creates a collection capped at max items. A non-positive max
// means unbounded.
func NewBounded[T any](max int) *Bounded[T] {
	return &Bounded[T]{cap: max}
}

// Append adds an item if capacity allows and reports whether it was added.
// Overflow drops the item whole; nothing is ever truncated mid-object.
func (b *Bounded[T]) Append(v T) bool {
	if b.Full() {
		return false
	}
	b.items = append(b.items, v)
	return true
}

// Full reports whether the collection is at capacity.
func (b *Bounded[T]) Full() bool {
	return b.cap > 0 && len(b.items) >= b.cap
}

// Len returns the number of stored items.
func (b *Bounded[T]) Len() int {
	return len(b.items)
}

// At returns a pointer to the i-th item for in-place mutation.
func (b *Bounded[T]) At(i int) *T {
	return &b.items[i]
}

// Items returns the backing slice. Callers must not append to it.
func (b *Bounded[T]) Items() []T {
	return b.items
}
