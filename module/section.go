package module

import "iter"

// Section is an ordered collection keyed by index. Insertion order is the
// declaration order of the binary and therefore the index space referenced
// by instructions. Entries can be appended but never removed or reordered.
type Section[T any] struct {
	items []*T
}

// Len returns the number of entries.
func (s *Section[T]) Len() int {
	return len(s.items)
}

// At returns the entry at index i.
func (s *Section[T]) At(i uint32) (*T, bool) {
	if uint64(i) >= uint64(len(s.items)) {
		return nil, false
	}
	return s.items[i], true
}

// First returns the entry at index 0.
func (s *Section[T]) First() (*T, bool) {
	return s.At(0)
}

// Append adds v at the end of the index space and returns its index.
func (s *Section[T]) Append(v *T) uint32 {
	s.items = append(s.items, v)
	return uint32(len(s.items) - 1) //nolint:gosec // index spaces are bounded by the decoder
}

// All iterates entries in index order.
func (s *Section[T]) All() iter.Seq2[uint32, *T] {
	return func(yield func(uint32, *T) bool) {
		for i, v := range s.items {
			if !yield(uint32(i), v) { //nolint:gosec // see Append
				return
			}
		}
	}
}
