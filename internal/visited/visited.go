// Package visited implements a resettable visited-node set for graph traversal.
package visited

// Set tracks visited nodes using a bitset and a dirty list so that Reset
// costs O(visited) instead of O(capacity).
type Set struct {
	bits  []uint64
	dirty []uint32
}

// New creates a set sized for capacity nodes. It grows on demand.
func New(capacity int) *Set {
	return &Set{
		bits:  make([]uint64, (capacity+63)/64),
		dirty: make([]uint32, 0, 128),
	}
}

// Visit marks id as visited and reports whether it was newly marked.
func (s *Set) Visit(id uint32) bool {
	word := int(id >> 6)
	mask := uint64(1) << (id & 63)
	if word >= len(s.bits) {
		s.grow(word + 1)
	}
	if s.bits[word]&mask != 0 {
		return false
	}
	s.bits[word] |= mask
	s.dirty = append(s.dirty, id)
	return true
}

// Visited reports whether id has been visited since the last Reset.
func (s *Set) Visited(id uint32) bool {
	word := int(id >> 6)
	if word >= len(s.bits) {
		return false
	}
	return s.bits[word]&(uint64(1)<<(id&63)) != 0
}

// Reset clears every id visited in the current session.
func (s *Set) Reset() {
	for _, id := range s.dirty {
		s.bits[id>>6] &^= uint64(1) << (id & 63)
	}
	s.dirty = s.dirty[:0]
}

func (s *Set) grow(words int) {
	n := len(s.bits) * 2
	if n < words {
		n = words
	}
	bits := make([]uint64, n)
	copy(bits, s.bits)
	s.bits = bits
}
