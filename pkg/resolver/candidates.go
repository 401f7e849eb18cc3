package resolver

import (
	"iter"
	"strings"
)

// CandidateMap accumulates candidate names per numeric file id.
//
// Names are relative to the unknown folder ("sound\x.ogg"). A later source
// appends to the list of an id; it never replaces earlier candidates. A
// name already listed for the id (case-insensitively) is ignored.
type CandidateMap struct {
	order []int32
	names map[int32][]string
	seen  map[int32]map[string]struct{}
}

func NewCandidateMap() *CandidateMap {
	return &CandidateMap{
		names: make(map[int32][]string),
		seen:  make(map[int32]map[string]struct{}),
	}
}

// Add appends name to the candidates of id and reports whether it was new.
func (m *CandidateMap) Add(id int32, name string) bool {
	key := strings.ToLower(name)
	seen, ok := m.seen[id]
	if !ok {
		seen = make(map[string]struct{})
		m.seen[id] = seen
		m.order = append(m.order, id)
	}
	if _, dup := seen[key]; dup {
		return false
	}
	seen[key] = struct{}{}
	m.names[id] = append(m.names[id], name)
	return true
}

// Get returns the candidates of id in insertion order.
func (m *CandidateMap) Get(id int32) []string {
	return m.names[id]
}

// Len returns the number of ids with at least one candidate.
func (m *CandidateMap) Len() int { return len(m.order) }

// Count returns the total number of candidates.
func (m *CandidateMap) Count() int {
	n := 0
	for _, names := range m.names {
		n += len(names)
	}
	return n
}

// All yields (id, name) pairs, ids in first-seen order.
func (m *CandidateMap) All() iter.Seq2[int32, string] {
	return func(yield func(int32, string) bool) {
		for _, id := range m.order {
			for _, name := range m.names[id] {
				if !yield(id, name) {
					return
				}
			}
		}
	}
}
