package interact

import "storyreel/internal/timeline"

// Selection is the transient set of selected clips, possibly of both kinds.
// Refs come back in the order they were selected.
type Selection struct {
	set   map[timeline.Ref]struct{}
	order []timeline.Ref
}

func NewSelection() *Selection {
	return &Selection{set: make(map[timeline.Ref]struct{})}
}

// Click replaces the selection with ref, or toggles ref when additive.
func (s *Selection) Click(ref timeline.Ref, additive bool) {
	if !additive {
		s.Clear()
		s.Add(ref)
		return
	}
	if s.Contains(ref) {
		s.Remove(ref)
		return
	}
	s.Add(ref)
}

func (s *Selection) Add(ref timeline.Ref) {
	if _, ok := s.set[ref]; ok {
		return
	}
	s.set[ref] = struct{}{}
	s.order = append(s.order, ref)
}

func (s *Selection) Remove(ref timeline.Ref) {
	if _, ok := s.set[ref]; !ok {
		return
	}
	delete(s.set, ref)
	for i, r := range s.order {
		if r == ref {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Selection) Clear() {
	s.set = make(map[timeline.Ref]struct{})
	s.order = nil
}

func (s *Selection) Contains(ref timeline.Ref) bool {
	_, ok := s.set[ref]
	return ok
}

func (s *Selection) Len() int { return len(s.order) }

func (s *Selection) Refs() []timeline.Ref {
	return append([]timeline.Ref(nil), s.order...)
}

// IDs returns the selected ids of one kind.
func (s *Selection) IDs(kind timeline.Kind) []string {
	var ids []string
	for _, r := range s.order {
		if r.Type == kind {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// Prune drops refs that no longer exist in m.
func (s *Selection) Prune(m *timeline.Model) {
	for _, r := range s.Refs() {
		if _, ok := m.Clip(r); !ok {
			s.Remove(r)
		}
	}
}
