package cell

import "sort"

// Dehydrated is one serialized cell value shipped alongside server-rendered
// markup so client cells match server output before hydration begins.
type Dehydrated struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// MarkSerializable marks cells for inclusion in Dehydrate output. Only
// explicitly marked cells are ever serialized.
func (s *Store) MarkSerializable(names ...string) {
	for _, name := range names {
		c := s.cell(name)
		c.mu.Lock()
		c.serializable = true
		c.mu.Unlock()
	}
}

// Dehydrate returns the current values of every serializable cell, ordered
// by key for deterministic output.
func (s *Store) Dehydrate() []Dehydrated {
	s.mu.RLock()
	names := make([]string, 0, len(s.cells))
	for name, c := range s.cells {
		c.mu.Lock()
		ok := c.serializable
		c.mu.Unlock()
		if ok {
			names = append(names, name)
		}
	}
	s.mu.RUnlock()

	sort.Strings(names)
	out := make([]Dehydrated, 0, len(names))
	for _, name := range names {
		c := s.cell(name)
		c.mu.Lock()
		out = append(out, Dehydrated{Key: name, Value: c.value})
		c.mu.Unlock()
	}
	return out
}

// Rehydrate applies a dehydrated value list, marking each cell serializable
// again. It must run before hydration so initial reads match server output.
// Values are applied without notifying subscribers; nothing is rendered yet.
func (s *Store) Rehydrate(pairs []Dehydrated) {
	for _, p := range pairs {
		c := s.cell(p.Key)
		c.mu.Lock()
		c.value = normalizeJSON(p.Value)
		c.serializable = true
		c.mu.Unlock()
	}
}

// normalizeJSON maps JSON-decoded numbers back to int where they are whole,
// since cells are commonly set from int-valued Go code.
func normalizeJSON(v any) any {
	if f, ok := v.(float64); ok {
		if i := int(f); float64(i) == f {
			return i
		}
	}
	return v
}
