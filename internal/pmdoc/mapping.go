package pmdoc

// StepMap records that OldSize positions starting at Start were replaced by
// NewSize positions.
type StepMap struct {
	Start   int `json:"start"`
	OldSize int `json:"oldSize"`
	NewSize int `json:"newSize"`
}

// Map moves pos through the replacement. assoc decides which side a position
// sticks to when content is inserted exactly at it: negative keeps it before
// the inserted content, positive moves it after.
func (m StepMap) Map(pos, assoc int) int {
	end := m.Start + m.OldSize
	switch {
	case pos < m.Start:
		return pos
	case pos > end:
		return pos + m.NewSize - m.OldSize
	}
	side := assoc
	if m.OldSize > 0 {
		switch pos {
		case m.Start:
			side = -1
		case end:
			side = 1
		}
	}
	if side < 0 {
		return m.Start
	}
	return m.Start + m.NewSize
}

// Mapping is an ordered list of step maps.
type Mapping []StepMap

func (m Mapping) Map(pos, assoc int) int {
	for _, sm := range m {
		pos = sm.Map(pos, assoc)
	}
	return pos
}

// Slice returns the maps for steps [from, to).
func (m Mapping) Slice(from, to int) Mapping {
	return m[from:to]
}
