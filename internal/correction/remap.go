package correction

import "inkcheck/api/internal/pmdoc"

// remap moves every item through the document change in tr. Items whose
// span an edit touches are taken out of the store: reported as candidates
// for interactive edits, dropped outright for internal ones. A candidate
// keeps the active highlight until its conflict is settled. Accepted items
// and items in exempt never become candidates.
func (s *State) remap(tr *pmdoc.Transaction, exempt map[string]bool) Outcome {
	steps := tr.Steps()
	mapping := tr.Mapping()
	var out Outcome

	order := s.order[:0:0]
	for _, id := range s.order {
		it := s.items[id]
		if !exempt[id] && it.Result != ResultAccepted && touched(it.From, it.To, steps, mapping) {
			delete(s.items, id)
			if tr.Origin == pmdoc.OriginInternal {
				out.Removed = append(out.Removed, it)
				if s.activeID == id {
					s.activeID = ""
				}
			} else {
				out.Candidates = append(out.Candidates, it)
			}
			continue
		}
		from := mapping.Map(it.From, 1)
		to := mapping.Map(it.To, 1)
		if to < from {
			to = from
		}
		if from != it.From || to != it.To {
			it.SourceOffsets = nil
		}
		it.From, it.To = from, to
		s.items[id] = it
		order = append(order, id)
	}
	s.order = order
	return out
}

// touched reports whether any step of the edit overlaps [from, to). The
// span is carried through the earlier steps so every comparison happens in
// the coordinates of the step being checked.
func touched(from, to int, steps []pmdoc.Step, mapping pmdoc.Mapping) bool {
	for i, step := range steps {
		before := mapping.Slice(0, i)
		if overlaps(step.From, step.To, before.Map(from, 1), before.Map(to, 1)) {
			return true
		}
	}
	return false
}

func overlaps(stepFrom, stepTo, from, to int) bool {
	return (stepFrom >= from && stepFrom < to) ||
		(stepTo > from && stepTo <= to) ||
		(stepFrom <= from && stepTo >= to)
}
