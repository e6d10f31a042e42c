package correction

import "inkcheck/api/internal/pmdoc"

// MetaKey is the transaction meta key carrying an Action.
const MetaKey = "correction"

// ClickHandler is invoked with the id of an overlay the user activated.
type ClickHandler func(id string)

// Action is a state transition carried by a transaction.
type Action interface {
	isAction()
}

type Add struct{ Items []Item }

type Remove struct{ ID string }

type Clear struct{}

// SetActive selects the highlighted item; an empty ID clears it.
type SetActive struct{ ID string }

type SetClickHandler struct{ Handler ClickHandler }

// Patch replaces items atomically with a document edit. Items listed in
// Before but missing from After are dropped. Patches are recorded in the
// undo history; undoing applies the inverse patch. A patch only applies to
// the store generation it was made in, so history replayed after a clear
// leaves the new store alone.
type Patch struct {
	Before     []Item
	After      []Item
	Generation uint64
}

func (p Patch) Invert() any {
	return Patch{Before: p.After, After: p.Before, Generation: p.Generation}
}

// Actions applies several actions in order.
type Actions []Action

func (Add) isAction()             {}
func (Remove) isAction()          {}
func (Clear) isAction()           {}
func (SetActive) isAction()       {}
func (SetClickHandler) isAction() {}
func (Patch) isAction()           {}
func (Actions) isAction()         {}

// Outcome reports what the remapping of one transaction invalidated.
type Outcome struct {
	// Candidates were removed by an interactive edit and await
	// confirmation. They hold their positions from before the edit.
	Candidates []Item
	// Removed were dropped for good by an internal edit.
	Removed []Item
}

// State is the correction store. It is a value; Apply returns a new State
// and leaves the receiver untouched.
type State struct {
	items      map[string]Item
	order      []string
	activeID   string
	onClick    ClickHandler
	overlays   []Overlay
	generation uint64
}

func NewState() State {
	return State{items: map[string]Item{}}
}

func (s State) Len() int { return len(s.order) }

func (s State) Item(id string) (Item, bool) {
	it, ok := s.items[id]
	if !ok {
		return Item{}, false
	}
	return it.clone(), true
}

// Items returns the items in insertion order.
func (s State) Items() []Item {
	out := make([]Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].clone())
	}
	return out
}

func (s State) ActiveID() string { return s.activeID }

func (s State) ClickHandler() ClickHandler { return s.onClick }

func (s State) Overlays() []Overlay {
	return append([]Overlay(nil), s.overlays...)
}

// Generation changes every time the store is cleared.
func (s State) Generation() uint64 { return s.generation }

// Apply folds tr into the state. The document change is remapped first,
// then the transaction's own action is applied.
func (s State) Apply(tr *pmdoc.Transaction) (State, Outcome) {
	next := s.clone()
	action, _ := tr.Meta(MetaKey).(Action)

	var out Outcome
	if tr.DocChanged() {
		out = next.remap(tr, next.exemptIDs(action))
	}
	if action != nil {
		next.reduce(action)
	}
	next.overlays = Render(next, tr.Doc())
	return next, out
}

func (s State) clone() State {
	out := s
	out.items = make(map[string]Item, len(s.items))
	for id, it := range s.items {
		out.items[id] = it
	}
	out.order = append([]string(nil), s.order...)
	return out
}

func (s *State) reduce(action Action) {
	switch a := action.(type) {
	case Add:
		for _, it := range a.Items {
			s.put(it.clone())
		}
	case Remove:
		s.delete(a.ID)
	case Clear:
		s.items = map[string]Item{}
		s.order = nil
		s.activeID = ""
		s.generation++
	case SetActive:
		s.activeID = a.ID
	case SetClickHandler:
		s.onClick = a.Handler
	case Patch:
		if a.Generation != s.generation {
			return
		}
		keep := make(map[string]bool, len(a.After))
		for _, it := range a.After {
			keep[it.ID] = true
		}
		for _, it := range a.Before {
			if !keep[it.ID] {
				s.delete(it.ID)
			}
		}
		for _, it := range a.After {
			s.put(it.clone())
		}
	case Actions:
		for _, inner := range a {
			s.reduce(inner)
		}
	}
}

func (s *State) put(it Item) {
	if _, ok := s.items[it.ID]; !ok {
		s.order = append(s.order, it.ID)
	}
	s.items[it.ID] = it
}

func (s *State) delete(id string) {
	if _, ok := s.items[id]; !ok {
		return
	}
	delete(s.items, id)
	s.order = removeID(s.order, id)
	if s.activeID == id {
		s.activeID = ""
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (s State) exemptIDs(action Action) map[string]bool {
	exempt := map[string]bool{}
	var visit func(Action)
	visit = func(a Action) {
		switch v := a.(type) {
		case Patch:
			if v.Generation != s.generation {
				return
			}
			for _, it := range v.Before {
				exempt[it.ID] = true
			}
			for _, it := range v.After {
				exempt[it.ID] = true
			}
		case Actions:
			for _, inner := range v {
				visit(inner)
			}
		}
	}
	if action != nil {
		visit(action)
	}
	return exempt
}
