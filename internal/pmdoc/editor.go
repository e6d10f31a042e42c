package pmdoc

const defaultHistoryLimit = 100

// Invertible meta values are recorded in the undo history; undoing the
// transaction replays the inverted value, redoing replays the original.
type Invertible interface {
	Invert() any
}

type historyEntry struct {
	steps    []Step
	inverted []Step
	meta     map[string]any
}

// Editor owns the current document and its linear undo history.
type Editor struct {
	doc       *Node
	version   uint64
	selection Selection
	limit     int
	undo      []historyEntry
	redo      []historyEntry
}

// NewEditor starts editing doc. A non-positive historyLimit selects the
// default depth.
func NewEditor(doc *Node, historyLimit int) *Editor {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Editor{doc: doc, limit: historyLimit}
}

func (e *Editor) Doc() *Node           { return e.doc }
func (e *Editor) Version() uint64      { return e.version }
func (e *Editor) Selection() Selection { return e.selection }
func (e *Editor) CanUndo() bool        { return len(e.undo) > 0 }
func (e *Editor) CanRedo() bool        { return len(e.redo) > 0 }

// Begin starts a direct user transaction against the current document.
func (e *Editor) Begin() *Transaction {
	return newTransaction(e.doc)
}

// UndoTransaction builds the transaction reverting the newest history entry.
func (e *Editor) UndoTransaction() (*Transaction, error) {
	if len(e.undo) == 0 {
		return nil, ErrNothingToUndo
	}
	entry := e.undo[len(e.undo)-1]
	tr := newTransaction(e.doc)
	tr.Kind = EditUndo
	for _, s := range entry.inverted {
		if err := tr.Step(s); err != nil {
			return nil, err
		}
	}
	for key, value := range entry.meta {
		tr.SetMeta(key, value.(Invertible).Invert())
	}
	return tr, nil
}

// RedoTransaction builds the transaction reapplying the newest undone entry.
func (e *Editor) RedoTransaction() (*Transaction, error) {
	if len(e.redo) == 0 {
		return nil, ErrNothingToRedo
	}
	entry := e.redo[len(e.redo)-1]
	tr := newTransaction(e.doc)
	tr.Kind = EditRedo
	for _, s := range entry.steps {
		if err := tr.Step(s); err != nil {
			return nil, err
		}
	}
	for key, value := range entry.meta {
		tr.SetMeta(key, value)
	}
	return tr, nil
}

// Apply commits tr. The transaction must have been built against the
// editor's current document.
func (e *Editor) Apply(tr *Transaction) error {
	if tr.base != e.doc {
		return ErrStaleTransaction
	}
	if tr.DocChanged() {
		switch tr.Kind {
		case EditUndo:
			if len(e.undo) == 0 {
				return ErrNothingToUndo
			}
			entry := e.undo[len(e.undo)-1]
			e.undo = e.undo[:len(e.undo)-1]
			e.redo = append(e.redo, entry)
		case EditRedo:
			if len(e.redo) == 0 {
				return ErrNothingToRedo
			}
			entry := e.redo[len(e.redo)-1]
			e.redo = e.redo[:len(e.redo)-1]
			e.undo = append(e.undo, entry)
		default:
			entry, err := newHistoryEntry(tr)
			if err != nil {
				return err
			}
			e.undo = append(e.undo, entry)
			if len(e.undo) > e.limit {
				e.undo = e.undo[len(e.undo)-e.limit:]
			}
			e.redo = nil
		}
		e.doc = tr.doc
		e.version++
		e.selection = Selection{
			Anchor: tr.mapping.Map(e.selection.Anchor, 1),
			Head:   tr.mapping.Map(e.selection.Head, 1),
		}
	}
	if tr.selection != nil {
		size := e.doc.ContentSize()
		e.selection = Selection{
			Anchor: clamp(tr.selection.Anchor, 0, size),
			Head:   clamp(tr.selection.Head, 0, size),
		}
	}
	return nil
}

func newHistoryEntry(tr *Transaction) (historyEntry, error) {
	entry := historyEntry{steps: tr.Steps()}
	for i := len(tr.steps) - 1; i >= 0; i-- {
		inv, err := tr.steps[i].Invert(tr.docs[i])
		if err != nil {
			return historyEntry{}, err
		}
		entry.inverted = append(entry.inverted, inv)
	}
	for key, value := range tr.meta {
		if _, ok := value.(Invertible); !ok {
			continue
		}
		if entry.meta == nil {
			entry.meta = make(map[string]any)
		}
		entry.meta[key] = value
	}
	return entry, nil
}
