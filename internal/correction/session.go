package correction

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"inkcheck/api/internal/pmdoc"
	"inkcheck/api/internal/util"
)

// Conflict holds items an interactive edit invalidated until the user
// confirms the removal or cancels the edit.
type Conflict struct {
	ID      string         `json:"id"`
	Kind    pmdoc.EditKind `json:"kind"`
	Version uint64         `json:"version"`
	Items   []Item         `json:"items"`
}

// RunToken identifies one analysis run against the session.
type RunToken struct {
	ID         string
	Generation uint64
	// Text is the canonical text the run analyses.
	Text string
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Version    uint64          `json:"version"`
	Doc        *pmdoc.Node     `json:"doc"`
	Text       string          `json:"text"`
	Items      []Item          `json:"items"`
	Overlays   []Overlay       `json:"overlays"`
	ActiveID   string          `json:"activeId,omitempty"`
	Conflicts  []Conflict      `json:"conflicts"`
	Selection  pmdoc.Selection `json:"selection"`
	CanUndo    bool            `json:"canUndo"`
	CanRedo    bool            `json:"canRedo"`
	Generation uint64          `json:"generation"`
}

type Option func(*Session)

func WithHistoryLimit(n int) Option {
	return func(s *Session) { s.historyLimit = n }
}

// WithIDGenerator replaces util.NewID, mostly for tests.
func WithIDGenerator(fn func(prefix string) string) Option {
	return func(s *Session) { s.newID = fn }
}

// Session is the editing session of one document: the editor, the
// correction store and pending conflicts, guarded by one lock so analysis
// batches and user actions never interleave.
type Session struct {
	mu           sync.Mutex
	editor       *pmdoc.Editor
	state        State
	conflicts    []Conflict
	historyLimit int
	newID        func(prefix string) string

	changeFns   []func(Snapshot)
	conflictFns []func(Conflict)

	changed      bool
	newConflicts []Conflict
}

func NewSession(doc *pmdoc.Node, opts ...Option) *Session {
	s := &Session{state: NewState(), newID: util.NewID}
	for _, opt := range opts {
		opt(s)
	}
	s.editor = pmdoc.NewEditor(doc, s.historyLimit)
	s.state.overlays = Render(s.state, doc)
	return s
}

// OnChange registers fn to run after every committed transaction.
func (s *Session) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changeFns = append(s.changeFns, fn)
}

// OnConflict registers fn to run when an edit produces removal candidates.
func (s *Session) OnConflict(fn func(Conflict)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflictFns = append(s.conflictFns, fn)
}

// run executes fn under the lock and notifies observers once it is
// released, so observers may call back into the session.
func (s *Session) run(fn func() error) error {
	s.mu.Lock()
	err := fn()
	changed := s.changed
	conflicts := s.newConflicts
	s.changed, s.newConflicts = false, nil
	var snap Snapshot
	if changed {
		snap = s.snapshotLocked()
	}
	changeFns := append(([]func(Snapshot))(nil), s.changeFns...)
	conflictFns := append(([]func(Conflict))(nil), s.conflictFns...)
	s.mu.Unlock()

	for _, c := range conflicts {
		for _, fn := range conflictFns {
			fn(c)
		}
	}
	if changed {
		for _, fn := range changeFns {
			fn(snap)
		}
	}
	return err
}

func (s *Session) dispatchLocked(tr *pmdoc.Transaction) (*Conflict, error) {
	if err := s.editor.Apply(tr); err != nil {
		return nil, err
	}
	next, out := s.state.Apply(tr)
	s.state = next
	s.changed = true
	if len(out.Candidates) == 0 {
		return nil, nil
	}
	c := Conflict{
		ID:      s.newID("conflict"),
		Kind:    tr.Kind,
		Version: s.editor.Version(),
		Items:   out.Candidates,
	}
	s.conflicts = append(s.conflicts, c)
	s.newConflicts = append(s.newConflicts, c)
	return &c, nil
}

func (s *Session) dispatchAction(action Action) error {
	tr := s.editor.Begin()
	tr.Origin = pmdoc.OriginInternal
	tr.SetMeta(MetaKey, action)
	_, err := s.dispatchLocked(tr)
	return err
}

// Edit builds a user transaction with build and commits it. The returned
// conflict is non-nil when the edit invalidated items.
func (s *Session) Edit(build func(tr *pmdoc.Transaction) error) (*Conflict, error) {
	var conflict *Conflict
	err := s.run(func() error {
		tr := s.editor.Begin()
		if err := build(tr); err != nil {
			return err
		}
		c, err := s.dispatchLocked(tr)
		conflict = c
		return err
	})
	return conflict, err
}

func (s *Session) Undo() (*Conflict, error) {
	return s.history(func() (*pmdoc.Transaction, error) { return s.editor.UndoTransaction() })
}

func (s *Session) Redo() (*Conflict, error) {
	return s.history(func() (*pmdoc.Transaction, error) { return s.editor.RedoTransaction() })
}

func (s *Session) history(build func() (*pmdoc.Transaction, error)) (*Conflict, error) {
	var conflict *Conflict
	err := s.run(func() error {
		tr, err := build()
		if err != nil {
			return err
		}
		c, err := s.dispatchLocked(tr)
		conflict = c
		return err
	})
	return conflict, err
}

// Accept replaces the item's span with suggestion index and marks the item
// accepted in the same transaction.
func (s *Session) Accept(id string, index int) error {
	return s.run(func() error {
		it, ok := s.state.items[id]
		if !ok {
			return ErrNotFound
		}
		if it.Result != ResultNone {
			return ErrNotPending
		}
		if index < 0 || index >= len(it.Suggestions) || strings.TrimSpace(it.Suggestions[index].Text) == "" {
			return ErrNoSuggestion
		}
		replacement := it.Suggestions[index].Text

		tr := s.editor.Begin()
		tr.Origin = pmdoc.OriginInternal
		current := tr.Doc().TextBetween(it.From, it.To)
		if err := tr.ReplaceText(it.From, it.To, replacement); err != nil {
			return err
		}
		after := it.clone()
		after.To = it.From + utf8.RuneCountInString(replacement)
		after.Result = ResultAccepted
		after.Accepted = &AcceptedSnapshot{OriginalText: current, NewText: replacement}
		tr.SetMeta(MetaKey, Patch{Before: []Item{it.clone()}, After: []Item{after}, Generation: s.state.generation})
		_, err := s.dispatchLocked(tr)
		return err
	})
}

// Ignore marks a pending item ignored. Ignoring an ignored item does
// nothing.
func (s *Session) Ignore(id string) error {
	return s.run(func() error {
		it, ok := s.state.items[id]
		if !ok {
			return ErrNotFound
		}
		switch it.Result {
		case ResultIgnored:
			return nil
		case ResultAccepted:
			return ErrNotPending
		}
		after := it.clone()
		after.Result = ResultIgnored
		return s.dispatchAction(Patch{Before: []Item{it.clone()}, After: []Item{after}, Generation: s.state.generation})
	})
}

// Revert returns a decided item to pending. An accepted item gets its
// original text back when the span still holds the accepted text;
// otherwise only the decision is cleared.
func (s *Session) Revert(id string) error {
	return s.run(func() error {
		it, ok := s.state.items[id]
		if !ok {
			return ErrNotFound
		}
		after := it.clone()
		after.Result = ResultNone
		after.Accepted = nil
		patch := Patch{Before: []Item{it.clone()}, After: []Item{after}, Generation: s.state.generation}

		switch it.Result {
		case ResultNone:
			return ErrNotResolved
		case ResultIgnored:
			return s.dispatchAction(patch)
		}

		tr := s.editor.Begin()
		tr.Origin = pmdoc.OriginInternal
		if it.Accepted != nil && tr.Doc().TextBetween(it.From, it.To) == it.Accepted.NewText {
			if err := tr.ReplaceText(it.From, it.To, it.Accepted.OriginalText); err != nil {
				return err
			}
			after.To = it.From + utf8.RuneCountInString(it.Accepted.OriginalText)
			patch.After = []Item{after}
		}
		tr.SetMeta(MetaKey, patch)
		_, err := s.dispatchLocked(tr)
		return err
	})
}

// Add puts items into the store. Ids must not already be present; missing
// ids are generated.
func (s *Session) Add(items ...Item) error {
	return s.run(func() error {
		seen := make(map[string]bool, len(items))
		for i := range items {
			if items[i].ID == "" {
				items[i].ID = s.newID("corr")
			}
			if _, ok := s.state.items[items[i].ID]; ok || seen[items[i].ID] {
				return fmt.Errorf("%w: %s", ErrDuplicateID, items[i].ID)
			}
			seen[items[i].ID] = true
		}
		return s.dispatchAction(Add{Items: items})
	})
}

func (s *Session) Remove(id string) error {
	return s.run(func() error {
		if _, ok := s.state.items[id]; !ok {
			return ErrNotFound
		}
		return s.dispatchAction(Remove{ID: id})
	})
}

// Clear empties the store. Pending conflicts are dropped with it.
func (s *Session) Clear() error {
	return s.run(func() error {
		s.conflicts = nil
		return s.dispatchAction(Clear{})
	})
}

// SetActive highlights id; an empty id clears the highlight.
func (s *Session) SetActive(id string) error {
	return s.run(func() error {
		if id != "" {
			if _, ok := s.state.items[id]; !ok {
				return ErrNotFound
			}
		}
		return s.dispatchAction(SetActive{ID: id})
	})
}

func (s *Session) SetClickHandler(fn ClickHandler) error {
	return s.run(func() error {
		return s.dispatchAction(SetClickHandler{Handler: fn})
	})
}

// Click reports that the user activated the overlay of id. The registered
// click handler runs outside the session lock.
func (s *Session) Click(id string) error {
	s.mu.Lock()
	_, ok := s.state.items[id]
	handler := s.state.onClick
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if handler != nil {
		handler(id)
	}
	return nil
}

// ScrollTo moves the selection to the start of the item and returns that
// position.
func (s *Session) ScrollTo(id string) (int, error) {
	var pos int
	err := s.run(func() error {
		it, ok := s.state.items[id]
		if !ok {
			return ErrNotFound
		}
		size := s.editor.Doc().ContentSize()
		pos = it.From
		if pos < 0 {
			pos = 0
		}
		if pos > size {
			pos = size
		}
		tr := s.editor.Begin()
		tr.Origin = pmdoc.OriginInternal
		tr.SetSelection(pmdoc.Selection{Anchor: pos, Head: pos})
		_, err := s.dispatchLocked(tr)
		return err
	})
	return pos, err
}

// BeginRun clears the store for a new analysis run. Batches carrying an
// older token are refused by ApplyBatch.
func (s *Session) BeginRun() (RunToken, error) {
	var token RunToken
	err := s.run(func() error {
		s.conflicts = nil
		if err := s.dispatchAction(Clear{}); err != nil {
			return err
		}
		token = RunToken{
			ID:         s.newID("run"),
			Generation: s.state.generation,
			Text:       Project(s.editor.Doc()),
		}
		return nil
	})
	return token, err
}

// ApplyBatch converts drafts against the current document and adds them to
// the store. It returns ErrStaleRun when the store was cleared after the
// run began.
func (s *Session) ApplyBatch(token RunToken, drafts []Draft) ([]Item, error) {
	var added []Item
	err := s.run(func() error {
		if token.Generation != s.state.generation {
			return ErrStaleRun
		}
		if len(drafts) == 0 {
			return nil
		}
		doc := s.editor.Doc()
		tl := NewTranslator(doc)
		for _, d := range drafts {
			from := tl.ToPosition(d.Start)
			to := tl.ToPositionEnd(d.End)
			if to < from {
				to = from
			}
			added = append(added, Item{
				ID:             s.newID("corr"),
				From:           from,
				To:             to,
				SourceOffsets:  &[2]int{d.Start, d.End},
				MisspelledWord: d.Original,
				OriginalText:   doc.TextBetween(from, to),
				Suggestions:    append([]Suggestion(nil), d.Suggestions...),
				RunID:          token.ID,
			})
		}
		return s.dispatchAction(Add{Items: added})
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func (s *Session) Conflicts() []Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneConflicts(s.conflicts)
}

// Confirm accepts the removal of a conflict's items.
func (s *Session) Confirm(conflictID string) (Conflict, error) {
	var confirmed Conflict
	err := s.run(func() error {
		i := s.conflictIndex(conflictID)
		if i < 0 {
			return ErrConflictUnknown
		}
		confirmed = s.conflicts[i]
		s.conflicts = append(s.conflicts[:i:i], s.conflicts[i+1:]...)
		for _, it := range confirmed.Items {
			if it.ID == s.state.activeID {
				return s.dispatchAction(SetActive{})
			}
		}
		return nil
	})
	return confirmed, err
}

// Cancel reverses the edit that caused the conflict and puts its items
// back. It only works while that edit is still the latest document change.
func (s *Session) Cancel(conflictID string) error {
	return s.run(func() error {
		i := s.conflictIndex(conflictID)
		if i < 0 {
			return ErrConflictUnknown
		}
		c := s.conflicts[i]
		if c.Version != s.editor.Version() {
			return ErrStaleConflict
		}
		var (
			tr  *pmdoc.Transaction
			err error
		)
		if c.Kind == pmdoc.EditUndo {
			tr, err = s.editor.RedoTransaction()
		} else {
			tr, err = s.editor.UndoTransaction()
		}
		if err != nil {
			return err
		}
		tr.Origin = pmdoc.OriginInternal
		restore := Add{Items: c.Items}
		if existing, ok := tr.Meta(MetaKey).(Action); ok {
			tr.SetMeta(MetaKey, Actions{existing, restore})
		} else {
			tr.SetMeta(MetaKey, restore)
		}
		if _, err := s.dispatchLocked(tr); err != nil {
			return err
		}
		s.conflicts = append(s.conflicts[:i:i], s.conflicts[i+1:]...)
		return nil
	})
}

func (s *Session) conflictIndex(id string) int {
	for i, c := range s.conflicts {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	doc := s.editor.Doc()
	return Snapshot{
		Version:    s.editor.Version(),
		Doc:        doc,
		Text:       Project(doc),
		Items:      s.state.Items(),
		Overlays:   s.state.Overlays(),
		ActiveID:   s.state.activeID,
		Conflicts:  cloneConflicts(s.conflicts),
		Selection:  s.editor.Selection(),
		CanUndo:    s.editor.CanUndo(),
		CanRedo:    s.editor.CanRedo(),
		Generation: s.state.generation,
	}
}

func cloneConflicts(in []Conflict) []Conflict {
	out := make([]Conflict, len(in))
	for i, c := range in {
		out[i] = c
		out[i].Items = make([]Item, len(c.Items))
		for j, it := range c.Items {
			out[i].Items[j] = it.clone()
		}
	}
	return out
}
