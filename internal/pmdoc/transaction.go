package pmdoc

// EditKind says how a transaction relates to the undo history.
type EditKind uint8

const (
	EditDirect EditKind = iota
	EditUndo
	EditRedo
)

func (k EditKind) String() string {
	switch k {
	case EditUndo:
		return "undo"
	case EditRedo:
		return "redo"
	default:
		return "direct"
	}
}

func (k EditKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Origin distinguishes edits a person made from edits the engine made on
// their behalf.
type Origin uint8

const (
	OriginUser Origin = iota
	OriginInternal
)

func (o Origin) String() string {
	if o == OriginInternal {
		return "internal"
	}
	return "user"
}

// Selection is a cursor or range in document positions.
type Selection struct {
	Anchor int `json:"anchor"`
	Head   int `json:"head"`
}

// Transaction accumulates steps against one document state. It is committed
// with Editor.Apply.
type Transaction struct {
	Kind   EditKind
	Origin Origin

	base      *Node
	doc       *Node
	steps     []Step
	docs      []*Node
	mapping   Mapping
	meta      map[string]any
	selection *Selection
}

func newTransaction(doc *Node) *Transaction {
	return &Transaction{base: doc, doc: doc}
}

// Step applies s to the transaction's current document.
func (tr *Transaction) Step(s Step) error {
	next, err := s.Apply(tr.doc)
	if err != nil {
		return err
	}
	tr.docs = append(tr.docs, tr.doc)
	tr.steps = append(tr.steps, s)
	tr.mapping = append(tr.mapping, s.Map())
	tr.doc = next
	return nil
}

func (tr *Transaction) Replace(from, to int, content ...*Node) error {
	return tr.Step(Step{From: from, To: to, Content: content})
}

// ReplaceText replaces [from, to) with plain text that inherits the marks of
// the text it follows.
func (tr *Transaction) ReplaceText(from, to int, text string) error {
	if text == "" {
		return tr.Replace(from, to)
	}
	return tr.Replace(from, to, &Node{Type: TypeText, Text: text, Marks: cloneMarks(tr.marksAt(from))})
}

func (tr *Transaction) InsertText(pos int, text string) error {
	return tr.ReplaceText(pos, pos, text)
}

func (tr *Transaction) Delete(from, to int) error {
	return tr.Replace(from, to)
}

func (tr *Transaction) marksAt(pos int) []Mark {
	rp, err := tr.doc.Resolve(pos)
	if err != nil {
		return nil
	}
	parent := rp.Parent()
	if parent.IsCode() {
		return nil
	}
	if rp.TextOffset > 0 {
		return parent.Content[rp.Index()].Marks
	}
	if i := rp.Index(); i > 0 && parent.Content[i-1].IsText() {
		return parent.Content[i-1].Marks
	}
	if i := rp.Index(); i < len(parent.Content) && parent.Content[i].IsText() {
		return parent.Content[i].Marks
	}
	return nil
}

func (tr *Transaction) SetMeta(key string, value any) *Transaction {
	if tr.meta == nil {
		tr.meta = make(map[string]any)
	}
	tr.meta[key] = value
	return tr
}

func (tr *Transaction) Meta(key string) any {
	return tr.meta[key]
}

func (tr *Transaction) SetSelection(sel Selection) *Transaction {
	tr.selection = &sel
	return tr
}

// Doc is the document after all steps so far.
func (tr *Transaction) Doc() *Node { return tr.doc }

// Before is the document the transaction started from.
func (tr *Transaction) Before() *Node { return tr.base }

func (tr *Transaction) Steps() []Step {
	out := make([]Step, len(tr.steps))
	copy(out, tr.steps)
	return out
}

// StepDoc is the document step i was applied to.
func (tr *Transaction) StepDoc(i int) *Node { return tr.docs[i] }

func (tr *Transaction) Mapping() Mapping {
	out := make(Mapping, len(tr.mapping))
	copy(out, tr.mapping)
	return out
}

func (tr *Transaction) DocChanged() bool { return len(tr.steps) > 0 }
