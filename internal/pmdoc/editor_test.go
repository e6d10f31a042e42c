package pmdoc

import (
	"errors"
	"testing"
)

func TestStepMapMap(t *testing.T) {
	replace := StepMap{Start: 5, OldSize: 3, NewSize: 1}
	insert := StepMap{Start: 5, OldSize: 0, NewSize: 2}

	tests := []struct {
		name  string
		m     StepMap
		pos   int
		assoc int
		want  int
	}{
		{name: "before", m: replace, pos: 2, assoc: 1, want: 2},
		{name: "at start", m: replace, pos: 5, assoc: 1, want: 5},
		{name: "inside right", m: replace, pos: 6, assoc: 1, want: 6},
		{name: "inside left", m: replace, pos: 6, assoc: -1, want: 5},
		{name: "at end", m: replace, pos: 8, assoc: -1, want: 6},
		{name: "after", m: replace, pos: 10, assoc: 1, want: 8},
		{name: "insert left", m: insert, pos: 5, assoc: -1, want: 5},
		{name: "insert right", m: insert, pos: 5, assoc: 1, want: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.Map(tt.pos, tt.assoc); got != tt.want {
				t.Fatalf("Map(%d, %d) = %d, want %d", tt.pos, tt.assoc, got, tt.want)
			}
		})
	}
}

type counterMeta int

func (c counterMeta) Invert() any { return -c }

func TestEditorUndoRedo(t *testing.T) {
	doc := Doc(Paragraph(Text("I has a cat.")))
	ed := NewEditor(doc, 0)

	tr := ed.Begin()
	if err := tr.ReplaceText(3, 6, "have"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	tr.SetMeta("counter", counterMeta(1))
	tr.SetMeta("plain", "not recorded")
	if err := ed.Apply(tr); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := ed.Doc().TextContent(); got != "I have a cat." {
		t.Fatalf("text = %q", got)
	}
	if ed.Version() != 1 || !ed.CanUndo() || ed.CanRedo() {
		t.Fatalf("unexpected history state: version=%d undo=%v redo=%v", ed.Version(), ed.CanUndo(), ed.CanRedo())
	}

	undo, err := ed.UndoTransaction()
	if err != nil {
		t.Fatalf("undo transaction: %v", err)
	}
	if undo.Kind != EditUndo {
		t.Fatalf("kind = %s", undo.Kind)
	}
	if got, _ := undo.Meta("counter").(counterMeta); got != -1 {
		t.Fatalf("undo meta = %v, want inverted", undo.Meta("counter"))
	}
	if undo.Meta("plain") != nil {
		t.Fatalf("non-invertible meta leaked into history")
	}
	if err := ed.Apply(undo); err != nil {
		t.Fatalf("apply undo: %v", err)
	}
	if got := ed.Doc().TextContent(); got != "I has a cat." {
		t.Fatalf("after undo text = %q", got)
	}

	redo, err := ed.RedoTransaction()
	if err != nil {
		t.Fatalf("redo transaction: %v", err)
	}
	if got, _ := redo.Meta("counter").(counterMeta); got != 1 {
		t.Fatalf("redo meta = %v", redo.Meta("counter"))
	}
	if err := ed.Apply(redo); err != nil {
		t.Fatalf("apply redo: %v", err)
	}
	if got := ed.Doc().TextContent(); got != "I have a cat." {
		t.Fatalf("after redo text = %q", got)
	}
	if ed.Version() != 3 {
		t.Fatalf("version = %d, want 3", ed.Version())
	}
}

func TestEditorRejectsStaleTransaction(t *testing.T) {
	ed := NewEditor(Doc(Paragraph(Text("abc"))), 0)
	stale := ed.Begin()
	_ = stale.InsertText(1, "x")

	tr := ed.Begin()
	_ = tr.InsertText(1, "y")
	if err := ed.Apply(tr); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := ed.Apply(stale); !errors.Is(err, ErrStaleTransaction) {
		t.Fatalf("expected stale transaction error, got %v", err)
	}
}

func TestEditorHistoryLimitAndRedoReset(t *testing.T) {
	ed := NewEditor(Doc(Paragraph()), 2)
	for _, s := range []string{"a", "b", "c"} {
		tr := ed.Begin()
		_ = tr.InsertText(1, s)
		if err := ed.Apply(tr); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		tr, err := ed.UndoTransaction()
		if err != nil {
			t.Fatalf("undo %d: %v", i, err)
		}
		if err := ed.Apply(tr); err != nil {
			t.Fatalf("apply undo: %v", err)
		}
	}
	if _, err := ed.UndoTransaction(); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("expected history to be capped, got %v", err)
	}
	if got := ed.Doc().TextContent(); got != "a" {
		t.Fatalf("text = %q, want a", got)
	}

	tr := ed.Begin()
	_ = tr.InsertText(1, "z")
	if err := ed.Apply(tr); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if ed.CanRedo() {
		t.Fatalf("a direct edit should clear the redo stack")
	}
}

func TestReplaceTextInheritsMarks(t *testing.T) {
	bold := Mark{Type: "bold"}
	ed := NewEditor(Doc(Paragraph(Text("plain "), Text("strong", bold))), 0)
	tr := ed.Begin()
	// "strong" spans 7..13
	if err := tr.ReplaceText(8, 13, "ONG"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	para := tr.Doc().Content[0]
	if len(para.Content) != 2 || para.Content[1].Text != "sONG" {
		t.Fatalf("unexpected content %s", mustJSON(t, tr.Doc()))
	}
}

func TestSelectionFollowsEdits(t *testing.T) {
	ed := NewEditor(Doc(Paragraph(Text("abc"))), 0)
	tr := ed.Begin().SetSelection(Selection{Anchor: 3, Head: 3})
	if err := ed.Apply(tr); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if ed.Version() != 0 {
		t.Fatalf("selection-only transaction bumped the version")
	}

	tr = ed.Begin()
	_ = tr.InsertText(1, "xx")
	if err := ed.Apply(tr); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if sel := ed.Selection(); sel.Head != 5 {
		t.Fatalf("selection head = %d, want 5", sel.Head)
	}
}

func TestFromMarkdown(t *testing.T) {
	src := "# Title\n\nI has a *cat*.\n\n```go\nx := 1\n```\n\n- one\n- two\n"
	doc := FromMarkdown([]byte(src))

	wantTypes := []string{TypeHeading, TypeParagraph, TypeCodeBlock, TypeBulletList}
	if len(doc.Content) != len(wantTypes) {
		t.Fatalf("blocks = %s", mustJSON(t, doc))
	}
	for i, want := range wantTypes {
		if doc.Content[i].Type != want {
			t.Fatalf("block %d = %s, want %s", i, doc.Content[i].Type, want)
		}
	}
	if got := doc.Content[1].TextContent(); got != "I has a cat." {
		t.Fatalf("paragraph text = %q", got)
	}
	if got := doc.Content[2].TextContent(); got != "x := 1" {
		t.Fatalf("code = %q", got)
	}
	if lang := doc.Content[2].Attrs["language"]; lang != "go" {
		t.Fatalf("language = %v", lang)
	}
	if err := Validate(doc); err != nil {
		t.Fatalf("markdown produced an invalid document: %v", err)
	}
}

func TestParseJSON(t *testing.T) {
	raw := `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"a"},{"type":"text","text":""},{"type":"text","text":"b"}]}]}`
	doc, err := ParseJSON([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if para := doc.Content[0]; len(para.Content) != 1 || para.Content[0].Text != "ab" {
		t.Fatalf("inline content not normalized: %s", mustJSON(t, doc))
	}

	if _, err := ParseJSON([]byte(`{"type":"paragraph"}`)); !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected invalid document error, got %v", err)
	}
	if _, err := ParseJSON([]byte(`{"type":"doc","content":[{"type":"text","text":"loose"}]}`)); !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected invalid document error for bare text, got %v", err)
	}
}
