package pmdoc

import (
	"encoding/json"
	"errors"
	"testing"
)

func mustJSON(t *testing.T, n *Node) string {
	t.Helper()
	raw, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}

func TestSizes(t *testing.T) {
	doc := Doc(
		Paragraph(Text("abc")),
		Paragraph(Text("x"), HardBreak(), Text("yé")),
	)
	if got := doc.Content[0].Size(); got != 5 {
		t.Fatalf("paragraph size = %d, want 5", got)
	}
	if got := doc.Content[1].Size(); got != 6 {
		t.Fatalf("paragraph with break size = %d, want 6", got)
	}
	if got := doc.ContentSize(); got != 11 {
		t.Fatalf("doc content size = %d, want 11", got)
	}
}

func TestResolve(t *testing.T) {
	doc := Doc(Paragraph(Text("abc")), Blockquote(Paragraph(Text("de"))))

	rp, err := doc.Resolve(2)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rp.Depth != 1 || rp.Parent().Type != TypeParagraph || rp.TextOffset != 1 || rp.ParentOffset() != 1 {
		t.Fatalf("unexpected resolution at 2: depth=%d parent=%s textOffset=%d", rp.Depth, rp.Parent().Type, rp.TextOffset)
	}

	// blockquote opens at 5, its paragraph at 6, text starts at 7
	rp, err = doc.Resolve(8)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rp.Depth != 2 || rp.Start() != 7 || rp.ParentOffset() != 1 {
		t.Fatalf("unexpected nested resolution: depth=%d start=%d", rp.Depth, rp.Start())
	}

	if _, err := doc.Resolve(doc.ContentSize() + 1); !errors.Is(err, ErrPositionOutOfRange) {
		t.Fatalf("expected out of range error, got %v", err)
	}
}

func TestStepApplyAndInvert(t *testing.T) {
	doc := Doc(Paragraph(Text("abc")))
	step := Step{From: 2, To: 3, Content: []*Node{Text("XY")}}

	next, err := step.Apply(doc)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := next.TextContent(); got != "aXYc" {
		t.Fatalf("text = %q, want aXYc", got)
	}
	if len(next.Content[0].Content) != 1 {
		t.Fatalf("adjacent text nodes were not merged: %s", mustJSON(t, next))
	}
	if doc.TextContent() != "abc" {
		t.Fatalf("apply mutated the original document")
	}

	inv, err := step.Invert(doc)
	if err != nil {
		t.Fatalf("invert: %v", err)
	}
	if inv.From != 2 || inv.To != 4 {
		t.Fatalf("inverted range = [%d,%d), want [2,4)", inv.From, inv.To)
	}
	back, err := inv.Apply(next)
	if err != nil {
		t.Fatalf("apply inverted: %v", err)
	}
	if mustJSON(t, back) != mustJSON(t, doc) {
		t.Fatalf("round trip mismatch:\n got %s\nwant %s", mustJSON(t, back), mustJSON(t, doc))
	}
}

func TestStepRejectsBadRanges(t *testing.T) {
	doc := Doc(Paragraph(Text("ab")), Paragraph(Text("cd")))

	tests := []struct {
		name string
		step Step
		want error
	}{
		{name: "crosses paragraphs", step: Step{From: 2, To: 6}, want: ErrInvalidRange},
		{name: "reversed", step: Step{From: 3, To: 2}, want: ErrInvalidRange},
		{name: "out of range", step: Step{From: 0, To: 99}, want: ErrPositionOutOfRange},
		{name: "block in paragraph", step: Step{From: 2, To: 2, Content: []*Node{Paragraph()}}, want: ErrInvalidContent},
		{name: "text at doc level", step: Step{From: 4, To: 4, Content: []*Node{Text("x")}}, want: ErrInvalidContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.step.Apply(doc); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestStepRemovesWholeBlock(t *testing.T) {
	doc := Doc(Paragraph(Text("ab")), Paragraph(Text("cd")))
	next, err := Step{From: 0, To: 4}.Apply(doc)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(next.Content) != 1 || next.TextContent() != "cd" {
		t.Fatalf("unexpected doc %s", mustJSON(t, next))
	}
}

func TestNodesBetweenAndTextBetween(t *testing.T) {
	doc := Doc(Paragraph(Text("hello "), Text("world", Mark{Type: "bold"})), CodeBlock("x := 1"))

	if got := doc.TextBetween(3, 10); got != "llo wor" {
		t.Fatalf("TextBetween = %q", got)
	}

	var types []string
	doc.NodesBetween(14, 16, func(n *Node, pos int) bool {
		types = append(types, n.Type)
		return true
	})
	if len(types) != 2 || types[0] != TypeCodeBlock || types[1] != TypeText {
		t.Fatalf("unexpected nodes %v", types)
	}
}
