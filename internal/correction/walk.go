// Package correction keeps correction suggestions from the analysis service
// attached to a document that is being edited.
//
// Suggestions arrive as offsets into the canonical text of the document.
// Walk defines that text once; Project, Translator and the code region
// checks all read the document through it.
package correction

import (
	"unicode/utf8"

	"inkcheck/api/internal/pmdoc"
)

type SegmentKind uint8

const (
	// SegmentText is a text leaf; only these carry offsets.
	SegmentText SegmentKind = iota
	// SegmentBreak is a hard line break.
	SegmentBreak
	// SegmentBlockEnd closes a block other than the document root.
	SegmentBlockEnd
)

// Segment is one unit of the canonical text.
type Segment struct {
	Kind SegmentKind
	// Pos is the document position where the segment starts. For
	// SegmentBlockEnd it is the position right after the block.
	Pos int
	// Offset is the number of addressable characters before the segment.
	Offset int
	Text   string
	// Length is the rune length of Text.
	Length int
}

// Walk visits the canonical segments of doc in document order. Code regions
// are skipped together with their descendants. Walk stops when fn returns
// false.
func Walk(doc *pmdoc.Node, fn func(Segment) bool) {
	w := walker{fn: fn}
	w.children(doc, 0)
}

type walker struct {
	fn      func(Segment) bool
	offset  int
	stopped bool
}

func (w *walker) emit(seg Segment) {
	if !w.fn(seg) {
		w.stopped = true
	}
}

func (w *walker) children(n *pmdoc.Node, start int) {
	pos := start
	for _, child := range n.Content {
		if w.stopped {
			return
		}
		w.node(child, pos)
		pos += child.Size()
	}
}

func (w *walker) node(n *pmdoc.Node, pos int) {
	switch {
	case n.IsCode():
	case n.IsText():
		length := utf8.RuneCountInString(n.Text)
		w.emit(Segment{Kind: SegmentText, Pos: pos, Offset: w.offset, Text: n.Text, Length: length})
		w.offset += length
	case n.Type == pmdoc.TypeHardBreak:
		w.emit(Segment{Kind: SegmentBreak, Pos: pos, Offset: w.offset})
	default:
		w.children(n, pos+1)
		if !w.stopped && n.IsBlock() {
			w.emit(Segment{Kind: SegmentBlockEnd, Pos: pos + n.Size(), Offset: w.offset})
		}
	}
}

// Project returns the canonical text of doc.
func Project(doc *pmdoc.Node) string {
	var buf []byte
	Walk(doc, func(seg Segment) bool {
		if seg.Kind == SegmentText {
			buf = append(buf, seg.Text...)
		} else {
			buf = append(buf, '\n')
		}
		return true
	})
	return string(buf)
}

// InCodeRegion reports whether [from, to) touches a code region of doc.
func InCodeRegion(doc *pmdoc.Node, from, to int) bool {
	found := false
	doc.NodesBetween(from, to, func(n *pmdoc.Node, _ int) bool {
		if n.IsCode() {
			found = true
		}
		return !found
	})
	return found
}
