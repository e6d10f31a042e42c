package correction

import "inkcheck/api/internal/pmdoc"

// Translator converts between canonical-text offsets and document
// positions for one document state. Offsets count only text characters;
// line breaks and block separators in the canonical text are not
// addressable.
type Translator struct {
	doc *pmdoc.Node
}

func NewTranslator(doc *pmdoc.Node) Translator {
	return Translator{doc: doc}
}

// ToPosition maps offset to the position before the character at offset.
// An offset equal to the end of one leaf maps to the start of the next.
func (t Translator) ToPosition(offset int) int {
	if offset < 0 {
		offset = 0
	}
	pos := t.doc.ContentSize()
	Walk(t.doc, func(seg Segment) bool {
		if seg.Kind != SegmentText || seg.Offset+seg.Length <= offset {
			return true
		}
		pos = seg.Pos + offset - seg.Offset
		return false
	})
	return pos
}

// ToPositionEnd maps offset to the position after the character before
// offset, so the end of a span stays in the leaf its last character is in.
func (t Translator) ToPositionEnd(offset int) int {
	if offset <= 0 {
		return t.ToPosition(0)
	}
	pos := t.doc.ContentSize()
	Walk(t.doc, func(seg Segment) bool {
		if seg.Kind != SegmentText || seg.Offset+seg.Length < offset {
			return true
		}
		pos = seg.Pos + offset - seg.Offset
		return false
	})
	return pos
}

// ToOffset maps a document position to the number of addressable
// characters before it.
func (t Translator) ToOffset(pos int) int {
	result, total := -1, 0
	Walk(t.doc, func(seg Segment) bool {
		if seg.Kind != SegmentText {
			return true
		}
		switch {
		case pos < seg.Pos:
			result = seg.Offset
		case pos <= seg.Pos+seg.Length:
			result = seg.Offset + pos - seg.Pos
		default:
			total = seg.Offset + seg.Length
			return true
		}
		return false
	})
	if result < 0 {
		return total
	}
	return result
}

// Length is the total number of addressable characters.
func (t Translator) Length() int {
	total := 0
	Walk(t.doc, func(seg Segment) bool {
		if seg.Kind == SegmentText {
			total = seg.Offset + seg.Length
		}
		return true
	})
	return total
}
