// Package pmdoc implements the structured document model edited by inkcheck.
//
// Documents use the ProseMirror JSON shape. Positions count one unit per
// text rune plus one token for every node boundary, so a document holding a
// single paragraph "abc" spans positions 0..5 and the text starts at 1.
package pmdoc

import (
	"reflect"
	"strings"
	"unicode/utf8"
)

const (
	TypeDoc            = "doc"
	TypeParagraph      = "paragraph"
	TypeHeading        = "heading"
	TypeText           = "text"
	TypeHardBreak      = "hardBreak"
	TypeCodeBlock      = "codeBlock"
	TypeBlockquote     = "blockquote"
	TypeBulletList     = "bulletList"
	TypeOrderedList    = "orderedList"
	TypeListItem       = "listItem"
	TypeHorizontalRule = "horizontalRule"
	TypeImage          = "image"
	TypeTable          = "table"
	TypeTableRow       = "tableRow"
	TypeTableCell      = "tableCell"
	TypeTableHeader    = "tableHeader"
)

// Mark is inline formatting attached to a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Node is one node of the document tree. Nodes are treated as immutable once
// they are part of a document; edits build new nodes along the changed path.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []*Node        `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

func (n *Node) IsText() bool { return n.Type == TypeText }

// IsAtom reports whether n is a non-text leaf occupying a single position.
func (n *Node) IsAtom() bool {
	switch n.Type {
	case TypeHardBreak, TypeHorizontalRule, TypeImage:
		return true
	}
	return false
}

func (n *Node) IsInline() bool {
	return n.Type == TypeText || n.Type == TypeHardBreak
}

func (n *Node) IsBlock() bool { return !n.IsInline() }

func (n *Node) IsTextblock() bool {
	switch n.Type {
	case TypeParagraph, TypeHeading, TypeCodeBlock:
		return true
	}
	return false
}

// IsCode reports whether n is a verbatim code region.
func (n *Node) IsCode() bool { return n.Type == TypeCodeBlock }

// Size is the number of positions n occupies in its parent.
func (n *Node) Size() int {
	if n.IsText() {
		return utf8.RuneCountInString(n.Text)
	}
	if n.IsAtom() {
		return 1
	}
	return n.ContentSize() + 2
}

func (n *Node) ContentSize() int {
	return contentSize(n.Content)
}

func contentSize(nodes []*Node) int {
	size := 0
	for _, child := range nodes {
		size += child.Size()
	}
	return size
}

// TextContent concatenates the text of all descendant text nodes.
func (n *Node) TextContent() string {
	if n.IsText() {
		return n.Text
	}
	var sb strings.Builder
	for _, child := range n.Content {
		sb.WriteString(child.TextContent())
	}
	return sb.String()
}

// NodesBetween calls fn for every node overlapping [from, to), parents
// before children, with the position where the node starts. Returning false
// skips the node's children.
func (n *Node) NodesBetween(from, to int, fn func(node *Node, pos int) bool) {
	nodesBetween(n.Content, 0, from, to, fn)
}

func nodesBetween(nodes []*Node, start, from, to int, fn func(*Node, int) bool) {
	pos := start
	for _, child := range nodes {
		if pos > to || (pos == to && from != to) {
			return
		}
		end := pos + child.Size()
		if end > from && fn(child, pos) && len(child.Content) > 0 {
			nodesBetween(child.Content, pos+1, from, to, fn)
		}
		pos = end
	}
}

// TextBetween returns the text of the text nodes inside [from, to).
func (n *Node) TextBetween(from, to int) string {
	if from >= to {
		return ""
	}
	var sb strings.Builder
	n.NodesBetween(from, to, func(node *Node, pos int) bool {
		if !node.IsText() {
			return true
		}
		runes := []rune(node.Text)
		start := clamp(from-pos, 0, len(runes))
		end := clamp(to-pos, 0, len(runes))
		sb.WriteString(string(runes[start:end]))
		return false
	})
	return sb.String()
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Type: n.Type, Text: n.Text}
	if n.Attrs != nil {
		out.Attrs = make(map[string]any, len(n.Attrs))
		for k, v := range n.Attrs {
			out.Attrs[k] = v
		}
	}
	if len(n.Marks) > 0 {
		out.Marks = cloneMarks(n.Marks)
	}
	if len(n.Content) > 0 {
		out.Content = make([]*Node, len(n.Content))
		for i, child := range n.Content {
			out.Content[i] = child.Clone()
		}
	}
	return out
}

func (n *Node) withContent(content []*Node) *Node {
	out := *n
	out.Content = content
	return &out
}

func (n *Node) withText(text string) *Node {
	out := *n
	out.Text = text
	return &out
}

func cloneMarks(marks []Mark) []Mark {
	if len(marks) == 0 {
		return nil
	}
	out := make([]Mark, len(marks))
	for i, m := range marks {
		out[i] = Mark{Type: m.Type}
		if m.Attrs != nil {
			out[i].Attrs = make(map[string]any, len(m.Attrs))
			for k, v := range m.Attrs {
				out[i].Attrs[k] = v
			}
		}
	}
	return out
}

func sameMarks(a, b []Mark) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// normalizeInline drops empty text nodes and merges adjacent text nodes that
// carry the same marks.
func normalizeInline(nodes []*Node) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, node := range nodes {
		if node.IsText() && node.Text == "" {
			continue
		}
		if len(out) > 0 {
			last := out[len(out)-1]
			if node.IsText() && last.IsText() && sameMarks(last.Marks, node.Marks) {
				out[len(out)-1] = last.withText(last.Text + node.Text)
				continue
			}
		}
		out = append(out, node)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clamp(v, min, max int) int {
	if max < min {
		return min
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Doc builds a document node.
func Doc(children ...*Node) *Node {
	return &Node{Type: TypeDoc, Content: children}
}

func Paragraph(children ...*Node) *Node {
	return &Node{Type: TypeParagraph, Content: normalizeInline(children)}
}

func Heading(level int, children ...*Node) *Node {
	return &Node{Type: TypeHeading, Attrs: map[string]any{"level": level}, Content: normalizeInline(children)}
}

func Text(text string, marks ...Mark) *Node {
	return &Node{Type: TypeText, Text: text, Marks: cloneMarks(marks)}
}

func HardBreak() *Node {
	return &Node{Type: TypeHardBreak}
}

func CodeBlock(code string) *Node {
	node := &Node{Type: TypeCodeBlock}
	if code != "" {
		node.Content = []*Node{Text(code)}
	}
	return node
}

func Blockquote(children ...*Node) *Node {
	return &Node{Type: TypeBlockquote, Content: children}
}

func BulletList(items ...*Node) *Node {
	return &Node{Type: TypeBulletList, Content: items}
}

func OrderedList(items ...*Node) *Node {
	return &Node{Type: TypeOrderedList, Content: items}
}

func ListItem(children ...*Node) *Node {
	return &Node{Type: TypeListItem, Content: children}
}

func HorizontalRule() *Node {
	return &Node{Type: TypeHorizontalRule}
}
