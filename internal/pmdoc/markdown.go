package pmdoc

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// FromMarkdown converts Markdown source into a document. Raw HTML is
// dropped; images keep their alt text.
func FromMarkdown(src []byte) *Node {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(src))

	doc := &Node{Type: TypeDoc, Content: convertBlocks(root, src)}
	if len(doc.Content) == 0 {
		doc.Content = []*Node{{Type: TypeParagraph}}
	}
	return doc
}

func convertBlocks(parent ast.Node, src []byte) []*Node {
	var out []*Node
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		switch n := c.(type) {
		case *ast.Heading:
			out = append(out, &Node{
				Type:    TypeHeading,
				Attrs:   map[string]any{"level": n.Level},
				Content: normalizeInline(convertInline(n, src, nil)),
			})
		case *ast.Paragraph, *ast.TextBlock:
			out = append(out, &Node{Type: TypeParagraph, Content: normalizeInline(convertInline(n, src, nil))})
		case *ast.FencedCodeBlock:
			node := CodeBlock(codeLines(n, src))
			if lang := n.Language(src); len(lang) > 0 {
				node.Attrs = map[string]any{"language": string(lang)}
			}
			out = append(out, node)
		case *ast.CodeBlock:
			out = append(out, CodeBlock(codeLines(n, src)))
		case *ast.Blockquote:
			out = append(out, &Node{Type: TypeBlockquote, Content: nonEmptyBlocks(convertBlocks(n, src))})
		case *ast.List:
			list := &Node{Type: TypeBulletList}
			if n.IsOrdered() {
				list.Type = TypeOrderedList
				if n.Start > 1 {
					list.Attrs = map[string]any{"start": n.Start}
				}
			}
			list.Content = convertBlocks(n, src)
			out = append(out, list)
		case *ast.ListItem:
			out = append(out, &Node{Type: TypeListItem, Content: nonEmptyBlocks(convertBlocks(n, src))})
		case *ast.ThematicBreak:
			out = append(out, HorizontalRule())
		}
	}
	return out
}

func nonEmptyBlocks(nodes []*Node) []*Node {
	if len(nodes) == 0 {
		return []*Node{{Type: TypeParagraph}}
	}
	return nodes
}

func codeLines(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return strings.TrimRight(buf.String(), "\n")
}

func convertInline(parent ast.Node, src []byte, marks []Mark) []*Node {
	var out []*Node
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		switch n := c.(type) {
		case *ast.Text:
			out = append(out, Text(string(n.Segment.Value(src)), marks...))
			if n.HardLineBreak() {
				out = append(out, HardBreak())
			} else if n.SoftLineBreak() && n.NextSibling() != nil {
				out = append(out, Text(" ", marks...))
			}
		case *ast.String:
			out = append(out, Text(string(n.Value), marks...))
		case *ast.CodeSpan:
			out = append(out, convertInline(n, src, withMark(marks, Mark{Type: "code"}))...)
		case *ast.Emphasis:
			mark := Mark{Type: "italic"}
			if n.Level >= 2 {
				mark.Type = "bold"
			}
			out = append(out, convertInline(n, src, withMark(marks, mark))...)
		case *ast.Link:
			link := Mark{Type: "link", Attrs: map[string]any{"href": string(n.Destination)}}
			out = append(out, convertInline(n, src, withMark(marks, link))...)
		case *ast.AutoLink:
			link := Mark{Type: "link", Attrs: map[string]any{"href": string(n.URL(src))}}
			out = append(out, Text(string(n.Label(src)), withMark(marks, link)...))
		case *ast.RawHTML:
		default:
			out = append(out, convertInline(c, src, marks)...)
		}
	}
	return out
}

func withMark(marks []Mark, mark Mark) []Mark {
	out := make([]Mark, 0, len(marks)+1)
	out = append(out, marks...)
	return append(out, mark)
}
