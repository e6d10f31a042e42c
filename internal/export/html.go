package export

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"inkcheck/api/internal/correction"
	"inkcheck/api/internal/pmdoc"
)

// RenderHTML converts a document to HTML, wrapping every overlay span in a
// <span> carrying its class, style and correction id. Overlays inside code
// blocks are never rendered.
func RenderHTML(doc *pmdoc.Node, overlays []correction.Overlay) string {
	if doc == nil {
		return ""
	}
	r := renderer{overlays: overlays}
	var b strings.Builder
	r.content(&b, doc.Content, 0)
	return b.String()
}

type renderer struct {
	overlays []correction.Overlay
}

// content renders children that start at document position pos.
func (r renderer) content(b *strings.Builder, nodes []*pmdoc.Node, pos int) {
	for _, child := range nodes {
		r.node(b, child, pos)
		pos += child.Size()
	}
}

func (r renderer) node(b *strings.Builder, n *pmdoc.Node, pos int) {
	inner := pos + 1
	switch n.Type {
	case pmdoc.TypeParagraph:
		b.WriteString("<p>")
		r.content(b, n.Content, inner)
		b.WriteString("</p>\n")
	case pmdoc.TypeHeading:
		level := headingLevel(n)
		fmt.Fprintf(b, "<h%d>", level)
		r.content(b, n.Content, inner)
		fmt.Fprintf(b, "</h%d>\n", level)
	case pmdoc.TypeBulletList:
		b.WriteString("<ul>\n")
		r.content(b, n.Content, inner)
		b.WriteString("</ul>\n")
	case pmdoc.TypeOrderedList:
		b.WriteString("<ol>\n")
		r.content(b, n.Content, inner)
		b.WriteString("</ol>\n")
	case pmdoc.TypeListItem:
		b.WriteString("<li>")
		r.content(b, n.Content, inner)
		b.WriteString("</li>\n")
	case pmdoc.TypeBlockquote:
		b.WriteString("<blockquote>\n")
		r.content(b, n.Content, inner)
		b.WriteString("</blockquote>\n")
	case pmdoc.TypeCodeBlock:
		b.WriteString("<pre><code>")
		b.WriteString(html.EscapeString(n.TextContent()))
		b.WriteString("</code></pre>\n")
	case pmdoc.TypeTable:
		b.WriteString("<table>\n")
		r.content(b, n.Content, inner)
		b.WriteString("</table>\n")
	case pmdoc.TypeTableRow:
		b.WriteString("<tr>\n")
		r.content(b, n.Content, inner)
		b.WriteString("</tr>\n")
	case pmdoc.TypeTableCell:
		b.WriteString("<td>")
		r.content(b, n.Content, inner)
		b.WriteString("</td>\n")
	case pmdoc.TypeTableHeader:
		b.WriteString("<th>")
		r.content(b, n.Content, inner)
		b.WriteString("</th>\n")
	case pmdoc.TypeText:
		r.text(b, n, pos)
	case pmdoc.TypeHardBreak:
		b.WriteString("<br>")
	case pmdoc.TypeHorizontalRule:
		b.WriteString("<hr>\n")
	case pmdoc.TypeImage:
		src, _ := n.Attrs["src"].(string)
		alt, _ := n.Attrs["alt"].(string)
		fmt.Fprintf(b, `<img src="%s" alt="%s">`, html.EscapeString(src), html.EscapeString(alt))
	default:
		r.content(b, n.Content, inner)
	}
}

// text splits a text node at every overlay boundary inside it and wraps each
// piece in the spans of the overlays covering it.
func (r renderer) text(b *strings.Builder, n *pmdoc.Node, pos int) {
	runes := []rune(n.Text)
	end := pos + len(runes)
	cuts := []int{pos, end}
	for _, ov := range r.overlays {
		if ov.From > pos && ov.From < end {
			cuts = append(cuts, ov.From)
		}
		if ov.To > pos && ov.To < end {
			cuts = append(cuts, ov.To)
		}
	}
	sort.Ints(cuts)

	for i := 0; i+1 < len(cuts); i++ {
		from, to := cuts[i], cuts[i+1]
		if from == to {
			continue
		}
		piece := renderMarks(html.EscapeString(string(runes[from-pos:to-pos])), n.Marks)
		for j := len(r.overlays) - 1; j >= 0; j-- {
			ov := r.overlays[j]
			if ov.From <= from && ov.To >= to {
				piece = wrapOverlay(piece, ov)
			}
		}
		b.WriteString(piece)
	}
}

func wrapOverlay(inner string, ov correction.Overlay) string {
	return fmt.Sprintf(`<span class="%s" style="%s" data-correction-id="%s" data-color="%s">%s</span>`,
		html.EscapeString(ov.ClassName),
		html.EscapeString(ov.Style),
		html.EscapeString(ov.ID),
		html.EscapeString(ov.Color),
		inner)
}

// renderMarks applies marks from the outside in.
func renderMarks(text string, marks []pmdoc.Mark) string {
	for i := len(marks) - 1; i >= 0; i-- {
		switch marks[i].Type {
		case "bold":
			text = "<strong>" + text + "</strong>"
		case "italic":
			text = "<em>" + text + "</em>"
		case "code":
			text = "<code>" + text + "</code>"
		case "strike":
			text = "<s>" + text + "</s>"
		case "underline":
			text = "<u>" + text + "</u>"
		case "link":
			href, _ := marks[i].Attrs["href"].(string)
			text = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), text)
		}
	}
	return text
}

func headingLevel(n *pmdoc.Node) int {
	switch v := n.Attrs["level"].(type) {
	case int:
		return clampLevel(v)
	case float64:
		return clampLevel(int(v))
	}
	return 1
}

func clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 6 {
		return 6
	}
	return level
}
