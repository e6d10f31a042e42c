package correction

import (
	"fmt"
	"sort"

	"inkcheck/api/internal/pmdoc"
)

const (
	ColorTypo     = "220, 38, 38"
	ColorSemantic = "245, 158, 11"
	ColorAccepted = "22, 163, 74"

	ClassHighlight = "correction-highlight"
	ClassActive    = "correction-highlight-active"
	ClassAccepted  = "correction-highlight-accepted"
)

// Overlay is one highlighted span.
type Overlay struct {
	ID        string `json:"id"`
	From      int    `json:"from"`
	To        int    `json:"to"`
	ClassName string `json:"className"`
	Color     string `json:"color"`
	Style     string `json:"style"`
	Active    bool   `json:"active"`
	Accepted  bool   `json:"accepted"`
}

// Render derives the overlays for state over doc. Ignored items, empty
// spans and spans touching code render nothing.
func Render(state State, doc *pmdoc.Node) []Overlay {
	size := doc.ContentSize()
	var out []Overlay
	for _, id := range state.order {
		it := state.items[id]
		if it.Result == ResultIgnored || it.From >= it.To || it.To > size {
			continue
		}
		if InCodeRegion(doc, it.From, it.To) {
			continue
		}
		ov := Overlay{
			ID:        it.ID,
			From:      it.From,
			To:        it.To,
			ClassName: ClassHighlight,
			Color:     ColorTypo,
			Active:    it.ID == state.activeID,
			Accepted:  it.Result == ResultAccepted,
		}
		if it.Class() == ClassSemantic {
			ov.Color = ColorSemantic
		}
		switch {
		case ov.Accepted:
			ov.Color = ColorAccepted
			ov.ClassName = ClassAccepted
		case ov.Active:
			ov.ClassName = ClassActive
		}
		ov.Style = fmt.Sprintf("border-bottom: 2px solid rgba(%s, 0.8); cursor: pointer;", ov.Color)
		out = append(out, ov)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		if out[i].To != out[j].To {
			return out[i].To < out[j].To
		}
		return out[i].ID < out[j].ID
	})
	return out
}
