package pmdoc

import (
	"fmt"
	"unicode/utf8"
)

// Step replaces the range [From, To) with Content. Both endpoints must sit
// in the same parent node.
type Step struct {
	From    int     `json:"from"`
	To      int     `json:"to"`
	Content []*Node `json:"content,omitempty"`
}

// Map returns the position map describing how the step moves positions.
func (s Step) Map() StepMap {
	return StepMap{Start: s.From, OldSize: s.To - s.From, NewSize: contentSize(s.Content)}
}

// Apply returns the document produced by replacing the step's range in doc.
// doc itself is left untouched.
func (s Step) Apply(doc *Node) (*Node, error) {
	rf, rt, err := s.resolve(doc)
	if err != nil {
		return nil, err
	}
	parent := rf.Parent()
	if err := checkContent(parent, s.Content); err != nil {
		return nil, err
	}

	before := cutContent(parent.Content, 0, rf.ParentOffset())
	after := cutContent(parent.Content, rt.ParentOffset(), parent.ContentSize())
	children := make([]*Node, 0, len(before)+len(s.Content)+len(after))
	children = append(children, before...)
	for _, node := range s.Content {
		children = append(children, node.Clone())
	}
	children = append(children, after...)

	replaced := parent.withContent(normalizeInline(children))
	for d := rf.Depth - 1; d >= 0; d-- {
		step := rf.path[d]
		siblings := make([]*Node, len(step.node.Content))
		copy(siblings, step.node.Content)
		siblings[step.index] = replaced
		replaced = step.node.withContent(siblings)
	}
	return replaced, nil
}

// Invert returns the step that undoes s when applied to the document s
// produced. before is the document s was applied to.
func (s Step) Invert(before *Node) (Step, error) {
	rf, rt, err := s.resolve(before)
	if err != nil {
		return Step{}, err
	}
	removed := cutContent(rf.Parent().Content, rf.ParentOffset(), rt.ParentOffset())
	return Step{From: s.From, To: s.From + contentSize(s.Content), Content: removed}, nil
}

func (s Step) resolve(doc *Node) (ResolvedPos, ResolvedPos, error) {
	if s.From > s.To {
		return ResolvedPos{}, ResolvedPos{}, fmt.Errorf("%w: from %d after to %d", ErrInvalidRange, s.From, s.To)
	}
	rf, err := doc.Resolve(s.From)
	if err != nil {
		return ResolvedPos{}, ResolvedPos{}, err
	}
	rt, err := doc.Resolve(s.To)
	if err != nil {
		return ResolvedPos{}, ResolvedPos{}, err
	}
	if rf.Depth != rt.Depth || rf.Start() != rt.Start() {
		return ResolvedPos{}, ResolvedPos{}, fmt.Errorf("%w: %d and %d do not share a parent", ErrInvalidRange, s.From, s.To)
	}
	return rf, rt, nil
}

func checkContent(parent *Node, content []*Node) error {
	for _, node := range content {
		if node == nil {
			return fmt.Errorf("%w: nil node", ErrInvalidContent)
		}
		switch {
		case parent.IsCode():
			if !node.IsText() || len(node.Marks) > 0 {
				return fmt.Errorf("%w: %s inside %s", ErrInvalidContent, node.Type, parent.Type)
			}
		case parent.IsTextblock():
			if !node.IsInline() {
				return fmt.Errorf("%w: %s inside %s", ErrInvalidContent, node.Type, parent.Type)
			}
		default:
			if node.IsInline() {
				return fmt.Errorf("%w: %s inside %s", ErrInvalidContent, node.Type, parent.Type)
			}
		}
	}
	return nil
}

// cutContent returns the nodes covering [from, to) of a content list,
// splitting text nodes at the edges. from and to must fall on child
// boundaries or inside text children.
func cutContent(nodes []*Node, from, to int) []*Node {
	var out []*Node
	pos := 0
	for _, child := range nodes {
		if pos >= to {
			break
		}
		size := child.Size()
		end := pos + size
		if end > from {
			if child.IsText() && (pos < from || end > to) {
				start := clamp(from-pos, 0, size)
				stop := clamp(to-pos, 0, size)
				out = append(out, child.withText(runeSlice(child.Text, start, stop)))
			} else {
				out = append(out, child)
			}
		}
		pos = end
	}
	return out
}

func runeSlice(s string, start, end int) string {
	if start == 0 && end == utf8.RuneCountInString(s) {
		return s
	}
	runes := []rune(s)
	return string(runes[start:end])
}
