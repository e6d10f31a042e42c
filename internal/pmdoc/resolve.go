package pmdoc

import "fmt"

type pathStep struct {
	node  *Node
	index int
	start int
}

// ResolvedPos is a position together with the chain of ancestors that
// contain it.
type ResolvedPos struct {
	Pos   int
	Depth int
	// TextOffset is the rune offset into the text node at Index when the
	// position falls inside one, zero otherwise.
	TextOffset int

	path []pathStep
}

func (r ResolvedPos) Parent() *Node { return r.path[r.Depth].node }

// Index is the child index in Parent at or after the position.
func (r ResolvedPos) Index() int { return r.path[r.Depth].index }

// Start is the position where Parent's content begins.
func (r ResolvedPos) Start() int { return r.path[r.Depth].start }

func (r ResolvedPos) ParentOffset() int { return r.Pos - r.Start() }

// Resolve locates pos inside n, descending into every non-text node that
// strictly contains it.
func (n *Node) Resolve(pos int) (ResolvedPos, error) {
	if pos < 0 || pos > n.ContentSize() {
		return ResolvedPos{}, fmt.Errorf("%w: %d not in [0, %d]", ErrPositionOutOfRange, pos, n.ContentSize())
	}
	var path []pathStep
	node, start := n, 0
	for {
		offset := pos - start
		index := len(node.Content)
		textOffset := 0
		var next *Node
		nextStart := 0
		acc := 0
		for i, child := range node.Content {
			if offset == acc {
				index = i
				break
			}
			size := child.Size()
			if offset < acc+size {
				index = i
				if child.IsText() {
					textOffset = offset - acc
				} else {
					next = child
					nextStart = start + acc + 1
				}
				break
			}
			acc += size
		}
		path = append(path, pathStep{node: node, index: index, start: start})
		if next == nil {
			return ResolvedPos{Pos: pos, Depth: len(path) - 1, TextOffset: textOffset, path: path}, nil
		}
		node, start = next, nextStart
	}
}
