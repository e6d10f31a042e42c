package pmdoc

import (
	"encoding/json"
	"fmt"
)

// ParseJSON decodes a ProseMirror JSON document and normalizes its inline
// content.
func ParseJSON(data []byte) (*Node, error) {
	var doc Node
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := Validate(&doc); err != nil {
		return nil, err
	}
	return normalizeTree(&doc), nil
}

// Validate checks that doc is a document whose nodes sit in allowed parents.
func Validate(doc *Node) error {
	if doc == nil || doc.Type != TypeDoc {
		return fmt.Errorf("%w: root must be %q", ErrInvalidDocument, TypeDoc)
	}
	return validateChildren(doc)
}

func validateChildren(parent *Node) error {
	for _, child := range parent.Content {
		if child == nil || child.Type == "" {
			return fmt.Errorf("%w: node without type inside %s", ErrInvalidDocument, parent.Type)
		}
		if child.Type == TypeDoc {
			return fmt.Errorf("%w: nested %s", ErrInvalidDocument, TypeDoc)
		}
		if err := checkContent(parent, []*Node{child}); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		if child.IsText() || child.IsAtom() {
			if len(child.Content) > 0 {
				return fmt.Errorf("%w: leaf %s has content", ErrInvalidDocument, child.Type)
			}
			continue
		}
		if err := validateChildren(child); err != nil {
			return err
		}
	}
	return nil
}

func normalizeTree(n *Node) *Node {
	if len(n.Content) == 0 {
		return n
	}
	children := make([]*Node, len(n.Content))
	for i, child := range n.Content {
		children[i] = normalizeTree(child)
	}
	if n.IsTextblock() {
		children = normalizeInline(children)
	}
	return n.withContent(children)
}

// Marshal encodes doc as ProseMirror JSON.
func Marshal(doc *Node) ([]byte, error) {
	return json.Marshal(doc)
}
