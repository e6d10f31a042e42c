package pmdoc

import "errors"

var (
	ErrInvalidDocument    = errors.New("invalid document")
	ErrPositionOutOfRange = errors.New("position out of range")
	ErrInvalidRange       = errors.New("invalid replace range")
	ErrInvalidContent     = errors.New("content not allowed here")
	ErrStaleTransaction   = errors.New("transaction built against an outdated document")
	ErrNothingToUndo      = errors.New("nothing to undo")
	ErrNothingToRedo      = errors.New("nothing to redo")
)
