package correction

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("correction not found")
	ErrNoSuggestion    = errors.New("correction has no usable suggestion")
	ErrNotPending      = errors.New("correction is not pending")
	ErrNotResolved     = errors.New("correction has no result to revert")
	ErrConflictUnknown = errors.New("conflict not found")
	ErrStaleConflict   = errors.New("document changed since the conflicting edit")
	ErrStaleRun        = errors.New("analysis run superseded")
	ErrDuplicateID     = errors.New("correction id already in use")
)

// Class is the kind of problem a suggestion fixes.
type Class uint8

const (
	ClassTypo Class = iota + 1
	ClassSemantic
)

func (c Class) String() string {
	if c == ClassSemantic {
		return "semantic"
	}
	return "typo"
}

func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Class) UnmarshalText(text []byte) error {
	switch string(text) {
	case "semantic":
		*c = ClassSemantic
	case "typo", "":
		*c = ClassTypo
	default:
		return fmt.Errorf("unknown correction class %q", text)
	}
	return nil
}

// Result is the user's decision on an item. The zero value is pending.
type Result uint8

const (
	ResultNone Result = iota
	ResultAccepted
	ResultIgnored
)

func (r Result) String() string {
	switch r {
	case ResultAccepted:
		return "accepted"
	case ResultIgnored:
		return "ignored"
	default:
		return ""
	}
}

func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Result) UnmarshalText(text []byte) error {
	switch string(text) {
	case "":
		*r = ResultNone
	case "accepted":
		*r = ResultAccepted
	case "ignored":
		*r = ResultIgnored
	default:
		return fmt.Errorf("unknown correction result %q", text)
	}
	return nil
}

type Suggestion struct {
	Text        string `json:"text"`
	Class       Class  `json:"class"`
	Explanation string `json:"explanation,omitempty"`
}

// AcceptedSnapshot records the text an accept replaced.
type AcceptedSnapshot struct {
	OriginalText string `json:"originalText"`
	NewText      string `json:"newText"`
}

// Item is one detected issue anchored to a document span [From, To).
type Item struct {
	ID             string            `json:"id"`
	From           int               `json:"from"`
	To             int               `json:"to"`
	SourceOffsets  *[2]int           `json:"sourceOffsets,omitempty"`
	MisspelledWord string            `json:"misspelledWord"`
	OriginalText   string            `json:"originalText"`
	Suggestions    []Suggestion      `json:"suggestions"`
	Result         Result            `json:"result,omitempty"`
	Accepted       *AcceptedSnapshot `json:"accepted,omitempty"`
	RunID          string            `json:"runId,omitempty"`
}

// Primary is the default suggestion.
func (it Item) Primary() (Suggestion, bool) {
	if len(it.Suggestions) == 0 {
		return Suggestion{}, false
	}
	return it.Suggestions[0], true
}

func (it Item) Class() Class {
	if s, ok := it.Primary(); ok && s.Class != 0 {
		return s.Class
	}
	return ClassTypo
}

// Live reports whether the item still waits for a decision.
func (it Item) Live() bool { return it.Result == ResultNone }

func (it Item) clone() Item {
	out := it
	if it.SourceOffsets != nil {
		offsets := *it.SourceOffsets
		out.SourceOffsets = &offsets
	}
	if it.Suggestions != nil {
		out.Suggestions = append([]Suggestion(nil), it.Suggestions...)
	}
	if it.Accepted != nil {
		snap := *it.Accepted
		out.Accepted = &snap
	}
	return out
}

// Draft is an issue reported by the analysis service, still expressed in
// addressable offsets of the text that was analysed.
type Draft struct {
	Start       int
	End         int
	Original    string
	Suggestions []Suggestion
}
