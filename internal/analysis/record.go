// Package analysis talks to the correction service and turns its NDJSON
// result stream into correction drafts.
package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is one line of the service's result stream.
type Record struct {
	Event      string          `json:"event"`
	LineIndex  *int            `json:"line_index,omitempty"`
	TotalLines *int            `json:"total_lines,omitempty"`
	Result     *SentenceResult `json:"result,omitempty"`
}

// SentenceResult lists the issues found in one source sentence.
type SentenceResult struct {
	Source string  `json:"source"`
	Errors []Issue `json:"errors"`
}

// Issue positions are rune offsets relative to the start of Source.
type Issue struct {
	Position    int    `json:"position"`
	EndPosition int    `json:"end_position"`
	Original    string `json:"original"`
	Corrected   string `json:"corrected"`
	ErrorType   string `json:"error_type"`
	Explanation string `json:"explanation"`
}

var dataPrefix = []byte("data:")

// decodeRecord parses one stream line. Blank lines return ok=false with no
// error.
func decodeRecord(line []byte) (Record, bool, error) {
	line = bytes.TrimSpace(line)
	if bytes.HasPrefix(line, dataPrefix) {
		line = bytes.TrimSpace(line[len(dataPrefix):])
	}
	if len(line) == 0 {
		return Record{}, false, nil
	}
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode record: %w", err)
	}
	return rec, true, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
