package search

import (
	"encoding/json"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
)

func TestHitToResultPrefersFormattedFields(t *testing.T) {
	hit := meili.Hit{
		"id":         json.RawMessage(`"doc_1"`),
		"title":      json.RawMessage(`"Notes"`),
		"text":       json.RawMessage(`"I has a cat."`),
		"_formatted": json.RawMessage(`{"title":"Notes","text":"I has a <mark>cat</mark>."}`),
	}
	got := hitToResult(hit)
	want := Result{ID: "doc_1", Title: "Notes", Snippet: "I has a <mark>cat</mark>."}
	if got != want {
		t.Fatalf("hitToResult = %+v, want %+v", got, want)
	}
}

func TestHitToResultFallsBackToRawFields(t *testing.T) {
	hit := meili.Hit{
		"id":    json.RawMessage(`"doc_2"`),
		"title": json.RawMessage(`"Draft"`),
		"text":  json.RawMessage(`"plain"`),
	}
	got := hitToResult(hit)
	if got.Title != "Draft" || got.Snippet != "plain" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestServiceWithoutBackendsReturnsEmptyResults(t *testing.T) {
	resp := NewService(nil, nil).Search(Query{Text: "cat"})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Query != "cat" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: 20, -3: 20, 5: 5, 500: 100}
	for in, want := range cases {
		if got := normalizeLimit(in); got != want {
			t.Errorf("normalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
