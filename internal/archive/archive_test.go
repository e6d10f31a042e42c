package archive

import (
	"context"
	"testing"
)

func TestKeys(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "transcript", got: TranscriptKey("run_abc"), want: "runs/run_abc.ndjson"},
		{name: "transcript traversal", got: TranscriptKey("../etc"), want: "runs/__etc.ndjson"},
		{name: "export", got: ExportKey("sess_1", "draft.pdf"), want: "exports/sess_1/draft.pdf"},
		{name: "export nested name", got: ExportKey("sess_1", "a/b.html"), want: "exports/sess_1/a_b.html"},
		{name: "empty segment", got: ExportKey("", "x.html"), want: "exports/_/x.html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{Bucket: "inkcheck"}); err == nil {
		t.Fatal("expected error without endpoint")
	}
	if _, err := New(context.Background(), Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}
