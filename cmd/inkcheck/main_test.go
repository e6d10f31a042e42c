package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"inkcheck/api/internal/correction"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("INKCHECK_CONFIG", "")
	rootCmd := newRootCmd()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if out != "inkcheck version "+version+"\n" {
		t.Errorf("output = %q", out)
	}
}

func TestProjectMarkdown(t *testing.T) {
	path := writeFile(t, "notes.md", "# Title\n\nI has a cat.\n\n```\ncode()\n```\n")
	out, err := runCLI(t, "project", path)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if out != "Title\nI has a cat.\n" {
		t.Errorf("output = %q", out)
	}
}

func TestProjectJSON(t *testing.T) {
	path := writeFile(t, "doc.json", `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"I has a cat."}]}]}`)
	out, err := runCLI(t, "project", "--json", path)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	var got struct {
		Text string `json:"text"`
		Size int    `json:"size"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.Text != "I has a cat.\n" || got.Size != 14 {
		t.Errorf("got %+v", got)
	}
}

func TestProjectRejectsUnknownExtension(t *testing.T) {
	path := writeFile(t, "doc.txt", "hello")
	if _, err := runCLI(t, "project", path); err == nil || !strings.Contains(err.Error(), "unsupported document type") {
		t.Fatalf("err = %v", err)
	}
}

func TestCheckPrintsCorrections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer t0k" {
			t.Errorf("authorization = %q", auth)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = io.WriteString(w, `{"event":"progress","line_index":0,"total_lines":1,"result":{"source":"I has a cat.","errors":[{"position":2,"end_position":5,"original":"has","corrected":"have","error_type":"grammar"}]}}`+"\n")
	}))
	defer server.Close()
	path := writeFile(t, "doc.json", `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"I has a cat."}]}]}`)

	out, err := runCLI(t, "check", "--service", server.URL, "--token", "t0k", path)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "3-6\ttypo\t\"has\" -> \"have\"") || !strings.Contains(out, "1 correction(s)") {
		t.Errorf("output = %q", out)
	}

	out, err = runCLI(t, "check", "--json", "--service", server.URL, "--token", "t0k", path)
	if err != nil {
		t.Fatalf("check --json: %v", err)
	}
	var got struct {
		Items []correction.Item `json:"items"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(got.Items) != 1 || got.Items[0].From != 3 || got.Items[0].To != 6 {
		t.Errorf("items = %+v", got.Items)
	}
}

func TestCheckRequiresService(t *testing.T) {
	t.Setenv("CORRECTION_SERVICE_URL", "")
	path := writeFile(t, "doc.md", "Hello.\n")
	if _, err := runCLI(t, "check", path); err == nil || !strings.Contains(err.Error(), "no correction service") {
		t.Fatalf("err = %v", err)
	}
}
