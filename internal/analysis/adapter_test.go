package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"inkcheck/api/internal/correction"
	"inkcheck/api/internal/pmdoc"
)

// chunkedReader returns one chunk per Read call, like a network body.
type chunkedReader struct {
	chunks []string
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

type recordingSink struct {
	progress [][2]int
	batches  [][]correction.Draft
	err      error
}

func (s *recordingSink) Progress(current, total int) {
	s.progress = append(s.progress, [2]int{current, total})
}

func (s *recordingSink) Batch(drafts []correction.Draft) error {
	s.batches = append(s.batches, drafts)
	return s.err
}

func progressLine(t *testing.T, index, total int, source string, issues ...Issue) string {
	t.Helper()
	rec := Record{Event: "progress", LineIndex: &index, TotalLines: &total, Result: &SentenceResult{Source: source, Errors: issues}}
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw) + "\n"
}

func TestConsumeEmitsOneBatchPerChunk(t *testing.T) {
	text := "A bx.\nC dx.\nE fx.\nG hx.\nI jx.\n"
	sentences := []string{"A bx.", "C dx.", "E fx.", "G hx.", "I jx."}
	var lines []string
	for i, s := range sentences {
		lines = append(lines, progressLine(t, i, len(sentences), s, Issue{Position: 2, EndPosition: 4, Original: s[2:4], Corrected: s[2:3]}))
	}
	r := &chunkedReader{chunks: []string{
		strings.Join(lines[:3], ""),
		strings.Join(lines[3:], ""),
	}}

	sink := &recordingSink{}
	if err := NewAdapter(nil).Consume(context.Background(), r, text, sink); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(sink.batches) != 2 || len(sink.batches[0]) != 3 || len(sink.batches[1]) != 2 {
		t.Fatalf("batch sizes = %v", batchSizes(sink.batches))
	}
	for i, p := range sink.progress {
		if p != [2]int{i + 1, 5} {
			t.Fatalf("progress[%d] = %v", i, p)
		}
	}
	if len(sink.progress) != 5 {
		t.Fatalf("progress = %v", sink.progress)
	}
	// "C dx." starts at rune 6, one newline before it.
	if d := sink.batches[0][1]; d.Start != 7 || d.End != 9 || d.Original != "dx" {
		t.Fatalf("second draft = %+v", d)
	}
}

func batchSizes(batches [][]correction.Draft) []int {
	out := make([]int, len(batches))
	for i, b := range batches {
		out[i] = len(b)
	}
	return out
}

func TestStreamingIntoSessionProducesDistinctItems(t *testing.T) {
	doc := pmdoc.Doc(
		pmdoc.Paragraph(pmdoc.Text("A bx.")),
		pmdoc.Paragraph(pmdoc.Text("C dx.")),
		pmdoc.Paragraph(pmdoc.Text("E fx.")),
		pmdoc.Paragraph(pmdoc.Text("G hx.")),
		pmdoc.Paragraph(pmdoc.Text("I jx.")),
	)
	sess := correction.NewSession(doc)
	token, err := sess.BeginRun()
	if err != nil {
		t.Fatalf("begin run: %v", err)
	}
	sources := []string{"A bx.", "C dx.", "E fx.", "G hx.", "I jx."}
	var lines []string
	for i, s := range sources {
		lines = append(lines, progressLine(t, i, 5, s, Issue{Position: 2, EndPosition: 4, Original: s[2:4], Corrected: "ok"}))
	}
	r := &chunkedReader{chunks: []string{strings.Join(lines[:3], ""), strings.Join(lines[3:], "")}}

	var progress [][2]int
	sink := &SessionSink{
		Session:    sess,
		Token:      token,
		OnProgress: func(c, n int) { progress = append(progress, [2]int{c, n}) },
	}
	if err := NewAdapter(nil).Consume(context.Background(), r, token.Text, sink); err != nil {
		t.Fatalf("consume: %v", err)
	}

	snap := sess.Snapshot()
	if len(snap.Items) != 5 {
		t.Fatalf("items = %d, want 5", len(snap.Items))
	}
	seen := map[string]bool{}
	for _, it := range snap.Items {
		if seen[it.ID] {
			t.Fatalf("duplicate id %s", it.ID)
		}
		seen[it.ID] = true
		if got := snap.Doc.TextBetween(it.From, it.To); got != it.MisspelledWord {
			t.Fatalf("item %s spans %q, want %q", it.ID, got, it.MisspelledWord)
		}
	}
	if len(progress) != 5 || progress[0] != [2]int{1, 5} || progress[4] != [2]int{5, 5} {
		t.Fatalf("progress = %v", progress)
	}
}

func TestEndToEndExample(t *testing.T) {
	doc := pmdoc.Doc(
		pmdoc.Paragraph(pmdoc.Text("I has a cat.")),
		pmdoc.Paragraph(pmdoc.Text("It run fast.")),
	)
	sess := correction.NewSession(doc)
	token, _ := sess.BeginRun()
	if token.Text != "I has a cat.\nIt run fast.\n" {
		t.Fatalf("canonical text = %q", token.Text)
	}

	stream := progressLine(t, 0, 2, "I has a cat.", Issue{Position: 2, EndPosition: 5, Original: "has", Corrected: "have", ErrorType: "typo"}) +
		progressLine(t, 1, 2, "It run fast.")
	if err := NewAdapter(nil).Consume(context.Background(), strings.NewReader(stream), token.Text, &SessionSink{Session: sess, Token: token}); err != nil {
		t.Fatalf("consume: %v", err)
	}

	items := sess.Snapshot().Items
	if len(items) != 1 {
		t.Fatalf("items = %+v", items)
	}
	it := items[0]
	primary, _ := it.Primary()
	if it.MisspelledWord != "has" || primary.Text != "have" || it.Class() != correction.ClassTypo {
		t.Fatalf("item = %+v", it)
	}
	if it.From != 3 || it.To != 6 {
		t.Fatalf("span = [%d,%d), want [3,6)", it.From, it.To)
	}
}

func TestConsumeToleratesBadInput(t *testing.T) {
	text := "Same line.\nSame line.\nnaïve cafe here.\n"
	stream := "not json at all\n" +
		"data: " + strings.TrimSuffix(progressLine(t, 0, 4, "Same line.", Issue{Position: 0, EndPosition: 4, Original: "Same"}), "\n") + "\n" +
		progressLine(t, 1, 4, "Same line.", Issue{Position: 5, EndPosition: 9, Original: "line"}) +
		`{"event":"heartbeat"}` + "\n" +
		progressLine(t, 2, 4, "Missing sentence.", Issue{Position: 0, EndPosition: 7}) +
		strings.TrimSuffix(progressLine(t, 3, 4, "naïve cafe here.", Issue{Position: 6, EndPosition: 10, Original: "cafe", Corrected: "café", ErrorType: "semantic"}), "\n")

	// split the stream mid-record to exercise buffering across reads
	half := len(stream) / 2
	r := &chunkedReader{chunks: []string{stream[:half], stream[half:]}}
	sink := &recordingSink{}
	if err := NewAdapter(nil).Consume(context.Background(), r, text, sink); err != nil {
		t.Fatalf("consume: %v", err)
	}

	var drafts []correction.Draft
	for _, b := range sink.batches {
		drafts = append(drafts, b...)
	}
	if len(drafts) != 3 {
		t.Fatalf("drafts = %+v", drafts)
	}
	if drafts[0].Start != 0 || drafts[0].End != 4 {
		t.Fatalf("first duplicate sentence = %+v", drafts[0])
	}
	// second "Same line." starts at rune 11 with one newline before it
	if drafts[1].Start != 15 || drafts[1].End != 19 {
		t.Fatalf("second duplicate sentence = %+v", drafts[1])
	}
	// "naïve cafe here." starts at rune 22 after two newlines
	if drafts[2].Start != 26 || drafts[2].End != 30 || drafts[2].Suggestions[0].Class != correction.ClassSemantic {
		t.Fatalf("multibyte sentence = %+v", drafts[2])
	}
	if len(sink.progress) != 4 {
		t.Fatalf("progress = %v", sink.progress)
	}
}

func TestConsumeStopsOnSinkError(t *testing.T) {
	stream := progressLine(t, 0, 2, "A b.", Issue{Position: 0, EndPosition: 1}) +
		progressLine(t, 1, 2, "C d.", Issue{Position: 0, EndPosition: 1})
	r := &chunkedReader{chunks: []string{stream[:len(stream)/2+1], stream[len(stream)/2+1:]}}
	sink := &recordingSink{err: correction.ErrStaleRun}
	err := NewAdapter(nil).Consume(context.Background(), r, "A b.\nC d.\n", sink)
	if !errors.Is(err, correction.ErrStaleRun) {
		t.Fatalf("expected stale run error, got %v", err)
	}
	if len(sink.batches) != 1 {
		t.Fatalf("consume continued after sink error: %d batches", len(sink.batches))
	}
}

type failingReader struct{ data io.Reader }

func (r *failingReader) Read(p []byte) (int, error) {
	n, err := r.data.Read(p)
	if errors.Is(err, io.EOF) {
		return n, errors.New("connection reset")
	}
	return n, err
}

func TestConsumeSurfacesTransportErrors(t *testing.T) {
	stream := progressLine(t, 0, 2, "A b.", Issue{Position: 0, EndPosition: 1})
	sink := &recordingSink{}
	err := NewAdapter(nil).Consume(context.Background(), &failingReader{data: strings.NewReader(stream)}, "A b.\n", sink)
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected transport error, got %v", err)
	}
	if len(sink.batches) != 1 {
		t.Fatalf("batches committed before the failure were lost: %d", len(sink.batches))
	}
}

type fakeOpener struct {
	body  string
	calls int
}

func (o *fakeOpener) Open(context.Context, string) (io.ReadCloser, error) {
	o.calls++
	return io.NopCloser(strings.NewReader(o.body)), nil
}

type memoryCache struct {
	data map[string][]byte
	puts int
}

func (c *memoryCache) Get(_ context.Context, text string) ([]byte, bool, error) {
	v, ok := c.data[text]
	return v, ok, nil
}

func (c *memoryCache) Put(_ context.Context, text string, transcript []byte) error {
	c.data[text] = append([]byte(nil), transcript...)
	c.puts++
	return nil
}

type memoryArchive struct {
	runs map[string][]byte
}

func (a *memoryArchive) PutTranscript(_ context.Context, runID string, transcript []byte) error {
	a.runs[runID] = transcript
	return nil
}

func TestRunCachesAndArchivesTranscript(t *testing.T) {
	text := "A bx.\n"
	stream := progressLine(t, 0, 1, "A bx.", Issue{Position: 2, EndPosition: 4, Original: "bx", Corrected: "by"})
	opener := &fakeOpener{body: stream}
	cache := &memoryCache{data: map[string][]byte{}}
	archive := &memoryArchive{runs: map[string][]byte{}}
	adapter := NewAdapter(opener, WithCache(cache), WithArchive(archive))

	first := &recordingSink{}
	if err := adapter.Run(context.Background(), "run_1", text, first); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if opener.calls != 1 || cache.puts != 1 {
		t.Fatalf("opener calls=%d cache puts=%d", opener.calls, cache.puts)
	}
	if !bytes.Equal(archive.runs["run_1"], []byte(stream)) {
		t.Fatalf("archived transcript = %q", archive.runs["run_1"])
	}

	second := &recordingSink{}
	if err := adapter.Run(context.Background(), "run_2", text, second); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if opener.calls != 1 {
		t.Fatalf("cached run called the service again")
	}
	if fmt.Sprint(second.batches) != fmt.Sprint(first.batches) {
		t.Fatalf("replayed batches differ: %v vs %v", second.batches, first.batches)
	}
	if !bytes.Equal(archive.runs["run_2"], []byte(stream)) {
		t.Fatalf("replayed run transcript = %q", archive.runs["run_2"])
	}
}
