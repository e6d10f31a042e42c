package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"inkcheck/api/internal/correction"
)

const readChunkSize = 32 * 1024

// Sink receives the results of one run. A Batch error stops the run and is
// returned from Consume.
type Sink interface {
	Progress(current, total int)
	Batch(drafts []correction.Draft) error
}

// Opener starts a result stream for text.
type Opener interface {
	Open(ctx context.Context, text string) (io.ReadCloser, error)
}

// ResultCache stores complete result streams by analysed text.
type ResultCache interface {
	Get(ctx context.Context, text string) ([]byte, bool, error)
	Put(ctx context.Context, text string, transcript []byte) error
}

// TranscriptArchive keeps the raw stream of finished runs.
type TranscriptArchive interface {
	PutTranscript(ctx context.Context, runID string, transcript []byte) error
}

type Adapter struct {
	opener  Opener
	cache   ResultCache
	archive TranscriptArchive
}

type Option func(*Adapter)

func WithCache(c ResultCache) Option {
	return func(a *Adapter) { a.cache = c }
}

func WithArchive(ar TranscriptArchive) Option {
	return func(a *Adapter) { a.archive = ar }
}

func NewAdapter(opener Opener, opts ...Option) *Adapter {
	a := &Adapter{opener: opener}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run analyses text and feeds the results to sink. A cached stream for the
// same text is replayed instead of calling the service. A nil error means
// the stream completed.
func (a *Adapter) Run(ctx context.Context, runID, text string, sink Sink) error {
	if a.cache != nil {
		transcript, ok, err := a.cache.Get(ctx, text)
		switch {
		case err != nil:
			log.Printf("analysis: cache lookup failed: %v", err)
		case ok:
			log.Printf("analysis: replaying cached result for run %s", runID)
			if err := a.Consume(ctx, bytes.NewReader(transcript), text, sink); err != nil {
				return err
			}
			a.archiveTranscript(ctx, runID, transcript)
			return nil
		}
	}
	if a.opener == nil {
		return errors.New("analysis: no correction service configured")
	}

	body, err := a.opener.Open(ctx, text)
	if err != nil {
		return err
	}
	defer body.Close()

	var transcript bytes.Buffer
	if err := a.Consume(ctx, io.TeeReader(body, &transcript), text, sink); err != nil {
		return err
	}
	if a.cache != nil {
		if err := a.cache.Put(ctx, text, transcript.Bytes()); err != nil {
			log.Printf("analysis: cache store failed: %v", err)
		}
	}
	a.archiveTranscript(ctx, runID, transcript.Bytes())
	return nil
}

func (a *Adapter) archiveTranscript(ctx context.Context, runID string, transcript []byte) {
	if a.archive == nil {
		return
	}
	if err := a.archive.PutTranscript(ctx, runID, transcript); err != nil {
		log.Printf("analysis: archive run %s failed: %v", runID, err)
	}
}

// Consume reads a result stream for text. Every chunk read from r yields at
// most one batch, holding the drafts of the complete lines it finished.
func (a *Adapter) Consume(ctx context.Context, r io.Reader, text string, sink Sink) error {
	loc := newLocator(text)
	buf := make([]byte, readChunkSize)
	var pending []byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			cut := bytes.LastIndexByte(pending, '\n')
			if cut >= 0 {
				lines := pending[:cut]
				pending = append([]byte(nil), pending[cut+1:]...)
				if err := emit(loc, bytes.Split(lines, []byte{'\n'}), sink); err != nil {
					return err
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read result stream: %w", readErr)
		}
	}
	if len(bytes.TrimSpace(pending)) > 0 {
		return emit(loc, [][]byte{pending}, sink)
	}
	return nil
}

func emit(loc *locator, lines [][]byte, sink Sink) error {
	var drafts []correction.Draft
	for _, line := range lines {
		rec, ok, err := decodeRecord(line)
		if err != nil {
			log.Printf("analysis: skipping malformed record: %v", err)
			continue
		}
		if !ok || rec.Event != "progress" || rec.Result == nil {
			continue
		}
		if rec.LineIndex != nil && rec.TotalLines != nil {
			sink.Progress(*rec.LineIndex+1, *rec.TotalLines)
		}
		start, found := loc.locate(rec.Result.Source)
		if len(rec.Result.Errors) == 0 {
			continue
		}
		if !found {
			log.Printf("analysis: source sentence not found, dropping %d issue(s): %q",
				len(rec.Result.Errors), truncate(rec.Result.Source, 80))
			continue
		}
		for _, issue := range rec.Result.Errors {
			drafts = append(drafts, draftFor(loc, start, issue))
		}
	}
	if len(drafts) == 0 {
		return nil
	}
	return sink.Batch(drafts)
}

func draftFor(loc *locator, sentenceStart int, issue Issue) correction.Draft {
	class := correction.ClassTypo
	if issue.ErrorType == "semantic" {
		class = correction.ClassSemantic
	}
	return correction.Draft{
		Start:    loc.addressable(sentenceStart + issue.Position),
		End:      loc.addressable(sentenceStart + issue.EndPosition),
		Original: issue.Original,
		Suggestions: []correction.Suggestion{{
			Text:        issue.Corrected,
			Class:       class,
			Explanation: issue.Explanation,
		}},
	}
}
