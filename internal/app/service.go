package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"inkcheck/api/internal/analysis"
	"inkcheck/api/internal/config"
	"inkcheck/api/internal/correction"
	"inkcheck/api/internal/export"
	"inkcheck/api/internal/pmdoc"
	"inkcheck/api/internal/search"
	"inkcheck/api/internal/store"
	"inkcheck/api/internal/util"
)

const persistTimeout = 5 * time.Second

type dataStore interface {
	SaveDocument(context.Context, store.Document) error
	GetDocument(context.Context, string) (store.Document, error)
	ListDocuments(context.Context, int) ([]store.DocumentSummary, error)
	InsertRun(context.Context, store.AnalysisRun) error
	FinishRun(context.Context, string, string, int, string) error
	ListRuns(context.Context, string, int) ([]store.AnalysisRun, error)
	InsertDecision(context.Context, store.Decision) error
	ListDecisions(context.Context, string, int) ([]store.Decision, error)
	Ping(ctx context.Context) error
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexDocument(doc search.DocumentRecord)
}

type analyzer interface {
	Run(ctx context.Context, runID, text string, sink analysis.Sink) error
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type CreateSessionInput struct {
	Title    string          `json:"title"`
	Doc      json.RawMessage `json:"doc,omitempty"`
	Markdown string          `json:"markdown,omitempty"`
}

// StepInput replaces [From, To) with Content, or with Text when Content is
// empty. Text inherits the marks at From.
type StepInput struct {
	From    int           `json:"from"`
	To      int           `json:"to"`
	Content []*pmdoc.Node `json:"content,omitempty"`
	Text    *string       `json:"text,omitempty"`
}

type TransactionInput struct {
	Steps     []StepInput      `json:"steps"`
	Selection *pmdoc.Selection `json:"selection,omitempty"`
}

// SessionView is the JSON shape of a session.
type SessionView struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	correction.Snapshot
}

// EditResult is a session view plus the conflict the edit produced, if any.
type EditResult struct {
	Session  SessionView          `json:"session"`
	Conflict *correction.Conflict `json:"conflict,omitempty"`
}

// AnalysisEvent is one line of an analysis response stream.
type AnalysisEvent struct {
	Event     string            `json:"event"`
	RunID     string            `json:"runId"`
	Current   int               `json:"current,omitempty"`
	Total     int               `json:"total,omitempty"`
	Items     []correction.Item `json:"items,omitempty"`
	ItemCount int               `json:"itemCount,omitempty"`
	Code      string            `json:"code,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type documentSession struct {
	id      string
	title   string
	session *correction.Session
	// base is the stored version the session was reopened from; editor
	// versions count up from it.
	base int64
	// savedVersion is the last editor version written to the store.
	savedVersion atomic.Uint64
	// runMu allows one analysis run per session at a time.
	runMu sync.Mutex
}

type Service struct {
	cfg      config.Config
	store    dataStore
	search   searchIndex
	analyzer analyzer
	exporter exporter
	newID    func(prefix string) string

	mu       sync.Mutex
	sessions map[string]*documentSession
}

type Option func(*Service)

func WithSearch(idx searchIndex) Option {
	return func(s *Service) { s.search = idx }
}

func WithAnalyzer(a analyzer) Option {
	return func(s *Service) { s.analyzer = a }
}

func WithExporter(e exporter) Option {
	return func(s *Service) { s.exporter = e }
}

func New(cfg config.Config, dataStore dataStore, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		newID:    util.NewID,
		sessions: make(map[string]*documentSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.exporter == nil {
		s.exporter = export.NewService()
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) CreateSession(ctx context.Context, input CreateSessionInput) (SessionView, error) {
	hasDoc := len(input.Doc) > 0 && string(input.Doc) != "null"
	hasMarkdown := strings.TrimSpace(input.Markdown) != ""
	if hasDoc == hasMarkdown {
		return SessionView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "exactly one of doc or markdown is required", nil)
	}

	var doc *pmdoc.Node
	if hasDoc {
		parsed, err := pmdoc.ParseJSON(input.Doc)
		if err != nil {
			return SessionView{}, domainError(http.StatusUnprocessableEntity, "INVALID_DOCUMENT", err.Error(), nil)
		}
		doc = parsed
	} else {
		doc = pmdoc.FromMarkdown([]byte(input.Markdown))
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Untitled"
	}
	ds := s.register(s.newID("doc"), title, doc)
	snap := ds.session.Snapshot()
	if err := s.saveSnapshot(ctx, ds, snap); err != nil {
		s.drop(ds.id)
		return SessionView{}, err
	}
	return view(ds, snap), nil
}

func (s *Service) ListSessions(ctx context.Context, limit int) ([]store.DocumentSummary, error) {
	return s.store.ListDocuments(ctx, limit)
}

func (s *Service) GetSession(ctx context.Context, sid string) (SessionView, error) {
	ds, err := s.lookup(ctx, sid)
	if err != nil {
		return SessionView{}, err
	}
	return view(ds, ds.session.Snapshot()), nil
}

// lookup returns the live session for sid, reopening it from the store
// when it is not in memory.
func (s *Service) lookup(ctx context.Context, sid string) (*documentSession, error) {
	s.mu.Lock()
	ds, ok := s.sessions[sid]
	s.mu.Unlock()
	if ok {
		return ds, nil
	}

	stored, err := s.store.GetDocument(ctx, sid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	doc, err := pmdoc.ParseJSON(stored.Content)
	if err != nil {
		log.Printf("app: stored document %s is invalid: %v", sid, err)
		return nil, domainError(http.StatusConflict, "DOCUMENT_CORRUPT", "Stored document could not be loaded", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[sid]; ok {
		return existing, nil
	}
	ds = s.newDocumentSession(sid, stored.Title, doc)
	ds.base = stored.Version
	s.sessions[sid] = ds
	return ds, nil
}

func (s *Service) register(id, title string, doc *pmdoc.Node) *documentSession {
	ds := s.newDocumentSession(id, title, doc)
	s.mu.Lock()
	s.sessions[id] = ds
	s.mu.Unlock()
	return ds
}

func (s *Service) newDocumentSession(id, title string, doc *pmdoc.Node) *documentSession {
	ds := &documentSession{
		id:      id,
		title:   title,
		session: correction.NewSession(doc, correction.WithHistoryLimit(s.cfg.HistoryLimit)),
	}
	ds.session.OnChange(func(snap correction.Snapshot) {
		if snap.Version <= ds.savedVersion.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.saveSnapshot(ctx, ds, snap); err != nil {
			log.Printf("app: persist document %s v%d: %v", ds.id, snap.Version, err)
		}
	})
	ds.session.OnConflict(func(c correction.Conflict) {
		log.Printf("app: session %s conflict %s holds %d correction(s)", ds.id, c.ID, len(c.Items))
	})
	_ = ds.session.SetClickHandler(func(id string) {
		if err := ds.session.SetActive(id); err != nil {
			log.Printf("app: activate %s after click: %v", id, err)
		}
	})
	return ds
}

func (s *Service) drop(sid string) {
	s.mu.Lock()
	delete(s.sessions, sid)
	s.mu.Unlock()
}

// saveSnapshot writes the document to the store and the search index.
func (s *Service) saveSnapshot(ctx context.Context, ds *documentSession, snap correction.Snapshot) error {
	content, err := pmdoc.Marshal(snap.Doc)
	if err != nil {
		return err
	}
	if err := s.store.SaveDocument(ctx, store.Document{
		ID:            ds.id,
		Title:         ds.title,
		Content:       content,
		CanonicalText: snap.Text,
		Version:       ds.base + int64(snap.Version),
	}); err != nil {
		return err
	}
	for {
		saved := ds.savedVersion.Load()
		if snap.Version <= saved || ds.savedVersion.CompareAndSwap(saved, snap.Version) {
			break
		}
	}
	if s.search != nil {
		s.search.IndexDocument(search.DocumentRecord{ID: ds.id, Title: ds.title, Text: snap.Text})
	}
	return nil
}

func view(ds *documentSession, snap correction.Snapshot) SessionView {
	if snap.Items == nil {
		snap.Items = []correction.Item{}
	}
	if snap.Overlays == nil {
		snap.Overlays = []correction.Overlay{}
	}
	if snap.Conflicts == nil {
		snap.Conflicts = []correction.Conflict{}
	}
	return SessionView{ID: ds.id, Title: ds.title, Snapshot: snap}
}

func (s *Service) ApplyTransaction(ctx context.Context, sid string, input TransactionInput) (EditResult, error) {
	if len(input.Steps) == 0 && input.Selection == nil {
		return EditResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "steps or selection is required", nil)
	}
	ds, err := s.lookup(ctx, sid)
	if err != nil {
		return EditResult{}, err
	}
	conflict, err := ds.session.Edit(func(tr *pmdoc.Transaction) error {
		for _, step := range input.Steps {
			var err error
			switch {
			case len(step.Content) > 0:
				err = tr.Replace(step.From, step.To, step.Content...)
			case step.Text != nil && *step.Text != "":
				err = tr.ReplaceText(step.From, step.To, *step.Text)
			default:
				err = tr.Delete(step.From, step.To)
			}
			if err != nil {
				return err
			}
		}
		if input.Selection != nil {
			tr.SetSelection(*input.Selection)
		}
		return nil
	})
	if err != nil {
		return EditResult{}, err
	}
	return EditResult{Session: view(ds, ds.session.Snapshot()), Conflict: conflict}, nil
}

func (s *Service) Undo(ctx context.Context, sid string) (EditResult, error) {
	return s.historyEdit(ctx, sid, (*correction.Session).Undo)
}

func (s *Service) Redo(ctx context.Context, sid string) (EditResult, error) {
	return s.historyEdit(ctx, sid, (*correction.Session).Redo)
}

func (s *Service) historyEdit(ctx context.Context, sid string, op func(*correction.Session) (*correction.Conflict, error)) (EditResult, error) {
	ds, err := s.lookup(ctx, sid)
	if err != nil {
		return EditResult{}, err
	}
	conflict, err := op(ds.session)
	if err != nil {
		return EditResult{}, err
	}
	return EditResult{Session: view(ds, ds.session.Snapshot()), Conflict: conflict}, nil
}

// AnalysisRun is a started run waiting to be streamed.
type AnalysisRun struct {
	ds    *documentSession
	token correction.RunToken
}

func (r *AnalysisRun) ID() string { return r.token.ID }

// StartAnalysis clears the session's corrections and records a new run.
// Only one run per session may be in flight.
func (s *Service) StartAnalysis(ctx context.Context, sid string) (*AnalysisRun, error) {
	if s.analyzer == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ANALYSIS_UNAVAILABLE", "Correction service not configured", nil)
	}
	ds, err := s.lookup(ctx, sid)
	if err != nil {
		return nil, err
	}
	if !ds.runMu.TryLock() {
		return nil, domainError(http.StatusConflict, "ANALYSIS_RUNNING", "An analysis is already running for this session", nil)
	}
	token, err := ds.session.BeginRun()
	if err != nil {
		ds.runMu.Unlock()
		return nil, err
	}
	if err := s.store.InsertRun(ctx, store.AnalysisRun{ID: token.ID, DocumentID: ds.id, Status: store.RunRunning}); err != nil {
		ds.runMu.Unlock()
		return nil, err
	}
	return &AnalysisRun{ds: ds, token: token}, nil
}

// StreamAnalysis runs the analysis and reports its events through emit.
// Failures after the run started are reported as an "error" event, so the
// returned error is only the final status write.
func (s *Service) StreamAnalysis(ctx context.Context, run *AnalysisRun, emit func(AnalysisEvent) error) error {
	defer run.ds.runMu.Unlock()

	send := func(ev AnalysisEvent) {
		ev.RunID = run.token.ID
		if err := emit(ev); err != nil {
			log.Printf("app: run %s: emit %s event: %v", run.token.ID, ev.Event, err)
		}
	}

	count := 0
	sink := &analysis.SessionSink{
		Session: run.ds.session,
		Token:   run.token,
		OnProgress: func(current, total int) {
			send(AnalysisEvent{Event: "progress", Current: current, Total: total})
		},
		OnItems: func(items []correction.Item) {
			count += len(items)
			send(AnalysisEvent{Event: "batch", Items: items})
		},
	}

	runErr := s.analyzer.Run(ctx, run.token.ID, run.token.Text, sink)

	status, errMsg := store.RunCompleted, ""
	switch {
	case runErr == nil:
		send(AnalysisEvent{Event: "complete", ItemCount: count})
	case errors.Is(runErr, correction.ErrStaleRun):
		status, errMsg = store.RunDiscarded, "corrections were cleared during the run"
		send(AnalysisEvent{Event: "error", Code: "STALE_RUN", Error: errMsg, ItemCount: count})
	default:
		status, errMsg = store.RunFailed, runErr.Error()
		log.Printf("app: run %s failed: %v", run.token.ID, runErr)
		send(AnalysisEvent{Event: "error", Code: "ANALYSIS_FAILED", Error: errMsg, ItemCount: count})
	}

	// The request context may already be gone.
	finishCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	return s.store.FinishRun(finishCtx, run.token.ID, status, count, errMsg)
}

func (s *Service) ClearCorrections(ctx context.Context, sid string) (SessionView, error) {
	return s.sessionOp(ctx, sid, func(ds *documentSession) error {
		return ds.session.Clear()
	})
}

func (s *Service) Accept(ctx context.Context, sid, cid string, suggestion int) (SessionView, error) {
	return s.decide(ctx, sid, cid, store.OutcomeAccepted, func(sess *correction.Session) error {
		return sess.Accept(cid, suggestion)
	})
}

func (s *Service) Ignore(ctx context.Context, sid, cid string) (SessionView, error) {
	return s.decide(ctx, sid, cid, store.OutcomeIgnored, func(sess *correction.Session) error {
		return sess.Ignore(cid)
	})
}

func (s *Service) Revert(ctx context.Context, sid, cid string) (SessionView, error) {
	return s.decide(ctx, sid, cid, store.OutcomeReverted, func(sess *correction.Session) error {
		return sess.Revert(cid)
	})
}

func (s *Service) RemoveCorrection(ctx context.Context, sid, cid string) (SessionView, error) {
	ds, err := s.lookup(ctx, sid)
	if err != nil {
		return SessionView{}, err
	}
	before, _ := findItem(ds.session.Snapshot().Items, cid)
	if err := ds.session.Remove(cid); err != nil {
		return SessionView{}, err
	}
	s.recordDecision(ctx, ds, before, store.OutcomeRemoved)
	return view(ds, ds.session.Snapshot()), nil
}

// decide runs a lifecycle operation and appends its outcome to the
// decision log.
func (s *Service) decide(ctx context.Context, sid, cid, outcome string, op func(*correction.Session) error) (SessionView, error) {
	ds, err := s.lookup(ctx, sid)
	if err != nil {
		return SessionView{}, err
	}
	before, _ := findItem(ds.session.Snapshot().Items, cid)
	if err := op(ds.session); err != nil {
		return SessionView{}, err
	}
	snap := ds.session.Snapshot()
	item, ok := findItem(snap.Items, cid)
	if !ok {
		item = before
	}
	if outcome == store.OutcomeReverted && before.Accepted != nil {
		item.Accepted = before.Accepted
	}
	s.recordDecision(ctx, ds, item, outcome)
	return view(ds, snap), nil
}

func (s *Service) recordDecision(ctx context.Context, ds *documentSession, item correction.Item, outcome string) {
	d := store.Decision{
		DocumentID:   ds.id,
		CorrectionID: item.ID,
		RunID:        item.RunID,
		Outcome:      outcome,
		OriginalText: item.OriginalText,
		Class:        item.Class().String(),
	}
	if sug, ok := item.Primary(); ok {
		d.NewText = sug.Text
	}
	if item.Accepted != nil {
		d.OriginalText = item.Accepted.OriginalText
		d.NewText = item.Accepted.NewText
	}
	if err := s.store.InsertDecision(ctx, d); err != nil {
		log.Printf("app: record %s decision for %s: %v", outcome, item.ID, err)
	}
}

func findItem(items []correction.Item, id string) (correction.Item, bool) {
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return correction.Item{}, false
}

// Activate highlights cid; "none" clears the highlight.
func (s *Service) Activate(ctx context.Context, sid, cid string) (SessionView, error) {
	if cid == "none" {
		cid = ""
	}
	return s.sessionOp(ctx, sid, func(ds *documentSession) error {
		return ds.session.SetActive(cid)
	})
}

func (s *Service) Click(ctx context.Context, sid, cid string) (SessionView, error) {
	return s.sessionOp(ctx, sid, func(ds *documentSession) error {
		return ds.session.Click(cid)
	})
}

func (s *Service) ScrollTo(ctx context.Context, sid, cid string) (int, SessionView, error) {
	var pos int
	v, err := s.sessionOp(ctx, sid, func(ds *documentSession) error {
		p, err := ds.session.ScrollTo(cid)
		pos = p
		return err
	})
	return pos, v, err
}

func (s *Service) ConfirmConflict(ctx context.Context, sid, conflictID string) (SessionView, error) {
	ds, err := s.lookup(ctx, sid)
	if err != nil {
		return SessionView{}, err
	}
	c, err := ds.session.Confirm(conflictID)
	if err != nil {
		return SessionView{}, err
	}
	for _, it := range c.Items {
		s.recordDecision(ctx, ds, it, store.OutcomeRemoved)
	}
	return view(ds, ds.session.Snapshot()), nil
}

func (s *Service) CancelConflict(ctx context.Context, sid, conflictID string) (SessionView, error) {
	return s.sessionOp(ctx, sid, func(ds *documentSession) error {
		return ds.session.Cancel(conflictID)
	})
}

func (s *Service) sessionOp(ctx context.Context, sid string, op func(*documentSession) error) (SessionView, error) {
	ds, err := s.lookup(ctx, sid)
	if err != nil {
		return SessionView{}, err
	}
	if err := op(ds); err != nil {
		return SessionView{}, err
	}
	return view(ds, ds.session.Snapshot()), nil
}

func (s *Service) Export(ctx context.Context, sid string, format export.Format) (*export.Result, error) {
	ds, err := s.lookup(ctx, sid)
	if err != nil {
		return nil, err
	}
	snap := ds.session.Snapshot()
	return s.exporter.Export(ctx, export.Request{
		SessionID: ds.id,
		Title:     ds.title,
		Format:    format,
		Doc:       snap.Doc,
		Items:     snap.Items,
		Overlays:  snap.Overlays,
	})
}

func (s *Service) Runs(ctx context.Context, sid string, limit int) ([]store.AnalysisRun, error) {
	if _, err := s.lookup(ctx, sid); err != nil {
		return nil, err
	}
	return s.store.ListRuns(ctx, sid, limit)
}

func (s *Service) Decisions(ctx context.Context, sid string, limit int) ([]store.Decision, error) {
	if _, err := s.lookup(ctx, sid); err != nil {
		return nil, err
	}
	return s.store.ListDecisions(ctx, sid, limit)
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}
