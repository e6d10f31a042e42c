package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"inkcheck/api/internal/export"
	"inkcheck/api/internal/search"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Get("/api/search", s.handleSearch)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleCreateSession)
		r.Route("/{sid}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/transactions", s.handleTransaction)
			r.Post("/undo", s.handleUndo)
			r.Post("/redo", s.handleRedo)
			r.Post("/analysis", s.handleAnalysis)
			r.Get("/runs", s.handleRuns)
			r.Get("/decisions", s.handleDecisions)
			r.Get("/export", s.handleExport)
			r.Delete("/corrections", s.handleClearCorrections)
			r.Route("/corrections/{cid}", func(r chi.Router) {
				r.Delete("/", s.handleRemoveCorrection)
				r.Post("/accept", s.handleAccept)
				r.Post("/ignore", s.handleIgnore)
				r.Post("/revert", s.handleRevert)
				r.Post("/activate", s.handleActivate)
				r.Post("/click", s.handleClick)
				r.Post("/scroll", s.handleScroll)
			})
			r.Post("/conflicts/{conflictID}/confirm", s.handleConfirmConflict)
			r.Post("/conflicts/{conflictID}/cancel", s.handleCancelConflict)
		})
	})
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 20)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.service.Search(search.Query{
		Text:   strings.TrimSpace(r.URL.Query().Get("q")),
		Limit:  limit,
		Offset: offset,
	}))
}

func (s *HTTPServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 50)
	if !ok {
		return
	}
	items, err := s.service.ListSessions(r.Context(), limit)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{
			"id":        item.ID,
			"title":     item.Title,
			"version":   item.Version,
			"updatedAt": item.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body CreateSessionInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	v, err := s.service.CreateSession(r.Context(), body)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK)(s.service.GetSession(r.Context(), chi.URLParam(r, "sid")))
}

func (s *HTTPServer) handleTransaction(w http.ResponseWriter, r *http.Request) {
	var body TransactionInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	respond(w, http.StatusOK)(s.service.ApplyTransaction(r.Context(), chi.URLParam(r, "sid"), body))
}

func (s *HTTPServer) handleUndo(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK)(s.service.Undo(r.Context(), chi.URLParam(r, "sid")))
}

func (s *HTTPServer) handleRedo(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK)(s.service.Redo(r.Context(), chi.URLParam(r, "sid")))
}

// handleAnalysis streams the run as NDJSON: progress and batch events while
// results arrive, then one complete or error event.
func (s *HTTPServer) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	run, err := s.service.StartAnalysis(r.Context(), chi.URLParam(r, "sid"))
	if err != nil {
		writeMappedError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Run-ID", run.ID())
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}
	encoder := json.NewEncoder(w)
	emit := func(ev AnalysisEvent) error {
		if err := encoder.Encode(ev); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}
	if err := s.service.StreamAnalysis(r.Context(), run, emit); err != nil {
		log.Printf("app: finish run %s: %v", run.ID(), err)
	}
}

func (s *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 20)
	if !ok {
		return
	}
	runs, err := s.service.Runs(r.Context(), chi.URLParam(r, "sid"), limit)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(runs))
	for _, run := range runs {
		out = append(out, map[string]any{
			"id":         run.ID,
			"status":     run.Status,
			"itemCount":  run.ItemCount,
			"error":      run.Error,
			"startedAt":  run.StartedAt,
			"finishedAt": run.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *HTTPServer) handleDecisions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 50)
	if !ok {
		return
	}
	decisions, err := s.service.Decisions(r.Context(), chi.URLParam(r, "sid"), limit)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, map[string]any{
			"id":           d.ID,
			"correctionId": d.CorrectionID,
			"runId":        d.RunID,
			"outcome":      d.Outcome,
			"originalText": d.OriginalText,
			"newText":      d.NewText,
			"class":        d.Class,
			"decidedAt":    d.DecidedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": out})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(strings.TrimSpace(r.URL.Query().Get("format")))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	result, err := s.service.Export(r.Context(), chi.URLParam(r, "sid"), format)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
	if result.ObjectKey != "" {
		w.Header().Set("X-Object-Key", result.ObjectKey)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleClearCorrections(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK)(s.service.ClearCorrections(r.Context(), chi.URLParam(r, "sid")))
}

func (s *HTTPServer) handleRemoveCorrection(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK)(s.service.RemoveCorrection(r.Context(), chi.URLParam(r, "sid"), chi.URLParam(r, "cid")))
}

func (s *HTTPServer) handleAccept(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Suggestion int `json:"suggestion"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	respond(w, http.StatusOK)(s.service.Accept(r.Context(), chi.URLParam(r, "sid"), chi.URLParam(r, "cid"), body.Suggestion))
}

func (s *HTTPServer) handleIgnore(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK)(s.service.Ignore(r.Context(), chi.URLParam(r, "sid"), chi.URLParam(r, "cid")))
}

func (s *HTTPServer) handleRevert(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK)(s.service.Revert(r.Context(), chi.URLParam(r, "sid"), chi.URLParam(r, "cid")))
}

func (s *HTTPServer) handleActivate(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK)(s.service.Activate(r.Context(), chi.URLParam(r, "sid"), chi.URLParam(r, "cid")))
}

func (s *HTTPServer) handleClick(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK)(s.service.Click(r.Context(), chi.URLParam(r, "sid"), chi.URLParam(r, "cid")))
}

func (s *HTTPServer) handleScroll(w http.ResponseWriter, r *http.Request) {
	pos, v, err := s.service.ScrollTo(r.Context(), chi.URLParam(r, "sid"), chi.URLParam(r, "cid"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"position": pos, "session": v})
}

func (s *HTTPServer) handleConfirmConflict(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK)(s.service.ConfirmConflict(r.Context(), chi.URLParam(r, "sid"), chi.URLParam(r, "conflictID")))
}

func (s *HTTPServer) handleCancelConflict(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK)(s.service.CancelConflict(r.Context(), chi.URLParam(r, "sid"), chi.URLParam(r, "conflictID")))
}

// respond writes payload with status, or the mapped error.
func respond(w http.ResponseWriter, status int) func(any, error) {
	return func(payload any, err error) {
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, status, payload)
	}
}

func queryInt(w http.ResponseWriter, r *http.Request, key string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", key+" must be an integer", nil)
		return 0, false
	}
	return parsed, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush lets streaming handlers push partial responses through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "X-Request-ID, X-Run-ID, Content-Disposition")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("app: %v", err)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}
