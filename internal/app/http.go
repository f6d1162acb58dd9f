package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"modelcards/api/internal/auth"
	"modelcards/api/internal/editors"
	"modelcards/api/internal/editsession"
	"modelcards/api/internal/export"
	"modelcards/api/internal/search"
	"modelcards/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        *slog.Logger

	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		log:        service.log,
		limiters:   make(map[string]*rate.Limiter),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.observe)
	router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/api/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	if s.service.metrics != nil {
		router.Handle("/metrics", s.service.metrics.Handler()).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.requirePrincipal, s.rateLimit)
	api.HandleFunc("/products/{id}/edit", s.handleEnableEdit).Methods(http.MethodPost)
	api.HandleFunc("/products/{id}/edit", s.handleEditSession).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}/edit", s.handleDisableEdit).Methods(http.MethodDelete)
	api.HandleFunc("/products/{id}/edit/fields", s.handleUpdateFields).Methods(http.MethodPatch)
	api.HandleFunc("/products/{id}/edit/discard", s.handleDiscard).Methods(http.MethodPost)
	api.HandleFunc("/products/{id}/edit/save", s.handleSave).Methods(http.MethodPost)
	api.HandleFunc("/products/{id}/edit/submit", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/products/{id}/edit/diff", s.handleDiff).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}/review-status", s.handleReviewStatus).Methods(http.MethodGet)
	api.HandleFunc("/drafts/{id}/packet", s.handlePacket).Methods(http.MethodGet)
	api.HandleFunc("/drafts/{id}/packet/publish", s.handlePublishPacket).Methods(http.MethodPost)
	api.HandleFunc("/review-queue/search", s.handleSearch).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: strings.Split(s.corsOrigin, ","),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	})
	return s.withMiddleware(c.Handler(router))
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

func (s *HTTPServer) handleEnableEdit(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.EnableEdit(r.Context(), principalFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleEditSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.EditSession(r.Context(), principalFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleDisableEdit(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DisableEdit(r.Context(), principalFrom(r), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleUpdateFields(w http.ResponseWriter, r *http.Request) {
	var body struct {
		editors.Op
		Ops []editors.Op `json:"ops"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	ops := body.Ops
	if len(ops) == 0 {
		ops = []editors.Op{body.Op}
	}
	view, err := s.service.UpdateFields(r.Context(), principalFrom(r), mux.Vars(r)["id"], ops)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleDiscard(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.DiscardEdit(r.Context(), principalFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type summaryBody struct {
	Summary string `json:"summary"`
}

func (s *HTTPServer) handleSave(w http.ResponseWriter, r *http.Request) {
	var body summaryBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	view, err := s.service.SaveDraft(r.Context(), principalFrom(r), mux.Vars(r)["id"], body.Summary)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body summaryBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.SubmitForReview(r.Context(), principalFrom(r), mux.Vars(r)["id"], body.Summary)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleDiff(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Diff(r.Context(), principalFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleReviewStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.ReviewStatus(r.Context(), principalFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handlePacket(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.service.Packet(r.Context(), principalFrom(r), mux.Vars(r)["id"], format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handlePublishPacket(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Format string `json:"format"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	format, err := export.ParseFormat(body.Format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	draftID := mux.Vars(r)["id"]
	result, err := s.service.Packet(r.Context(), principalFrom(r), draftID, format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	url, err := s.service.PublishPacket(r.Context(), draftID, result)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url, "filename": result.Filename})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := search.Query{
		Text:          strings.TrimSpace(query.Get("q")),
		FilterCompany: strings.TrimSpace(query.Get("company")),
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		q.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil {
		q.Offset = offset
	}
	response, err := s.service.SearchReviewQueue(principalFrom(r), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "request_id", requestIDFrom(r), "code", code, "err", err)
	}
	writeError(w, status, code, message, details)
}

type principalKey struct{}

func principalFrom(r *http.Request) auth.Principal {
	p, _ := r.Context().Value(principalKey{}).(auth.Principal)
	return p
}

func (s *HTTPServer) requirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		principal, err := s.service.PrincipalFromToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, principal)))
	})
}

// rateLimit applies a token bucket per principal. A non-positive rate
// disables it.
func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiterFor(principalFrom(r).UserID).Allow() {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) limiterFor(userID string) *rate.Limiter {
	cfg := s.service.cfg
	if cfg.RateLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	s.limitMu.Lock()
	defer s.limitMu.Unlock()
	limiter, ok := s.limiters[userID]
	if !ok {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
		s.limiters[userID] = limiter
	}
	return limiter
}

// observe records request metrics by route template.
func (s *HTTPServer) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.service.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r)
		s.service.metrics.RecordRequest(r.Method, route, writer.status, time.Since(started))
	})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)
		writer.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(writer, r)

		s.log.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
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

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var persistErr *editsession.PersistenceError
	switch {
	case errors.Is(err, editsession.ErrPermissionDenied):
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	case errors.Is(err, editsession.ErrSummaryRequired):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "An edit summary is required", map[string]any{"field": "summary"}
	case errors.Is(err, editsession.ErrNotActive):
		return http.StatusConflict, "NOT_EDITING", "Edit mode is not active for this product", nil
	case errors.Is(err, store.ErrDraftConflict):
		return http.StatusConflict, "DRAFT_CONFLICT", "The draft was changed elsewhere; reload it", nil
	case errors.Is(err, store.ErrInvalidStatus):
		return http.StatusConflict, "INVALID_STATUS", "The draft cannot move to that status", nil
	case errors.Is(err, editsession.ErrDraftPendingReview):
		return http.StatusConflict, "DRAFT_PENDING_REVIEW", "A draft of this product is already awaiting review", nil
	case errors.As(err, &persistErr):
		return http.StatusBadGateway, "PERSISTENCE_ERROR", "Could not persist the draft", map[string]any{"op": persistErr.Op}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, editors.ErrUnknownOp), errors.Is(err, editors.ErrOutOfRange), errors.Is(err, editors.ErrInvalidItem):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), map[string]any{"field": "format"}
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF rendering is not available", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
