package server

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/olehluchkiv/gosignature/internal/diagram"
	"github.com/olehluchkiv/gosignature/pkg/signature"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

type contextKey string

const requestIDKey contextKey = "request_id"

// Lister enumerates the type identifiers a provider can describe.
type Lister interface {
	Identifiers() []string
}

// API serves signatures over HTTP.
type API struct {
	extractor *signature.Extractor
	types     Lister
	expand    func(string) string
	logger    *slog.Logger
	page      *template.Template
}

// Option configures an API.
type Option func(*API)

// WithTypes enables GET /types.
func WithTypes(l Lister) Option {
	return func(a *API) { a.types = l }
}

// WithIdentifierExpansion rewrites every ?type= value before lookup.
func WithIdentifierExpansion(fn func(string) string) Option {
	return func(a *API) { a.expand = fn }
}

// NewAPI creates an API backed by extractor.
func NewAPI(extractor *signature.Extractor, logger *slog.Logger, opts ...Option) *API {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &API{
		extractor: extractor,
		expand:    func(s string) string { return s },
		logger:    logger.With("component", "server"),
		page:      template.Must(template.New("diagram").Parse(pageTemplate)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the API routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(a.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/", a.handlePage)
	r.Get("/healthz", a.handleHealth)
	r.Get("/types", a.handleTypes)
	r.Get("/signature", a.handleSignature)
	r.Get("/abstract", a.handleAbstract)
	r.Get("/diagram", a.handleDiagram)
	r.Delete("/cache", a.handleClearCache)
	return r
}

// RequestID returns the ID assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", RequestID(r.Context()))
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      int    `json:"code,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type abstractResponse struct {
	Type     string `json:"type"`
	Abstract bool   `json:"abstract"`
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleTypes(w http.ResponseWriter, r *http.Request) {
	if a.types == nil {
		a.writeError(w, r, http.StatusNotFound, errors.New("type listing is not available"))
		return
	}
	writeJSON(w, http.StatusOK, a.types.Identifiers())
}

func (a *API) handleSignature(w http.ResponseWriter, r *http.Request) {
	id, ok := a.typeParam(w, r)
	if !ok {
		return
	}
	sig, err := a.extractor.ReadSignature(r.Context(), id)
	if err != nil {
		a.writeExtractionError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := diagram.WriteText(w, sig, false); err != nil {
			a.logger.Warn("writing text response failed", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

func (a *API) handleAbstract(w http.ResponseWriter, r *http.Request) {
	id, ok := a.typeParam(w, r)
	if !ok {
		return
	}
	abstract, err := a.extractor.IsAbstract(r.Context(), id)
	if err != nil {
		a.writeExtractionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, abstractResponse{Type: id, Abstract: abstract})
}

func (a *API) handleDiagram(w http.ResponseWriter, r *http.Request) {
	mermaid, ok := a.mermaid(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(mermaid))
}

func (a *API) handlePage(w http.ResponseWriter, r *http.Request) {
	mermaid, ok := a.mermaid(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := a.page.Execute(w, struct{ MermaidContent string }{mermaid}); err != nil {
		a.logger.Error("failed to render template", "error", err)
	}
}

// mermaid renders every ?type= of r. It writes the error response itself
// and reports false on failure.
func (a *API) mermaid(w http.ResponseWriter, r *http.Request) (string, bool) {
	ids := r.URL.Query()["type"]
	if len(ids) == 0 {
		a.writeError(w, r, http.StatusBadRequest, errors.New("at least one type parameter is required"))
		return "", false
	}

	opts := diagram.DefaultDiagramOptions()
	opts.HidePrivate = r.URL.Query().Get("private") == "false"
	opts.Abstract = make(map[string]bool, len(ids))

	sigs := make([]*signature.ObjectSignature, 0, len(ids))
	for _, raw := range ids {
		id := a.expand(strings.TrimSpace(raw))
		sig, err := a.extractor.ReadSignature(r.Context(), id)
		if err != nil {
			a.writeExtractionError(w, r, err)
			return "", false
		}
		abstract, err := a.extractor.IsAbstract(r.Context(), id)
		if err != nil {
			a.writeExtractionError(w, r, err)
			return "", false
		}
		opts.Abstract[sig.ObjectName] = abstract
		sigs = append(sigs, sig)
	}
	return diagram.GenerateMermaid(sigs, opts), true
}

func (a *API) handleClearCache(w http.ResponseWriter, r *http.Request) {
	a.extractor.Cache().Clear(r.Context())
	a.logger.Info("signature cache cleared", "request_id", RequestID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) typeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("type"))
	if id == "" {
		a.writeError(w, r, http.StatusBadRequest, errors.New("type parameter is required"))
		return "", false
	}
	return a.expand(id), true
}

// writeExtractionError maps unknown types to 404 and every other extraction
// failure to 422.
func (a *API) writeExtractionError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusUnprocessableEntity
	if errors.Is(err, signature.ErrTypeNotFound) {
		status = http.StatusNotFound
	}
	a.writeError(w, r, status, err)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	a.logger.Debug("request failed", "status", status, "error", err, "request_id", RequestID(r.Context()))
	writeJSON(w, status, errorResponse{
		Error:     err.Error(),
		Code:      signature.ErrorCode(err),
		RequestID: RequestID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>gosignature</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background-color: #f8f9fa; color: #212529; padding: 1rem; }
    @media (prefers-color-scheme: dark) { body { background-color: #1a1a2e; color: #e0e0e0; } }
    h1 { font-size: 1.4rem; font-weight: 600; }
    .mermaid svg .nodeLabel { font-size: 18px !important; }
  </style>
</head>
<body>
  <h1>gosignature</h1>
  <pre class="mermaid">
{{.MermaidContent}}
  </pre>
  <script type="module">
    import mermaid from 'https://cdn.jsdelivr.net/npm/mermaid@11/dist/mermaid.esm.min.mjs';
    mermaid.initialize({ startOnLoad: true, securityLevel: 'strict' });
  </script>
</body>
</html>
`
