package diag

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/moogar0880/problems"

	"github.com/cschleiden/go-wfnet/core"
)

const problemContentType = "application/problem+json"

// NewServeMux returns an *http.ServeMux that serves the read-only diagnostics API:
//
//	GET /api/instances/{id}         state of a workflow instance
//	GET /api/instances/{id}/tree    the workflow tree the instance belongs to
//	GET /api/traces/{id}            trace summary
//	GET /api/traces/{id}/spans      all spans of the trace
//	GET /api/traces/{id}/state?at=  state replayed from the trace as of an RFC 3339 time
func NewServeMux(e Engine, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	h := &handlers{e: e, logger: logger}

	mux.HandleFunc("GET /api/instances/{id}", h.instance)
	mux.HandleFunc("GET /api/instances/{id}/tree", h.tree)
	mux.HandleFunc("GET /api/traces/{id}", h.trace)
	mux.HandleFunc("GET /api/traces/{id}/spans", h.spans)
	mux.HandleFunc("GET /api/traces/{id}/state", h.state)

	return mux
}

type handlers struct {
	e      Engine
	logger *slog.Logger
}

func (h *handlers) instance(w http.ResponseWriter, r *http.Request) {
	d, err := h.e.GetWorkflowInstanceDetails(r.Context(), r.PathValue("id"))
	if err != nil {
		h.error(w, r, err)
		return
	}

	h.json(w, r, d)
}

func (h *handlers) tree(w http.ResponseWriter, r *http.Request) {
	t, err := buildInstanceTree(r.Context(), h.e, r.PathValue("id"))
	if err != nil {
		h.error(w, r, err)
		return
	}

	h.json(w, r, t)
}

func (h *handlers) trace(w http.ResponseWriter, r *http.Request) {
	t, err := h.e.GetTrace(r.Context(), r.PathValue("id"))
	if err != nil {
		h.error(w, r, err)
		return
	}

	h.json(w, r, t)
}

func (h *handlers) spans(w http.ResponseWriter, r *http.Request) {
	spans, err := h.e.GetSpans(r.Context(), r.PathValue("id"))
	if err != nil {
		h.error(w, r, err)
		return
	}

	h.json(w, r, spans)
}

func (h *handlers) state(w http.ResponseWriter, r *http.Request) {
	at := time.Now()

	if v := r.URL.Query().Get("at"); v != "" {
		var err error
		at, err = time.Parse(time.RFC3339Nano, v)
		if err != nil {
			h.problem(w, r, problems.NewStatusProblem(http.StatusBadRequest).
				WithType("validation_error").
				WithDetail(fmt.Sprintf("invalid time %q, expected RFC 3339", v)))
			return
		}
	}

	s, err := h.e.StateAt(r.Context(), r.PathValue("id"), at)
	if err != nil {
		h.error(w, r, err)
		return
	}

	h.json(w, r, s)
}

func (h *handlers) json(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.ErrorContext(r.Context(), "encoding response", "error", err)
	}
}

func (h *handlers) error(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		h.problem(w, r, problems.NewStatusProblem(http.StatusNotFound).
			WithType("not_found").
			WithDetail(err.Error()))

	default:
		h.logger.ErrorContext(r.Context(), "serving diagnostics request", "path", r.URL.Path, "error", err)

		h.problem(w, r, problems.NewStatusProblem(http.StatusInternalServerError).
			WithType("internal_error").
			WithError(err))
	}
}

func (h *handlers) problem(w http.ResponseWriter, r *http.Request, p *problems.Problem) {
	p = p.WithInstance(r.URL.Path)

	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		h.logger.ErrorContext(r.Context(), "encoding problem", "error", err)
	}
}
