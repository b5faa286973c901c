package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/miradorstack/mirador-alarmcorr/internal/engine"
	"github.com/miradorstack/mirador-alarmcorr/internal/ingest"
	"github.com/miradorstack/mirador-alarmcorr/internal/models"
	"github.com/miradorstack/mirador-alarmcorr/internal/store"
)

const maxBodyBytes = 4 << 20

// Backend is what the HTTP surface needs from the correlation service.
type Backend interface {
	Ingest(ctx context.Context, ev models.Event) (engine.Decision, error)
	Incidents(filter models.IncidentFilter) []models.Incident
	Incident(id string) (models.Incident, error)
	Stats() Stats
}

// Stats is returned by GET /v1/stats. Watermark is nil until the first event.
type Stats struct {
	store.Stats
	WindowEvents     int                   `json:"window_events"`
	WindowSeconds    int64                 `json:"window_seconds"`
	Watermark        *int64                `json:"watermark,omitempty"`
	Pending          map[models.Domain]int `json:"pending"`
	IngestP95Seconds float64               `json:"ingest_p95_seconds"`
}

// AnalyticsView is returned by GET /v1/analytics.
type AnalyticsView struct {
	VendorCounts      map[models.Vendor]int `json:"vendor_counts"`
	DomainCounts      map[models.Domain]int `json:"domain_counts"`
	TotalIncidents    int                   `json:"total_incidents"`
	OpenIncidents     int                   `json:"open_incidents"`
	CorrelatedCount   int                   `json:"correlated_count"`
	SingleDomainCount int                   `json:"single_domain_count"`
	NormalizedCount   int                   `json:"normalized_count"`
	NetworkHealth     string                `json:"network_health"`
}

// NewAnalyticsView summarises store counters for dashboards.
func NewAnalyticsView(st store.Stats) AnalyticsView {
	view := AnalyticsView{
		VendorCounts:      st.ByVendor,
		DomainCounts:      st.ByDomain,
		TotalIncidents:    st.Total(),
		OpenIncidents:     st.Open,
		CorrelatedCount:   st.Correlated,
		SingleDomainCount: st.SingleDomain,
		NormalizedCount:   st.Events,
		NetworkHealth:     st.Health(),
	}
	if view.VendorCounts == nil {
		view.VendorCounts = map[models.Vendor]int{}
	}
	if view.DomainCounts == nil {
		view.DomainCounts = map[models.Domain]int{}
	}
	return view
}

// HTTPHandler serves the JSON ingest and incident read endpoints.
type HTTPHandler struct {
	backend Backend
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewHTTPHandler wires the routes.
func NewHTTPHandler(backend Backend, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HTTPHandler{backend: backend, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /v1/events", h.postEvents)
	h.mux.HandleFunc("GET /v1/incidents", h.listIncidents)
	h.mux.HandleFunc("GET /v1/incidents/{id}", h.getIncident)
	h.mux.HandleFunc("GET /v1/stats", h.stats)
	h.mux.HandleFunc("GET /v1/analytics", h.analytics)
	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return h
}

// ServeHTTP implements http.Handler.
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *HTTPHandler) postEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	events, err := ingest.DecodeBatch(body)
	if err != nil {
		h.logger.Warn("rejected event payload", slog.Any("error", err))
		h.writeError(w, HTTPStatus(err), err)
		return
	}

	decisions := make([]DecisionView, 0, len(events))
	for i, ev := range events {
		decision, err := h.backend.Ingest(r.Context(), ev)
		if err != nil {
			code := HTTPStatus(err)
			if code >= http.StatusInternalServerError {
				h.logger.Error("request failed", slog.Int("status", code), slog.Int("failed_index", i), slog.Any("error", err))
			}
			// decisions holds every event committed before the failure.
			writeJSON(w, code, map[string]any{
				"error":        err.Error(),
				"failed_index": i,
				"decisions":    decisions,
			})
			return
		}
		decisions = append(decisions, NewDecisionView(decision))
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"decisions": decisions})
}

func (h *HTTPHandler) listIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := models.ParseIncidentFilter(q.Get("status"), q.Get("scope"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	incidents := h.backend.Incidents(filter)
	views := make([]IncidentView, 0, len(incidents))
	for _, inc := range incidents {
		views = append(views, NewIncidentView(inc))
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": views, "count": len(views)})
}

func (h *HTTPHandler) getIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.backend.Incident(r.PathValue("id"))
	if err != nil {
		h.writeError(w, HTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, NewIncidentView(inc))
}

func (h *HTTPHandler) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.backend.Stats())
}

func (h *HTTPHandler) analytics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NewAnalyticsView(h.backend.Stats().Stats))
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", slog.Int("status", code), slog.Any("error", err))
	}
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		slog.Default().Debug("write response", slog.Any("error", err))
	}
}
