package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poyrazK/batchdns/internal/core/domain"
	"github.com/poyrazK/batchdns/internal/core/ports"
)

// APIHandler exposes the batch change, zone and record-set services over
// HTTP.
type APIHandler struct {
	batches    ports.BatchService
	zones      ports.ZoneService
	recordSets ports.RecordSetService
	records    ports.RecordCatalog
	auth       ports.AuthStore
	audit      ports.AuditStore
	health     map[string]ports.Pinger
}

// NewAPIHandler creates and returns a new APIHandler instance.
func NewAPIHandler(batches ports.BatchService, zones ports.ZoneService, recordSets ports.RecordSetService,
	records ports.RecordCatalog, auth ports.AuthStore, audit ports.AuditStore, health map[string]ports.Pinger) *APIHandler {
	return &APIHandler{
		batches:    batches,
		zones:      zones,
		recordSets: recordSets,
		records:    records,
		auth:       auth,
		audit:      audit,
		health:     health,
	}
}

// RegisterRoutes registers the API routes with the provided ServeMux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	// Public Routes
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /metrics", h.Metrics)

	// Middleware
	auth := AuthMiddleware(h.auth)
	write := RequireRole(domain.RoleAdmin)
	review := RequireRole(domain.RoleAdmin, domain.RoleReviewer)

	// Protected Routes
	mux.Handle("POST /batchrecordchanges", auth(write(http.HandlerFunc(h.SubmitBatch))))
	mux.Handle("GET /batchrecordchanges", auth(http.HandlerFunc(h.ListBatches)))
	mux.Handle("GET /batchrecordchanges/{id}", auth(http.HandlerFunc(h.GetBatch)))
	mux.Handle("POST /batchrecordchanges/{id}/approve", auth(review(http.HandlerFunc(h.ApproveBatch))))
	mux.Handle("POST /batchrecordchanges/{id}/reject", auth(review(http.HandlerFunc(h.RejectBatch))))

	mux.Handle("POST /zones", auth(write(http.HandlerFunc(h.CreateZone))))
	mux.Handle("GET /zones/{id}", auth(http.HandlerFunc(h.GetZone)))
	mux.Handle("PUT /zones/{id}", auth(write(http.HandlerFunc(h.UpdateZone))))

	mux.Handle("GET /zones/{id}/recordsets", auth(http.HandlerFunc(h.ListRecordSets)))
	mux.Handle("POST /zones/{id}/recordsets", auth(write(http.HandlerFunc(h.CreateRecordSet))))
	mux.Handle("GET /zones/{zone_id}/recordsets/{id}", auth(http.HandlerFunc(h.GetRecordSet)))
	mux.Handle("PUT /zones/{zone_id}/recordsets/{id}", auth(write(http.HandlerFunc(h.UpdateRecordSet))))
	mux.Handle("DELETE /zones/{zone_id}/recordsets/{id}", auth(write(http.HandlerFunc(h.DeleteRecordSet))))

	mux.Handle("GET /audit-logs", auth(http.HandlerFunc(h.ListAuditLogs)))
}

// Metrics handles Prometheus metrics scraping requests.
func (h *APIHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// HealthCheck reports connectivity to the registered dependencies.
func (h *APIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	details := make(map[string]string)
	for name, pinger := range h.health {
		if err := pinger.Ping(r.Context()); err != nil {
			status = "DEGRADED"
			details[name] = err.Error()
		} else {
			details[name] = "OK"
		}
	}

	resp := map[string]interface{}{
		"status":  status,
		"details": details,
	}

	w.Header().Set("Content-Type", "application/json")
	if status == "DEGRADED" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("failed to encode health check response: %v", err)
	}
}

func (h *APIHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user context", http.StatusUnauthorized)
		return
	}

	var input domain.BatchChangeInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := h.batches.Submit(r.Context(), user, &input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, batch)
}

func (h *APIHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user context", http.StatusUnauthorized)
		return
	}

	batch, err := h.batches.Get(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *APIHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user context", http.StatusUnauthorized)
		return
	}

	summaries, err := h.batches.List(r.Context(), user)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if summaries == nil {
		summaries = []domain.BatchSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

type reviewRequest struct {
	Comment string `json:"comment"`
}

func (h *APIHandler) ApproveBatch(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.batches.Approve)
}

func (h *APIHandler) RejectBatch(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.batches.Reject)
}

func (h *APIHandler) review(w http.ResponseWriter, r *http.Request,
	decide func(ctx context.Context, user *domain.User, id, comment string) (*domain.BatchChange, error)) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user context", http.StatusUnauthorized)
		return
	}

	var req reviewRequest
	if r.Body != nil {
		// An empty body means a decision without a comment.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeErrors(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	batch, err := decide(r.Context(), user, r.PathValue("id"), req.Comment)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *APIHandler) CreateZone(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user context", http.StatusUnauthorized)
		return
	}

	var zone domain.Zone
	if err := json.NewDecoder(r.Body).Decode(&zone); err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	change, err := h.zones.Create(r.Context(), user, &zone)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, change)
}

func (h *APIHandler) GetZone(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user context", http.StatusUnauthorized)
		return
	}

	zone, err := h.zones.Get(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

func (h *APIHandler) UpdateZone(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user context", http.StatusUnauthorized)
		return
	}

	var zone domain.Zone
	if err := json.NewDecoder(r.Body).Decode(&zone); err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}
	zone.ID = r.PathValue("id")

	change, err := h.zones.Update(r.Context(), user, &zone)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (h *APIHandler) ListRecordSets(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserFromContext(r.Context()); !ok {
		http.Error(w, "Unauthorized: missing user context", http.StatusUnauthorized)
		return
	}

	sets, err := h.records.ListRecordSets(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if sets == nil {
		sets = []domain.RecordSet{}
	}
	writeJSON(w, http.StatusOK, sets)
}

func (h *APIHandler) CreateRecordSet(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user context", http.StatusUnauthorized)
		return
	}

	var rs domain.RecordSet
	if err := json.NewDecoder(r.Body).Decode(&rs); err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	change, err := h.recordSets.Create(r.Context(), user, r.PathValue("id"), &rs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, change)
}

func (h *APIHandler) GetRecordSet(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user context", http.StatusUnauthorized)
		return
	}

	rs, err := h.recordSets.Get(r.Context(), user, r.PathValue("zone_id"), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (h *APIHandler) UpdateRecordSet(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user context", http.StatusUnauthorized)
		return
	}

	var rs domain.RecordSet
	if err := json.NewDecoder(r.Body).Decode(&rs); err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}
	rs.ID = r.PathValue("id")

	change, err := h.recordSets.Update(r.Context(), user, r.PathValue("zone_id"), &rs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (h *APIHandler) DeleteRecordSet(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user context", http.StatusUnauthorized)
		return
	}

	change, err := h.recordSets.Delete(r.Context(), user, r.PathValue("zone_id"), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

// ListAuditLogs retrieves audit entries for the calling user.
func (h *APIHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user context", http.StatusUnauthorized)
		return
	}

	logs, err := h.audit.GetAuditLogs(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if logs == nil {
		logs = []domain.AuditLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeErrors(w http.ResponseWriter, code int, msgs ...string) {
	writeJSON(w, code, map[string][]string{"errors": msgs})
}

// writeServiceError maps service failures to transport codes. A
// BatchRejection keeps its full per-change body so callers can see exactly
// which changes failed and why.
func writeServiceError(w http.ResponseWriter, err error) {
	var rejection *domain.BatchRejection
	if errors.As(err, &rejection) {
		writeJSON(w, http.StatusBadRequest, rejection)
		return
	}
	var reqErrs *domain.RequestErrors
	if errors.As(err, &reqErrs) {
		writeJSON(w, http.StatusBadRequest, reqErrs)
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeErrors(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeErrors(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeErrors(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrBatchTooLarge):
		writeErrors(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, domain.ErrUnprocessable), errors.Is(err, domain.ErrInvalidState):
		writeErrors(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeErrors(w, http.StatusInternalServerError, err.Error())
	}
}
