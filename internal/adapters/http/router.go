// Package httpadapter exposes the back-office API. Every mutating endpoint
// identifies the acting operator through the X-User-Id header; uploads are
// accepted with 202 and processed by background tasks.
package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
	"github.com/mvribeiro/protesto-backoffice/internal/core/ports"
	"github.com/mvribeiro/protesto-backoffice/internal/observability/metrics"
)

const userIDHeader = "X-User-Id"

type Router struct {
	ingestor      ports.BatchIngestor
	withdrawals   ports.WithdrawalService
	cancellations ports.CancellationService
	resolver      ports.ErrorResolver
	reports       ports.ReportExporter
	tasks         ports.TaskRunner
	store         ports.Store
	httpMetrics   *metrics.HTTPServerMetrics
	log           *slog.Logger
}

func NewRouter(
	ingestor ports.BatchIngestor,
	withdrawals ports.WithdrawalService,
	cancellations ports.CancellationService,
	resolver ports.ErrorResolver,
	reports ports.ReportExporter,
	tasks ports.TaskRunner,
	store ports.Store,
	httpMetrics *metrics.HTTPServerMetrics,
	log *slog.Logger,
) *Router {
	return &Router{
		ingestor:      ingestor,
		withdrawals:   withdrawals,
		cancellations: cancellations,
		resolver:      resolver,
		reports:       reports,
		tasks:         tasks,
		store:         store,
		httpMetrics:   httpMetrics,
		log:           log,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("GET /metrics", rt.httpMetrics.Handler())

	mux.HandleFunc("POST /v1/upload/batch", rt.uploadBatch)
	mux.HandleFunc("POST /v1/upload/cancellation", rt.uploadCancellation)

	mux.HandleFunc("GET /v1/batches/stats", rt.batchStats)
	mux.HandleFunc("GET /v1/batches/by-task/{task_id}", rt.batchByTask)
	mux.HandleFunc("GET /v1/batches/{id}", rt.getBatch)
	mux.HandleFunc("GET /v1/batches/{id}/titles", rt.batchTitles)
	mux.HandleFunc("GET /v1/batches/{id}/errors", rt.batchErrors)

	mux.HandleFunc("GET /v1/titles", rt.listTitles)
	mux.HandleFunc("GET /v1/titles/{id}", rt.getTitle)

	mux.HandleFunc("GET /v1/cancellations/example", rt.cancellationExample)
	mux.HandleFunc("GET /v1/cancellations/{id}", rt.getAuthorization)
	mux.HandleFunc("GET /v1/cancellations/{id}/transactions", rt.listTransactions)
	mux.HandleFunc("POST /v1/cancellations/transactions/{id}/process", rt.processTransaction)

	mux.HandleFunc("POST /v1/withdrawals", rt.createWithdrawal)
	mux.HandleFunc("GET /v1/withdrawals/stats", rt.withdrawalStats)
	mux.HandleFunc("GET /v1/withdrawals/{id}", rt.getWithdrawal)
	mux.HandleFunc("POST /v1/withdrawals/{id}/approve", rt.approveWithdrawal)
	mux.HandleFunc("POST /v1/withdrawals/{id}/reject", rt.rejectWithdrawal)

	mux.HandleFunc("GET /v1/errors", rt.listErrors)
	mux.HandleFunc("POST /v1/errors/{id}/resolve", rt.resolveError)

	mux.HandleFunc("GET /v1/reports/titles.xlsx", rt.titlesReport)

	mux.HandleFunc("GET /v1/tasks", rt.listTasks)
	mux.HandleFunc("GET /v1/tasks/pending", rt.listActiveTasks)
	mux.HandleFunc("GET /v1/tasks/{task_id}", rt.getTask)

	handler := rt.httpMetrics.Middleware("server", mux)
	handler = accessLogMiddleware(rt.log, handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadBatch(w http.ResponseWriter, r *http.Request) {
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("multipart field 'file' is required"))
		return
	}
	defer file.Close()

	kind, ok := parseBatchKind(r.FormValue("kind"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("field 'kind' must be Remittance or Withdrawal"))
		return
	}

	batch, err := rt.ingestor.UploadBatch(
		r.Context(),
		actingUserID(r),
		fileHeader.Filename,
		file,
		r.FormValue("state_code"),
		kind,
		r.FormValue("description"),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, batch)
}

func (rt *Router) uploadCancellation(w http.ResponseWriter, r *http.Request) {
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("multipart field 'file' is required"))
		return
	}
	defer file.Close()

	auth, err := rt.ingestor.UploadCancellation(r.Context(), actingUserID(r), fileHeader.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, auth)
}

func (rt *Router) getBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	batch, err := rt.store.GetBatch(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (rt *Router) batchByTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	batch, err := rt.store.FindBatchByTask(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (rt *Router) batchStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.store.BatchStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) batchTitles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := rt.store.GetBatch(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	titles, err := rt.store.ListBatchTitles(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"titles": emptyWhenNil(titles)})
}

func (rt *Router) batchErrors(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := rt.store.GetBatch(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	errs, err := rt.store.ListBatchErrors(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": emptyWhenNil(errs)})
}

func (rt *Router) listTitles(w http.ResponseWriter, r *http.Request) {
	titles, err := rt.store.ListTitles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"titles": emptyWhenNil(titles)})
}

func (rt *Router) getTitle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	title, err := rt.store.GetTitle(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, title)
}

func (rt *Router) cancellationExample(w http.ResponseWriter, _ *http.Request) {
	body, name := rt.cancellations.ExampleFile()
	w.Header().Set("Content-Type", "text/plain; charset=ISO-8859-1")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (rt *Router) getAuthorization(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	auth, err := rt.store.GetAuthorization(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auth)
}

func (rt *Router) listTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := rt.store.GetAuthorization(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	txns, err := rt.store.ListTransactions(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": emptyWhenNil(txns)})
}

func (rt *Router) processTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	txn, err := rt.cancellations.ProcessTransaction(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (rt *Router) createWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TitleID int64  `json:"title_id"`
		Reason  string `json:"reason"`
		Notes   string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json"))
		return
	}

	wd, err := rt.withdrawals.Create(r.Context(), actingUserID(r), req.TitleID, req.Reason, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

func (rt *Router) getWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	wd, err := rt.store.GetWithdrawal(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

func (rt *Router) withdrawalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.store.WithdrawalStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) approveWithdrawal(w http.ResponseWriter, r *http.Request) {
	rt.decideWithdrawal(w, r, true)
}

func (rt *Router) rejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	rt.decideWithdrawal(w, r, false)
}

func (rt *Router) decideWithdrawal(w http.ResponseWriter, r *http.Request, approve bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Note string `json:"note"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid json"))
			return
		}
	}

	wd, err := rt.withdrawals.Decide(r.Context(), actingUserID(r), id, approve, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

func (rt *Router) listErrors(w http.ResponseWriter, r *http.Request) {
	var resolved *bool
	if raw := r.URL.Query().Get("resolved"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'resolved' must be a boolean"))
			return
		}
		resolved = &v
	}

	errs, err := rt.store.ListIngestErrors(r.Context(), resolved)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": emptyWhenNil(errs)})
}

func (rt *Router) resolveError(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json"))
		return
	}

	e, err := rt.resolver.Resolve(r.Context(), actingUserID(r), id, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (rt *Router) titlesReport(w http.ResponseWriter, r *http.Request) {
	body, err := rt.reports.TitlesXLSX(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="titulos.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (rt *Router) listTasks(w http.ResponseWriter, r *http.Request) {
	state := domain.TaskState(r.URL.Query().Get("state"))
	switch state {
	case "", domain.TaskPending, domain.TaskRunning, domain.TaskCompleted, domain.TaskFailed:
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("unknown task state"))
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'limit' must be a non-negative integer"))
			return
		}
		limit = v
	}

	writeJSON(w, http.StatusOK, map[string]any{"tasks": rt.tasks.List(state, limit)})
}

func (rt *Router) listActiveTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tasks": rt.tasks.ListActive()})
}

func (rt *Router) getTask(w http.ResponseWriter, r *http.Request) {
	status, ok := rt.tasks.Status(r.PathValue("task_id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("task not found"))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func actingUserID(r *http.Request) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(userIDHeader)), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func parseBatchKind(raw string) (domain.BatchKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "remittance", "remessa":
		return domain.KindRemittance, true
	case "withdrawal", "desistencia":
		return domain.KindWithdrawal, true
	default:
		return "", false
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("path parameter '"+name+"' must be a positive integer"))
		return 0, false
	}
	return id, true
}

// emptyWhenNil keeps list payloads as [] instead of null.
func emptyWhenNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), errorBody(err.Error()))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
