package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Bulksub/internal/domain"
	"github.com/shaiso/Bulksub/internal/ingest"
	"github.com/shaiso/Bulksub/internal/repo"
	"github.com/shaiso/Bulksub/internal/youtube"
)

// ListImports возвращает список runs.
// GET /api/v1/imports?status=RUNNING&limit=50&offset=0
func (h *Handler) ListImports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.RunFilter{
		Status: domain.RunStatus(q.Get("status")),
		Limit:  parseIntParam(q.Get("limit"), repo.DefaultListLimit),
		Offset: parseIntParam(q.Get("offset"), 0),
	}

	switch filter.Status {
	case "", domain.RunStatusPending, domain.RunStatusRunning, domain.RunStatusCompleted:
	default:
		BadRequest(w, "invalid status filter")
		return
	}

	runs, err := h.store.ListRuns(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// CreateImport создаёт run из загруженного списка каналов.
// POST /api/v1/imports
//
// Принимает multipart/form-data с полем "file", text/csv в теле запроса
// или JSON {"entries": [...]}.
func (h *Handler) CreateImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	entries, err := h.readEntries(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			Error(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "upload is too large")
		case errors.Is(err, errBadUpload):
			BadRequest(w, err.Error())
		default:
			HandleIngestError(w, h.logger, err)
		}
		return
	}

	run := domain.NewRun()
	run.CreatedAt = h.now()
	if err := h.store.CreateRun(r.Context(), run, entries); err != nil {
		HandleRepoError(w, h.logger, err, "")
		return
	}

	h.logger.Info("import created", "run_id", run.ID, "total", run.Total)
	Created(w, RunFromDomain(*run))
}

// GetImport возвращает статус run: счётчики, последние items, сводку ошибок и оценку квоты.
// GET /api/v1/imports/{id}
func (h *Handler) GetImport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	run, err := h.store.GetRun(ctx, id)
	if HandleRepoError(w, h.logger, err, "import not found") {
		return
	}

	recent, err := h.store.RecentItems(ctx, id, defaultRecentLimit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	counts, err := h.store.CountByRun(ctx, id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	resp := StatusResponse{
		Run:    RunFromDomain(*run),
		Recent: make([]ItemResponse, len(recent)),
		Retry:  RetryFromCounts(counts, h.controller.IsPaused(id)),
	}
	for i, item := range recent {
		resp.Recent[i] = ItemFromDomain(item)
	}
	if state, ok := h.controller.WorkerState(id); ok {
		resp.Retry.WorkerState = string(state)
	}

	now := h.now()
	since := youtube.NextQuotaReset(now).AddDate(0, 0, -1)
	succeeded, err := h.store.CountSucceededSince(ctx, since)
	if err != nil {
		h.logger.Warn("quota estimate failed", "run_id", id, "error", err)
	} else {
		est := youtube.EstimateQuota(succeeded, now)
		resp.Quota = &est
	}

	Success(w, resp)
}

// StartImport запускает (или перезапускает) воркер run.
// POST /api/v1/imports/{id}/start
func (h *Handler) StartImport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}
	if req.DelayMs < 0 {
		BadRequest(w, "delay_ms must not be negative")
		return
	}

	delay := time.Duration(req.DelayMs) * time.Millisecond
	if HandleControlError(w, h.logger, h.controller.Start(r.Context(), id, delay)) {
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "import not found") {
		return
	}

	Success(w, RunFromDomain(*run))
}

// PauseImport переключает паузу воркера.
// POST /api/v1/imports/{id}/pause
func (h *Handler) PauseImport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	paused, err := h.controller.TogglePause(id)
	if HandleControlError(w, h.logger, err) {
		return
	}

	Success(w, PauseResponse{Paused: paused})
}

// RetryQuotaErrors возвращает QUOTA ошибки run в PENDING.
// POST /api/v1/imports/{id}/retry-quota-errors
func (h *Handler) RetryQuotaErrors(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	n, err := h.controller.RetryQuotaErrors(r.Context(), id)
	if HandleControlError(w, h.logger, err) {
		return
	}

	Success(w, RetryResponse{Reset: n})
}

// AutoResume проверяет квоту и снимает quota-паузу, если окно восстановилось.
// POST /api/v1/imports/{id}/auto-resume
func (h *Handler) AutoResume(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	resumed, err := h.controller.AutoResumeCheck(r.Context(), id)
	if HandleControlError(w, h.logger, err) {
		return
	}

	Success(w, AutoResumeResponse{Resumed: resumed})
}

// --- Helpers ---

var errBadUpload = errors.New("expected multipart form with a file field, text/csv or application/json")

// readEntries читает и нормализует входной список в зависимости от Content-Type.
func (h *Handler) readEntries(r *http.Request) ([]domain.Entry, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, errBadUpload
	}

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(h.maxUpload); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, err
			}
			return nil, errBadUpload
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, errBadUpload
		}
		defer file.Close()
		return ingest.ParseCSV(file)

	case "text/csv":
		return ingest.ParseCSV(r.Body)

	case "application/json":
		var req CreateImportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, err
			}
			return nil, errBadUpload
		}
		return ingest.NormalizeEntries(req.Entries)

	default:
		return nil, errBadUpload
	}
}

// pathID парсит {id} из пути. При ошибке пишет 400 и возвращает false.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid import id")
		return uuid.Nil, false
	}
	return id, true
}

func parseIntParam(s string, defaultVal int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
