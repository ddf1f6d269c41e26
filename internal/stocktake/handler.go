package stocktake

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler exposes stocktake sessions and tasks over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the stocktake HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stocktake endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/stocktakes", func(r chi.Router) {
		r.Get("/", h.handleListSessions)
		r.Post("/", h.handleCreateSession)
		r.Get("/{id}", h.handleGetSession)
		r.Post("/{id}/close", h.handleCloseSession)
		r.Get("/{id}/progress", h.handleProgress)
		r.Get("/{id}/tasks", h.handleListTasks)
		r.Post("/{id}/tasks", h.handleCreateTask)
		r.Delete("/{id}/tasks/{taskID}", h.handleRemoveTask)
		r.Post("/{id}/tasks/{taskID}/start", h.handleStartTask)
		r.Post("/{id}/tasks/{taskID}/complete", h.handleCompleteTask)
		r.Post("/{id}/tasks/{taskID}/cancel", h.handleCancelTask)
	})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	req := ListSessionsRequest{Limit: queryInt(r, "limit", 100), Offset: queryInt(r, "offset", 0)}
	if v := r.URL.Query().Get("status"); v != "" {
		status := SessionStatus(v)
		req.Status = &status
	}
	sessions, err := h.service.ListSessions(r.Context(), req)
	if err != nil {
		h.logger.Error("list stocktake sessions failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	session, err := h.service.CreateSession(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid session id")
		return
	}
	session, err := h.service.GetSession(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid session id")
		return
	}
	session, err := h.service.CloseSession(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid session id")
		return
	}
	progress, err := h.service.Progress(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, progress)
}

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid session id")
		return
	}
	req := ListTasksRequest{}
	if v := r.URL.Query().Get("status"); v != "" {
		status := TaskStatus(v)
		req.Status = &status
	}
	if v := r.URL.Query().Get("product_id"); v != "" {
		if pid, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.ProductID = &pid
		}
	}
	tasks, err := h.service.ListTasks(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tasks)
}

func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid session id")
		return
	}
	var req CreateTaskRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	task, err := h.service.CreateTask(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, task)
}

func (h *Handler) handleRemoveTask(w http.ResponseWriter, r *http.Request) {
	id, taskID, ok := sessionTaskIDs(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveTask(r.Context(), id, taskID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStartTask(w http.ResponseWriter, r *http.Request) {
	id, taskID, ok := sessionTaskIDs(w, r)
	if !ok {
		return
	}
	task, err := h.service.StartTask(r.Context(), id, taskID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	id, taskID, ok := sessionTaskIDs(w, r)
	if !ok {
		return
	}
	var req CompleteTaskRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	task, err := h.service.CompleteTask(r.Context(), id, taskID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id, taskID, ok := sessionTaskIDs(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	task, err := h.service.CancelTask(r.Context(), id, taskID, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func sessionTaskIDs(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid session id")
		return 0, 0, false
	}
	taskID, err := pathID(r, "taskID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid task id")
		return 0, 0, false
	}
	return id, taskID, true
}

func pathID(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, key), 10, 64)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
