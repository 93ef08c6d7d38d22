package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/halftone-io/halftone/internal/apperror"
	"github.com/halftone-io/halftone/internal/metrics"
	"github.com/halftone-io/halftone/internal/model"
	"github.com/halftone-io/halftone/internal/processing"
)

type userResponse struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Username string    `json:"username"`
	Token    string    `json:"token,omitempty"`
}

type imageResponse struct {
	ID               uuid.UUID `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	SizeBytes        int64     `json:"size_bytes"`
	CreatedAt        time.Time `json:"created_at"`
}

type taskResponse struct {
	ID           uuid.UUID      `json:"id"`
	ImageID      uuid.UUID      `json:"image_id"`
	Status       string         `json:"status"`
	Config       configResponse `json:"config"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

type configResponse struct {
	ResizeEnabled    bool `json:"resize_enabled"`
	ResizePercentage int  `json:"resize_percentage,omitempty"`
	GrayscaleEnabled bool `json:"grayscale_enabled"`
}

func toImageResponse(img model.Image) imageResponse {
	return imageResponse{
		ID:               img.ID,
		OriginalFilename: img.OriginalFilename,
		ContentType:      img.ContentType,
		SizeBytes:        img.SizeBytes,
		CreatedAt:        img.CreatedAt,
	}
}

func toTaskResponse(task model.ProcessingTask) taskResponse {
	resp := taskResponse{
		ID:           task.ID,
		ImageID:      task.ImageID,
		Status:       string(task.Status),
		ErrorMessage: task.ErrorMessage,
		CreatedAt:    task.CreatedAt,
		CompletedAt:  task.CompletedAt,
	}
	if task.Config != nil {
		resp.Config = configResponse{
			ResizeEnabled:    task.Config.ResizeEnabled,
			ResizePercentage: task.Config.ResizePercentage,
			GrayscaleEnabled: task.Config.GrayscaleEnabled,
		}
	}
	return resp
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeJSONError(w, "bad_request", "email is required", http.StatusBadRequest)
		return
	}

	user, err := s.users.Create(r.Context(), model.User{
		ID:       uuid.New(),
		Email:    req.Email,
		Username: req.Username,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{
		ID:       user.ID,
		Email:    user.Email,
		Username: user.Username,
		Token:    token,
	})
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserID(r.Context())

	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		writeJSONError(w, "bad_request", "expected multipart form upload", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, "bad_request", "missing file field", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	img, err := s.images.Upload(r.Context(), userID, header.Filename, file)
	if err != nil {
		metrics.ImageUploadsTotal.WithLabelValues("error").Inc()
		if apperror.IsQuotaExceeded(err) {
			metrics.QuotaDenialsTotal.Inc()
		}
		writeError(w, r, err)
		return
	}

	metrics.ImageUploadsTotal.WithLabelValues("success").Inc()
	metrics.ImageUploadBytes.Observe(float64(img.SizeBytes))
	writeJSON(w, http.StatusCreated, toImageResponse(img))
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserID(r.Context())
	limit, offset := paging(r)

	out, err := s.images.List(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]imageResponse, 0, len(out))
	for _, img := range out {
		resp = append(resp, toImageResponse(img))
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": resp})
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserID(r.Context())
	imageID, err := uuid.Parse(chi.URLParam(r, "imageID"))
	if err != nil {
		writeError(w, r, apperror.ErrNotFound)
		return
	}

	img, err := s.images.Get(r.Context(), userID, imageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toImageResponse(img))
}

func (s *Server) handleImageDownloadURL(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserID(r.Context())
	imageID, err := uuid.Parse(chi.URLParam(r, "imageID"))
	if err != nil {
		writeError(w, r, apperror.ErrNotFound)
		return
	}

	url, err := s.images.DownloadURL(r.Context(), userID, imageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserID(r.Context())
	imageID, err := uuid.Parse(chi.URLParam(r, "imageID"))
	if err != nil {
		writeError(w, r, apperror.ErrNotFound)
		return
	}

	if err := s.images.Delete(r.Context(), userID, imageID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserID(r.Context())

	var req struct {
		ImageID          uuid.UUID `json:"image_id"`
		ResizeEnabled    bool      `json:"resize_enabled"`
		ResizePercentage int       `json:"resize_percentage"`
		GrayscaleEnabled bool      `json:"grayscale_enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "bad_request", "invalid request body", http.StatusBadRequest)
		return
	}

	task, err := s.processing.CreateTask(r.Context(), userID, processing.CreateTaskParams{
		ImageID:          req.ImageID,
		ResizeEnabled:    req.ResizeEnabled,
		ResizePercentage: req.ResizePercentage,
		GrayscaleEnabled: req.GrayscaleEnabled,
	})
	if err != nil {
		metrics.TasksCreatedTotal.WithLabelValues("rejected").Inc()
		if apperror.IsQuotaExceeded(err) {
			metrics.QuotaDenialsTotal.Inc()
		}
		writeError(w, r, err)
		return
	}

	metrics.TasksCreatedTotal.WithLabelValues("accepted").Inc()
	writeJSON(w, http.StatusAccepted, toTaskResponse(task))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserID(r.Context())
	limit, offset := paging(r)

	tasks, err := s.processing.ListTasks(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]taskResponse, 0, len(tasks))
	for _, task := range tasks {
		resp = append(resp, toTaskResponse(task))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": resp})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserID(r.Context())
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, r, apperror.ErrNotFound)
		return
	}

	task, err := s.processing.GetTask(r.Context(), userID, taskID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

func (s *Server) handleTaskResult(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserID(r.Context())
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, r, apperror.ErrNotFound)
		return
	}

	url, err := s.processing.ResultURL(r.Context(), userID, taskID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserID(r.Context())

	remaining, unlimited, err := s.ledger.Remaining(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"remaining": remaining,
		"unlimited": unlimited,
	})
}

func paging(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
