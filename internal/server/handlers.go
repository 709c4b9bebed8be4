package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/avatar-broker/internal/backend"
	"github.com/maauso/avatar-broker/internal/dispatch"
	"github.com/maauso/avatar-broker/internal/storage"
	"github.com/maauso/avatar-broker/internal/video"
)

// Enqueuer submits a video ID to the background worker pool and can abort a
// run already in flight.
type Enqueuer interface {
	Enqueue(videoID string) error
	CancelRun(videoID string) bool
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	repo      video.Repository
	store     storage.Storage
	queue     Enqueuer
	backends  []string
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance. backends lists the configured
// backend names reported by the health endpoint.
func NewHandlers(repo video.Repository, store storage.Storage, queue Enqueuer, backends []string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		repo:      repo,
		store:     store,
		queue:     queue,
		backends:  backends,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Backends: h.backends})
}

// CreateVideo handles POST /api/v1/videos requests. Inputs are stored, the
// record is persisted in pending state, and the run is enqueued for a
// background worker.
func (h *Handlers) CreateVideo(w http.ResponseWriter, r *http.Request) {
	var req CreateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	imageData, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil || len(imageData) == 0 {
		writeError(w, http.StatusBadRequest, "image_base64 is not valid base64", "INVALID_IMAGE")
		return
	}

	tier := backend.Tier(req.Tier)
	if req.Tier == "" {
		tier = backend.TierStandard
	}

	rec := video.New(req.UserID, tier)
	rec.TextInput = req.Text
	rec.Prompt = req.Prompt
	rec.Emotion = req.Emotion
	rec.Style = req.Style
	if req.Settings != nil {
		rec.Settings = req.Settings
	}

	imageKey := fmt.Sprintf("inputs/%s/images/%s.png", rec.UserID, rec.ID)
	imageURL, err := h.store.Upload(r.Context(), imageKey, "image/png", bytes.NewReader(imageData))
	if err != nil {
		h.logger.Error("failed to store reference image",
			slog.String("video_id", rec.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store image", "STORAGE_ERROR")
		return
	}
	rec.ImageURL = imageURL

	if req.AudioBase64 != "" {
		audioData, err := base64.StdEncoding.DecodeString(req.AudioBase64)
		if err != nil || len(audioData) == 0 {
			writeError(w, http.StatusBadRequest, "audio_base64 is not valid base64", "INVALID_AUDIO")
			return
		}
		audioKey := fmt.Sprintf("inputs/%s/audio/%s.wav", rec.UserID, rec.ID)
		audioURL, err := h.store.Upload(r.Context(), audioKey, "audio/wav", bytes.NewReader(audioData))
		if err != nil {
			h.logger.Error("failed to store audio",
				slog.String("video_id", rec.ID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to store audio", "STORAGE_ERROR")
			return
		}
		rec.AudioURL = audioURL
	}

	if err := h.repo.Save(r.Context(), rec); err != nil {
		h.logger.Error("failed to save record",
			slog.String("video_id", rec.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create request", "SAVE_FAILED")
		return
	}

	if err := h.queue.Enqueue(rec.ID); err != nil {
		if errors.Is(err, dispatch.ErrQueueFull) {
			_ = rec.Fail("rejected: worker queue is full")
			_ = h.repo.Save(r.Context(), rec)
			writeError(w, http.StatusServiceUnavailable, "server is busy, try again later", "QUEUE_FULL")
			return
		}
		h.logger.Error("failed to enqueue run",
			slog.String("video_id", rec.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to schedule request", "ENQUEUE_FAILED")
		return
	}

	h.logger.Info("video request accepted",
		slog.String("video_id", rec.ID),
		slog.String("user_id", rec.UserID),
		slog.String("tier", string(rec.Tier)),
	)

	writeJSON(w, http.StatusAccepted, CreateVideoResponse{
		ID:     rec.ID,
		Status: string(rec.Status),
	})
}

// GetVideo handles GET /api/v1/videos/{id} requests.
func (h *Handlers) GetVideo(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.findRecord(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toVideoResponse(rec))
}

// ListVideos handles GET /api/v1/videos requests.
func (h *Handlers) ListVideos(w http.ResponseWriter, r *http.Request) {
	recs, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list records",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list requests", "LIST_FAILED")
		return
	}

	resp := ListVideosResponse{Videos: make([]VideoResponse, 0, len(recs))}
	for _, rec := range recs {
		resp.Videos = append(resp.Videos, toVideoResponse(rec))
	}
	resp.Count = len(resp.Videos)

	writeJSON(w, http.StatusOK, resp)
}

// DownloadVideo handles GET /api/v1/videos/{id}/download requests. It streams
// the stored artifact for completed records.
func (h *Handlers) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.findRecord(w, r)
	if !ok {
		return
	}

	if rec.Status != video.StatusCompleted || rec.OutputVideoURL == "" {
		writeError(w, http.StatusConflict, "video is not completed", "NOT_COMPLETED")
		return
	}

	key, ok := h.store.KeyFromURL(rec.OutputVideoURL)
	if !ok {
		// The artifact lives outside this store (external URL); redirect.
		http.Redirect(w, r, rec.OutputVideoURL, http.StatusTemporaryRedirect)
		return
	}

	data, err := h.store.Download(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "video artifact not found", "ARTIFACT_NOT_FOUND")
			return
		}
		h.logger.Error("failed to read output video",
			slog.String("video_id", rec.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read video", "DOWNLOAD_FAILED")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.ID+".mp4"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// CancelVideo handles POST /api/v1/videos/{id}/cancel requests.
func (h *Handlers) CancelVideo(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.findRecord(w, r)
	if !ok {
		return
	}

	if err := rec.Cancel(); err != nil {
		if errors.Is(err, video.ErrAlreadyTerminal) {
			writeError(w, http.StatusConflict, "request is already finished", "ALREADY_TERMINAL")
			return
		}
		writeError(w, http.StatusConflict, err.Error(), "INVALID_TRANSITION")
		return
	}

	if err := h.repo.Save(r.Context(), rec); err != nil {
		if errors.Is(err, video.ErrTerminalConflict) {
			// The run finished between the load and this write.
			writeError(w, http.StatusConflict, "request is already finished", "ALREADY_TERMINAL")
			return
		}
		h.logger.Error("failed to save cancelled record",
			slog.String("video_id", rec.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel request", "SAVE_FAILED")
		return
	}

	// Abort the poll loop so the remote job is cancelled promptly instead of
	// running to completion. The record is already cancelled in the store, so
	// a run that slips through cannot overwrite it.
	if h.queue.CancelRun(rec.ID) {
		h.logger.Info("in-flight run aborted",
			slog.String("video_id", rec.ID),
		)
	}

	h.logger.Info("video request cancelled",
		slog.String("video_id", rec.ID),
	)
	writeJSON(w, http.StatusOK, toVideoResponse(rec))
}

// DeleteVideo handles DELETE /api/v1/videos/{id} requests. The record and its
// stored artifact are removed.
func (h *Handlers) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.findRecord(w, r)
	if !ok {
		return
	}

	if rec.OutputVideoURL != "" {
		if key, ok := h.store.KeyFromURL(rec.OutputVideoURL); ok {
			if _, err := h.store.Delete(r.Context(), key); err != nil {
				h.logger.Warn("failed to delete output artifact",
					slog.String("video_id", rec.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if err := h.repo.Delete(r.Context(), rec.ID); err != nil {
		if errors.Is(err, video.ErrNotFound) {
			writeError(w, http.StatusNotFound, "request not found", "NOT_FOUND")
			return
		}
		h.logger.Error("failed to delete record",
			slog.String("video_id", rec.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete request", "DELETE_FAILED")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// findRecord loads the record addressed by the {id} path value, writing the
// error response itself when it cannot.
func (h *Handlers) findRecord(w http.ResponseWriter, r *http.Request) (*video.Record, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "video ID is required", "MISSING_ID")
		return nil, false
	}

	rec, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, video.ErrNotFound) {
			writeError(w, http.StatusNotFound, "request not found", "NOT_FOUND")
			return nil, false
		}
		h.logger.Error("failed to load record",
			slog.String("video_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load request", "FETCH_FAILED")
		return nil, false
	}
	return rec, true
}

// toVideoResponse maps a record clone onto the response DTO.
func toVideoResponse(rec *video.Record) VideoResponse {
	resp := VideoResponse{
		ID:                rec.ID,
		UserID:            rec.UserID,
		Status:            string(rec.Status),
		Tier:              string(rec.Tier),
		Prompt:            rec.Prompt,
		Emotion:           rec.Emotion,
		Style:             rec.Style,
		OutputVideoURL:    rec.OutputVideoURL,
		Duration:          rec.Duration,
		Error:             rec.Error,
		Settings:          rec.Settings,
		CreatedAt:         rec.CreatedAt.Format(time.RFC3339),
		ProcessingSeconds: rec.ProcessingSeconds,
	}
	if !rec.StartedAt.IsZero() {
		resp.StartedAt = rec.StartedAt.Format(time.RFC3339)
	}
	if !rec.CompletedAt.IsZero() {
		resp.CompletedAt = rec.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
