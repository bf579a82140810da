package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/roastd/internal/report"
	"github.com/JakeFAU/roastd/internal/roast"
	"github.com/JakeFAU/roastd/internal/voice"
)

type submitRequest struct {
	URL string `json:"url" validate:"required"`
}

type submitResponse struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) submitRoast(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}
	id, err := s.svc.Submit(r.Context(), req.URL)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusBadRequest {
			writeError(w, status, "Invalid URL format")
			return
		}
		s.logger.Error("submit roast failed", zap.Error(err))
		writeError(w, status, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{SessionID: id})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	sess, err := s.svc.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, roast.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	in, err := s.svc.ReportInput(r.Context(), id)
	switch {
	case errors.Is(err, roast.ErrNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
		return
	case errors.Is(err, roast.ErrNotComplete):
		writeError(w, http.StatusBadRequest, "Session not complete or analysis not available")
		return
	case err != nil:
		writeError(w, statusFor(err), err.Error())
		return
	}

	pdf, err := s.renderer.Render(in)
	if err != nil {
		s.logger.Error("render report failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate report")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename="+report.Filename(id))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		s.logger.Warn("write report failed", zap.Error(err))
	}
}

func (s *Server) getGallery(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := s.svc.Gallery(r.Context(), limit)
	if err != nil {
		s.logger.Error("gallery failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if entries == nil {
		entries = []roast.GalleryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) getSignedURL(w http.ResponseWriter, r *http.Request) {
	if s.voice == nil {
		writeError(w, http.StatusInternalServerError, "ElevenLabs configuration missing")
		return
	}
	signed, err := s.voice.SignedURL(r.Context())
	if err != nil {
		var upstream *voice.UpstreamError
		switch {
		case errors.Is(err, voice.ErrNotConfigured):
			writeError(w, http.StatusInternalServerError, "ElevenLabs configuration missing")
		case errors.As(err, &upstream):
			s.logger.Error("elevenlabs rejected signed url request",
				zap.Int("status", upstream.StatusCode),
				zap.String("body", upstream.Body),
			)
			writeError(w, upstream.StatusCode, "Failed to get signed URL from ElevenLabs")
		default:
			s.logger.Error("signed url request failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"signedUrl": signed})
}

type contextResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    contextData `json:"data"`
}

type contextData struct {
	Message string          `json:"message,omitempty"`
	Context json.RawMessage `json:"context,omitempty"`
}

func (s *Server) postContext(w http.ResponseWriter, r *http.Request) {
	var update voice.ContextUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := update.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conversation := update.ConversationID
	if conversation == "" {
		conversation = "none"
	}
	message := update.Message
	if message == "" {
		message = "variables update"
	}
	s.logger.Info("voice context update",
		zap.String("conversation_id", conversation),
		zap.String("message", message),
		zap.ByteString("context", update.Effective()),
		zap.Time("received_at", time.Now().UTC()),
	)
	writeJSON(w, http.StatusOK, contextResponse{
		Success: true,
		Message: "Context update logged successfully",
		Data:    contextData{Message: update.Message, Context: update.Effective()},
	})
}
