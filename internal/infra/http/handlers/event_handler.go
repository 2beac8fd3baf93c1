package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xavierca1/lead-pipeline/internal/entity"
	"github.com/xavierca1/lead-pipeline/internal/usecase"
)

const maxPayloadBytes = 1 << 20

type EventIngester interface {
	Execute(ctx context.Context, input usecase.IngestEventInput) (*usecase.IngestEventOutput, error)
}

type EventStatusReader interface {
	Get(ctx context.Context, eventID string) (*entity.RawEvent, error)
	Replay(ctx context.Context, eventID string) (*usecase.IngestEventOutput, error)
}

type EventHandler struct {
	ingest      EventIngester
	status      EventStatusReader
	rateLimiter *RateLimiter
	logger      *zap.Logger
}

func NewEventHandler(ingest EventIngester, status EventStatusReader, rateLimiter *RateLimiter, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		ingest:      ingest,
		status:      status,
		rateLimiter: rateLimiter,
		logger:      logger,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Ingest stores a provider payload and queues it for the pipeline.
// POST /v1/workspaces/{workspaceID}/events
func (h *EventHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	if h.rateLimiter != nil && !h.rateLimiter.Allow(getClientIP(r)) {
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Error:   "RATE_LIMITED",
			Message: "Too many requests. Please try again later.",
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "INVALID_BODY", Message: "could not read request body"})
		return
	}
	if len(body) > maxPayloadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "PAYLOAD_TOO_LARGE"})
		return
	}

	source := r.Header.Get("X-Source")
	if source == "" {
		source = r.URL.Query().Get("source")
	}

	out, err := h.ingest.Execute(r.Context(), usecase.IngestEventInput{
		WorkspaceID: chi.URLParam(r, "workspaceID"),
		Source:      source,
		PartnerID:   r.Header.Get("X-Partner-ID"),
		Payload:     body,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, out)
}

type EventStatusResponse struct {
	EventID       string     `json:"event_id"`
	WorkspaceID   string     `json:"workspace_id"`
	Source        string     `json:"source"`
	Processed     bool       `json:"processed"`
	OutcomeReason string     `json:"outcome_reason,omitempty"`
	IdentityID    string     `json:"identity_id,omitempty"`
	LeadID        string     `json:"lead_id,omitempty"`
	Error         string     `json:"error,omitempty"`
	Attempts      int        `json:"attempts"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
}

// Status reports where an event is in the pipeline.
// GET /v1/events/{eventID}
func (h *EventHandler) Status(w http.ResponseWriter, r *http.Request) {
	e, err := h.status.Get(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, EventStatusResponse{
		EventID:       e.ID,
		WorkspaceID:   e.WorkspaceID,
		Source:        e.Source,
		Processed:     e.Processed,
		OutcomeReason: string(e.OutcomeReason),
		IdentityID:    e.IdentityID,
		LeadID:        e.LeadID,
		Error:         e.Error,
		Attempts:      e.Attempts,
		CreatedAt:     e.CreatedAt,
		ProcessedAt:   e.ProcessedAt,
	})
}

// Replay requeues an open event. POST /v1/events/{eventID}/replay
func (h *EventHandler) Replay(w http.ResponseWriter, r *http.Request) {
	out, err := h.status.Replay(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, out)
}

func (h *EventHandler) writeError(w http.ResponseWriter, err error) {
	var de *usecase.DomainError
	if errors.As(err, &de) {
		status := http.StatusBadRequest
		if de.Code == "EVENT_NOT_FOUND" {
			status = http.StatusNotFound
		}
		writeJSON(w, status, ErrorResponse{Error: de.Code, Message: de.Message})
		return
	}

	h.logger.Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "INTERNAL_ERROR"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
