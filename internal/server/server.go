// Package server exposes the management API over JSON/HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/austindbirch/hookrelay/internal/auth"
	"github.com/austindbirch/hookrelay/internal/dispatch"
	"github.com/austindbirch/hookrelay/internal/event"
	"github.com/austindbirch/hookrelay/internal/logging"
	"github.com/austindbirch/hookrelay/internal/store"
)

const maxRequestBody = 1 << 20

// EventIngest accepts event occurrences for delivery. In production this is
// the NSQ publisher; tests and single-node deployments plug the dispatch
// coordinator in directly.
type EventIngest interface {
	PublishEvent(ctx context.Context, env event.Envelope) error
}

// Server wires the API routes.
type Server struct {
	svc       *dispatch.Service
	ingest    EventIngest
	validator *auth.Validator
	health    http.Handler
	metrics   http.Handler
	log       *logging.Logger
}

func New(svc *dispatch.Service, ingest EventIngest, validator *auth.Validator, health, metrics http.Handler, log *logging.Logger) *Server {
	return &Server{
		svc:       svc,
		ingest:    ingest,
		validator: validator,
		health:    health,
		metrics:   metrics,
		log:       log,
	}
}

// Handler returns the routed, authenticated HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events", s.handlePublishEvent)
	mux.HandleFunc("POST /v1/subscribers/{id}/test", s.handleTestSubscriber)
	mux.HandleFunc("GET /v1/subscribers/{id}/stats", s.handleSubscriberStats)
	mux.HandleFunc("GET /v1/deliveries/{id}", s.handleGetDelivery)
	mux.HandleFunc("POST /v1/deliveries/{id}/cancel", s.handleCancelDelivery)
	mux.Handle("GET /healthz", s.health)
	mux.Handle("GET /metrics", s.metrics)
	return s.validator.Middleware(mux)
}

type publishEventRequest struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

func (s *Server) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	var req publishEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	env := event.Envelope{
		EventID:     uuid.NewString(),
		Name:        req.Name,
		Payload:     req.Payload,
		PublishedAt: time.Now().UTC(),
	}
	if err := s.ingest.PublishEvent(r.Context(), env); err != nil {
		s.log.WithContext(r.Context()).WithEvent(req.Name).WithError(err).Error("publish event failed")
		writeError(w, http.StatusInternalServerError, "publish failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"event_id": env.EventID})
}

func (s *Server) handleTestSubscriber(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var payload map[string]any
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload == nil {
		payload = map[string]any{"test": true}
	}

	res, err := s.svc.Test(r.Context(), id, payload)
	if err != nil {
		s.writeServiceError(w, r, err, "test fire failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSubscriberStats(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	windowDays := 0
	if v := r.URL.Query().Get("window_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "window_days must be a non-negative integer")
			return
		}
		windowDays = n
	}

	report, err := s.svc.GetStats(r.Context(), id, windowDays)
	if err != nil {
		s.writeServiceError(w, r, err, "stats lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.GetDelivery(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err, "delivery lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCancelDelivery(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.Cancel(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err, "cancel failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"delivery_id": id, "status": "cancelled"})
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.log.WithContext(r.Context()).WithError(err).Error(msg)
	writeError(w, http.StatusInternalServerError, msg)
}

// decodeJSON tolerates an empty body, leaving dst at its zero value.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
