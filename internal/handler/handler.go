// Package handler exposes the orchestrator over HTTP: the inbound message
// webhook, the payment confirmation webhook and the reset endpoint.
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"careline-agent/internal/usecase"
)

// Orchestrator is the pipeline surface the webhook needs.
type Orchestrator interface {
	ProcessMessage(ctx context.Context, identity, text string) error
	ConfirmPayment(ctx context.Context, identity string) error
	Reset(ctx context.Context, identity string) error
}

type messageRequest struct {
	Identity string `json:"identity"`
	Text     string `json:"text"`
}

type identityRequest struct {
	Identity string `json:"identity"`
}

// Handler serves the webhook endpoints.
type Handler struct {
	orchestrator Orchestrator
	token        string
	logger       *slog.Logger
}

// Option configures New.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// New builds a Handler. token is the shared bearer token the channel provider
// sends on every webhook call.
func New(orchestrator Orchestrator, token string, opts ...Option) (*Handler, error) {
	if orchestrator == nil {
		return nil, errors.New("handler: orchestrator must not be nil")
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("handler: webhook token must not be empty")
	}
	h := &Handler{
		orchestrator: orchestrator,
		token:        token,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Router returns the HTTP mux with every endpoint mounted.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("POST /webhook/message", h.authorized(h.handleMessage))
	mux.HandleFunc("POST /webhook/payment", h.authorized(h.handlePayment))
	mux.HandleFunc("POST /reset", h.authorized(h.handleReset))
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	err := h.orchestrator.ProcessMessage(r.Context(), req.Identity, req.Text)
	h.respond(w, r, err)
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	err := h.orchestrator.ConfirmPayment(r.Context(), req.Identity)
	h.respond(w, r, err)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	err := h.orchestrator.Reset(r.Context(), req.Identity)
	h.respond(w, r, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "err", err)
	} else {
		h.logger.Warn("request rejected", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// authorized wraps an endpoint with the shared bearer token check.
func (h *Handler) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

func statusFor(err error) int {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		switch ucErr.Code {
		case usecase.ErrorInvalidInput:
			return http.StatusBadRequest
		case usecase.ErrorUpstream:
			return http.StatusBadGateway
		case usecase.ErrorStore, usecase.ErrorInternal:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
