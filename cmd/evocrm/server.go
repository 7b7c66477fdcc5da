package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"evocrm/internal/constants"
	apperrors "evocrm/internal/errors"
	"evocrm/internal/middleware"
	"evocrm/internal/models"
	"evocrm/internal/service"
	"evocrm/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router     *mux.Router
	logger     *logrus.Logger
	cfg        *models.Config
	dispatcher *service.WebhookDispatcher
	history    *service.HistoryService
	relay      *service.RelayHub
	// tags resolves the current lifecycle tag list, following config reloads.
	tags   func() []string
	server *http.Server
}

func NewServer(cfg *models.Config, dispatcher *service.WebhookDispatcher, history *service.HistoryService, relay *service.RelayHub, tags func() []string, verbose bool, logger *logrus.Logger) *Server {
	if tags == nil {
		tags = func() []string { return cfg.LifecycleTags }
	}
	s := &Server{
		router:     mux.NewRouter(),
		logger:     logger,
		cfg:        cfg,
		dispatcher: dispatcher,
		history:    history,
		relay:      relay,
		tags:       tags,
	}

	s.router.Use(middleware.VerboseContext(verbose))
	s.router.Use(middleware.ObservabilityMiddleware(logger))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	webhook := s.router.PathPrefix("/webhook/evolution").Subrouter()
	webhook.HandleFunc("", s.handleWebhook()).Methods(http.MethodPost)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/tags", s.handleTags()).Methods(http.MethodGet)
	api.HandleFunc("/contacts", s.handleContacts()).Methods(http.MethodGet)
	api.HandleFunc("/contacts/{id:[0-9]+}/messages", s.handleContactMessages()).Methods(http.MethodGet)

	if s.relay != nil && s.cfg.Relay.Enabled {
		s.router.Handle("/ws", s.relay).Methods(http.MethodGet)
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(constants.DefaultServerReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(constants.DefaultServerWriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.relay != nil {
		s.relay.Shutdown()
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			s.logger.WithError(err).Warn("Failed to write health response")
		}
	}
}

// handleWebhook implements the gateway contract: every delivery that passes
// authentication is acknowledged with 200 regardless of the processing
// outcome, so the gateway never retries into a poison loop.
func (s *Server) handleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := verifySignature(r, s.cfg.Gateway.WebhookSecret, "X-Evolution-Signature")
		if err != nil {
			s.logger.WithError(err).WithField(
				service.LogFieldRequestID, tracing.GetRequestID(r.Context()),
			).Warn("Webhook signature verification failed")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var envelope models.WebhookEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			s.logger.WithError(err).Warn("Webhook body is not valid JSON, acknowledging anyway")
			s.writeAck(w)
			return
		}

		if err := s.dispatcher.Dispatch(r.Context(), &envelope); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				service.LogFieldEvent:    envelope.Event,
				service.LogFieldInstance: envelope.Instance,
			}).Warn("Webhook processing failed, acknowledging anyway")
		}

		s.writeAck(w)
	}
}

func (s *Server) writeAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(models.WebhookAck{Status: "success"}); err != nil {
		s.logger.WithError(err).Warn("Failed to write webhook ack")
	}
}

func (s *Server) handleTags() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, map[string]interface{}{"tags": s.tags()})
	}
}

func (s *Server) handleContacts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 0)
		offset := queryInt(r, "offset", 0)

		contacts, err := s.history.ListContacts(r.Context(), limit, offset)
		if err != nil {
			s.logger.WithError(err).Error("Contact listing failed")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		s.writeJSON(w, map[string]interface{}{"contacts": contacts})
	}
}

func (s *Server) handleContactMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contactID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			http.Error(w, "Invalid contact id", http.StatusBadRequest)
			return
		}

		before := int64(queryInt(r, "before", 0))
		limit := queryInt(r, "limit", 0)

		messages, err := s.history.ListMessages(r.Context(), contactID, before, limit)
		if err != nil {
			if apperrorsNotFound(err) {
				http.Error(w, "Contact not found", http.StatusNotFound)
				return
			}
			s.logger.WithError(err).Error("Message listing failed")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		s.writeJSON(w, map[string]interface{}{"messages": messages})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func apperrorsNotFound(err error) bool {
	return apperrors.GetCode(err) == apperrors.ErrCodeNotFound
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
