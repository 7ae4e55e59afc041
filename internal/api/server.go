// Package api exposes the population service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/pimstack/aipopulate/internal/batchfile"
	"github.com/pimstack/aipopulate/internal/model"
	"github.com/pimstack/aipopulate/internal/populate"
	"github.com/pimstack/aipopulate/internal/settings"
)

// Populator is the service surface the API exposes.
type Populator interface {
	PopulateOne(ctx context.Context, req model.PopulateRequest) (*model.PopulateResponse, error)
	PopulateBatch(ctx context.Context, items []model.BatchItem[model.PopulateRequest], opts populate.BatchOptions) (*model.BatchResponse[model.PopulateResponse], error)
}

// Jobs is the read side of the batch job journal.
type Jobs interface {
	Get(ctx context.Context, id string) (*batchfile.JobRecord, error)
	List(ctx context.Context, limit int) ([]batchfile.JobRecord, error)
}

// SettingsAdmin reads and writes stored client settings.
type SettingsAdmin interface {
	Get(ctx context.Context, clientID string) (*settings.ClientSettings, error)
	Upsert(ctx context.Context, cs *settings.ClientSettings) error
}

// Invalidator drops a client's cached settings after a write.
type Invalidator interface {
	Invalidate(clientID string)
}

// Server handles the HTTP API.
type Server struct {
	populator Populator
	jobs      Jobs
	admin     SettingsAdmin
	cache     Invalidator
}

// NewServer wires the API handlers.
func NewServer(p Populator, jobs Jobs, admin SettingsAdmin, cache Invalidator) *Server {
	return &Server{populator: p, jobs: jobs, admin: admin, cache: cache}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/populate", s.handlePopulate)
		r.Post("/populate/batch", s.handlePopulateBatch)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{jobID}", s.handleGetJob)
		r.Get("/clients/{clientID}/settings", s.handleGetSettings)
		r.Put("/clients/{clientID}/settings", s.handlePutSettings)
	})

	return r
}

func (s *Server) handlePopulate(w http.ResponseWriter, r *http.Request) {
	var req model.PopulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.populator.PopulateOne(r.Context(), req)
	if err != nil {
		zap.L().Warn("populate request failed",
			zap.String("client_id", req.ClientID),
			zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type batchRequest struct {
	Async bool                                     `json:"async"`
	Items []model.BatchItem[model.PopulateRequest] `json:"items"`
}

func (s *Server) handlePopulateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items is required")
		return
	}

	resp, err := s.populator.PopulateBatch(r.Context(), req.Items, populate.BatchOptions{Async: req.Async})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := s.jobs.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	cs, err := s.admin.Get(r.Context(), clientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cs == nil {
		writeError(w, http.StatusNotFound, "no settings for client")
		return
	}
	writeJSON(w, http.StatusOK, settingsPayload{Config: cs.Config, Flows: cs.Flows})
}

type settingsPayload struct {
	Config settings.GenerationConfig         `json:"config"`
	Flows  map[string]*settings.FlowSettings `json:"flows"`
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")

	var payload settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(payload.Flows) == 0 {
		writeError(w, http.StatusBadRequest, "at least one flow is required")
		return
	}

	cs := &settings.ClientSettings{
		ClientID: clientID,
		Config:   payload.Config,
		Flows:    payload.Flows,
	}
	if err := s.admin.Upsert(r.Context(), cs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.cache.Invalidate(clientID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "client_id": clientID})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
