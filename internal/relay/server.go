package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/v0xg/pagepilot/internal/logger"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse represents a success response with a message.
type SuccessResponse struct {
	Message string `json:"message"`
}

// Server exposes the relay over HTTP
type Server struct {
	relay *Relay
	log   logger.Logger
	ctx   context.Context
}

// NewServer creates a Server. Tasks started over HTTP run under ctx.
func NewServer(ctx context.Context, r *Relay, log logger.Logger) *Server {
	return &Server{relay: r, log: log, ctx: ctx}
}

// Router builds the HTTP routes
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/messages", s.handleMessage).Methods(http.MethodPost)
	api.HandleFunc("/tasks", s.handleStartTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/stop", s.handleStopTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/current", s.handleCurrentTask).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := parseJSON(r, &req, s.log); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	respondJSON(w, http.StatusOK, s.relay.Handle(r.Context(), req))
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	var task Task
	if err := parseJSON(r, &task, s.log); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if task.Goal == "" {
		respondError(w, http.StatusBadRequest, "goal is required")
		return
	}

	st, err := s.relay.Begin(task)
	if errors.Is(err, ErrTaskRunning) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	go func() {
		if _, err := s.relay.Run(s.ctx, st); err != nil {
			s.log.Error(s.ctx, "task failed", map[string]interface{}{"task_id": st.ID, "error": err.Error()})
		}
	}()
	respondJSON(w, http.StatusAccepted, st)
}

func (s *Server) handleStopTask(w http.ResponseWriter, r *http.Request) {
	resp := s.relay.Handle(r.Context(), Request{Type: TypeStopTask})
	respondJSON(w, http.StatusOK, SuccessResponse{Message: resp.Message})
}

func (s *Server) handleCurrentTask(w http.ResponseWriter, r *http.Request) {
	st, ok := s.relay.Current()
	if !ok {
		respondError(w, http.StatusNotFound, "no task has been started")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// parseJSON parses JSON from the request body into the given destination.
func parseJSON(r *http.Request, dest interface{}, log logger.Logger) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		log.Error(r.Context(), "failed to parse JSON", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	return nil
}
