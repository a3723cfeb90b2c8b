// Package studioapi is an in-memory stand-in for the studio's bot API. It
// serves the same routes and enforces the same request signing, which makes
// it usable for local runs and end-to-end tests.
package studioapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/agentworkforce/botsync/internal/botsync"
	"github.com/agentworkforce/botsync/internal/logging"
)

type Config struct {
	APIKey       string
	APISecret    string
	MaxSkew      time.Duration
	MaxBodyBytes int64
	Logger       *slog.Logger
	Now          func() time.Time
}

// Mutation is one authenticated write request and the status it got.
type Mutation struct {
	Method string
	Path   string
	Status int
}

type Server struct {
	cfg    Config
	logger *slog.Logger
	router *mux.Router

	mu         sync.Mutex
	flows      []botsync.Flow
	nextFlowID int
	airules    botsync.Airules
	labels     map[string]json.RawMessage
	builds     int
	mutations  []Mutation
	failures   map[string]int
}

func NewServer(cfg Config) *Server {
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = 5 * time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{
		cfg:      cfg,
		logger:   logging.OrDiscard(cfg.Logger),
		flows:    []botsync.Flow{},
		labels:   map[string]json.RawMessage{},
		failures: map[string]int{},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	router.HandleFunc("/api/bot/flows", s.authed(s.handleListFlows)).Methods(http.MethodGet)
	router.HandleFunc("/api/bot/flows", s.authed(s.handleCreateFlow)).Methods(http.MethodPost)
	router.HandleFunc("/api/bot/flows/{id}", s.authed(s.handleUpdateFlow)).Methods(http.MethodPut)
	router.HandleFunc("/api/bot/flows/{id}", s.authed(s.handleDeleteFlow)).Methods(http.MethodDelete)
	router.HandleFunc("/api/bot", s.authed(s.handleUpdateAirules)).Methods(http.MethodPut)
	router.HandleFunc("/api/bot/build", s.authed(s.handleBuild)).Methods(http.MethodPost)
	router.HandleFunc("/api/bot/label", s.authed(s.handleCreateLabel)).Methods(http.MethodPost)
	router.HandleFunc("/api/bot/label/{name}", s.authed(s.handleDeleteLabel)).Methods(http.MethodDelete)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", getCorrelationID(r))
	})
	return router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// FailNext makes the next authenticated request to method+path answer with
// status instead of being applied.
func (s *Server) FailNext(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = status
}

// SeedFlow stores flow as if it had been created through the API and returns
// the stored copy with its assigned id.
func (s *Server) SeedFlow(flow botsync.Flow) botsync.Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertFlowLocked(flow)
}

func (s *Server) Flows() []botsync.Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]botsync.Flow, 0, len(s.flows))
	for _, flow := range s.flows {
		out = append(out, flow.Clone())
	}
	return out
}

// SeedAirules stores rules without recording a mutation.
func (s *Server) SeedAirules(rules botsync.Airules) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.airules = append(botsync.Airules{}, rules...)
}

// Airules returns the last airules written, nil if none ever were.
func (s *Server) Airules() botsync.Airules {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.airules == nil {
		return nil
	}
	return append(botsync.Airules{}, s.airules...)
}

func (s *Server) Builds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builds
}

func (s *Server) Labels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.labels))
	for name := range s.labels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Server) Mutations() []Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Mutation(nil), s.mutations...)
}

// authed verifies the request signature, applies any injected failure and
// records writes before handing over to next.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		correlationID := getCorrelationID(r)
		if authErr := verifyStudioHMAC(
			s.cfg.APIKey,
			s.cfg.APISecret,
			r.Header.Get(botsync.HeaderAPIKey),
			r.Header.Get(botsync.HeaderAPISignature),
			s.cfg.Now(),
			s.cfg.MaxSkew,
		); authErr != nil {
			s.logger.Warn("studio request rejected",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("reason", authErr.message),
				slog.String("correlation_id", correlationID))
			writeError(w, authErr.status, authErr.code, authErr.message, correlationID)
			return
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			s.logger.Debug("studio request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", recorder.status),
				slog.String("correlation_id", correlationID))
			if r.Method != http.MethodGet {
				s.mu.Lock()
				s.mutations = append(s.mutations, Mutation{Method: r.Method, Path: r.URL.Path, Status: recorder.status})
				s.mu.Unlock()
			}
		}()

		if status, ok := s.takeFailure(r.Method, r.URL.Path); ok {
			writeError(recorder, status, "injected_failure", fmt.Sprintf("injected %d", status), correlationID)
			return
		}
		next(recorder, r)
	}
}

func (s *Server) takeFailure(method, path string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	status, ok := s.failures[key]
	if ok {
		delete(s.failures, key)
	}
	return status, ok
}

func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Flows())
}

func (s *Server) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	flow, ok := s.readFlow(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	stored := s.insertFlowLocked(flow)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleUpdateFlow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	flow, ok := s.readFlow(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	index := s.flowIndexLocked(id)
	if index < 0 {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "not_found", "flow not found", getCorrelationID(r))
		return
	}
	stored := flow.Clone()
	stored["id"] = mustMarshal(id)
	s.flows[index] = stored
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	index := s.flowIndexLocked(id)
	if index < 0 {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "not_found", "flow not found", getCorrelationID(r))
		return
	}
	s.flows = append(s.flows[:index], s.flows[index+1:]...)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateAirules(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	var req struct {
		Airules botsync.Airules `json:"airules"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Airules == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "body must be {\"airules\": [...]}", getCorrelationID(r))
		return
	}
	s.mu.Lock()
	s.airules = req.Airules
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"airules": req.Airules})
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.builds++
	build := s.builds
	s.mu.Unlock()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "build": build})
}

func (s *Server) handleCreateLabel(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	var req struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Label == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "body must be {\"label\": name}", getCorrelationID(r))
		return
	}
	s.mu.Lock()
	if _, exists := s.labels[req.Label]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "conflict", "label already exists", getCorrelationID(r))
		return
	}
	label := mustMarshal(map[string]any{
		"label":     req.Label,
		"createdAt": s.cfg.Now().UTC().Format(time.RFC3339),
	})
	s.labels[req.Label] = label
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, label)
}

func (s *Server) handleDeleteLabel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	s.mu.Lock()
	label, exists := s.labels[name]
	delete(s.labels, name)
	s.mu.Unlock()
	if !exists {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, label)
}

func (s *Server) readFlow(w http.ResponseWriter, r *http.Request) (botsync.Flow, bool) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return nil, false
	}
	flow, err := botsync.ParseFlow(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid flow document", getCorrelationID(r))
		return nil, false
	}
	return flow, true
}

func (s *Server) insertFlowLocked(flow botsync.Flow) botsync.Flow {
	s.nextFlowID++
	stored := flow.Clone()
	if stored == nil {
		stored = botsync.Flow{}
	}
	stored["id"] = mustMarshal(fmt.Sprintf("flow_%d", s.nextFlowID))
	s.flows = append(s.flows, stored)
	return stored.Clone()
}

func (s *Server) flowIndexLocked(id string) int {
	for i, flow := range s.flows {
		if flow.ID() == id {
			return i
		}
	}
	return -1
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", getCorrelationID(r))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", getCorrelationID(r))
		return nil, false
	}
	return body, true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func getCorrelationID(r *http.Request) string {
	return r.Header.Get("X-Correlation-Id")
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}
