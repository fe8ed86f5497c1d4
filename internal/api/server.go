// Package api serves processed run data as read-only JSON.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/fieldsight/pitchtrack/internal/httputil"
	"github.com/fieldsight/pitchtrack/internal/store"
	"github.com/fieldsight/pitchtrack/internal/units"
	"github.com/fieldsight/pitchtrack/internal/version"
)

// Server handles the HTTP interface over a run store. It never mutates
// the store; all processing happens in the pipeline ahead of it.
type Server struct {
	address string
	db      *store.Store
	server  *http.Server
}

func NewServer(address string, db *store.Store) *Server {
	s := &Server{address: address, db: db}
	s.server = &http.Server{
		Addr:    address,
		Handler: s.ServeMux(),
	}
	return s
}

// ServeMux configures the HTTP routes and handlers.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/tracks", s.handleTracks)
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.HandleFunc("/api/possession", s.handlePossession)
	mux.HandleFunc("/api/kinematics", s.handleKinematics)
	mux.HandleFunc("/api/quality", s.handleQuality)
	return mux
}

// Start begins the HTTP server and blocks until the context is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	return nil
}

// Close shuts down the web server.
func (s *Server) Close() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// runID extracts the mandatory run query parameter.
func runID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("run")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "missing run parameter")
		return "", false
	}
	return id, true
}

// intParam parses an optional integer query parameter, returning -1 when
// absent (the store's "no filter" sentinel).
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return -1, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s parameter %q", name, raw))
		return 0, false
	}
	return v, true
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrRunNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "run not found")
		return
	}
	httputil.WriteError(w, http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "pitchtrack", "version": "%s", "timestamp": "%s"}`,
		version.Version, time.Now().UTC().Format(time.RFC3339))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	runs, err := s.db.ListRuns()
	if err != nil {
		s.storeError(w, err)
		return
	}
	httputil.WriteJSON(w, runs)
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id, ok := runID(w, r)
	if !ok {
		return
	}
	tracks, err := s.db.Tracks(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	httputil.WriteJSON(w, tracks)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id, ok := runID(w, r)
	if !ok {
		return
	}
	trackID, ok := intParam(w, r, "track")
	if !ok {
		return
	}
	frame, ok := intParam(w, r, "frame")
	if !ok {
		return
	}
	positions, err := s.db.Positions(id, trackID, frame)
	if err != nil {
		s.storeError(w, err)
		return
	}
	httputil.WriteJSON(w, positions)
}

func (s *Server) handlePossession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id, ok := runID(w, r)
	if !ok {
		return
	}
	records, err := s.db.PossessionRecords(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	httputil.WriteJSON(w, records)
}

func (s *Server) handleKinematics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id, ok := runID(w, r)
	if !ok {
		return
	}
	trackID, ok := intParam(w, r, "track")
	if !ok {
		return
	}
	unit := r.URL.Query().Get("units")
	if unit == "" {
		unit = units.KMH
	}
	if !units.IsValid(unit) {
		httputil.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid units %q (valid: %s)", unit, units.GetValidUnitsString()))
		return
	}
	samples, err := s.db.KinematicSamples(id, trackID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	for i := range samples {
		if samples[i].SpeedKmh != nil {
			v := units.ConvertSpeed(*samples[i].SpeedKmh, unit)
			samples[i].SpeedKmh = &v
		}
	}
	httputil.WriteJSON(w, samples)
}

// handleQuality serves the run's recoverable-condition counters as
// recorded at save time.
func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id, ok := runID(w, r)
	if !ok {
		return
	}
	run, err := s.db.GetRun(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(run.Quality)); err != nil {
		log.Printf("failed to write quality response: %v", err)
	}
}
