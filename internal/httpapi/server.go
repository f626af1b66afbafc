// Package httpapi exposes the agent's local status API: health, connectivity
// and queue depth, plus a manual resync trigger.
package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prudhvinik1/floorsync/internal/connectivity"
	"github.com/prudhvinik1/floorsync/internal/engine"
	"github.com/prudhvinik1/floorsync/internal/models"
)

type Server struct {
	engine   *engine.Engine
	monitor  *connectivity.Monitor
	deviceID string
	logger   *log.Logger
	router   chi.Router
}

type statusResponse struct {
	DeviceID     string              `json:"device_id"`
	Connectivity models.Connectivity `json:"connectivity"`
	QueueDepth   int                 `json:"queue_depth"`
}

func New(eng *engine.Engine, monitor *connectivity.Monitor, deviceID string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "[httpapi] ", log.LstdFlags)
	}
	s := &Server{
		engine:   eng,
		monitor:  monitor,
		deviceID: deviceID,
		logger:   logger,
	}

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", s.handleHealth)
	router.Get("/status", s.handleStatus)
	router.Post("/resync", s.handleResync)

	s.router = router
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		DeviceID:     s.deviceID,
		Connectivity: s.monitor.State(),
		QueueDepth:   s.engine.QueueLen(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Printf("Failed to write status response: %v", err)
	}
}

func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := s.engine.FullResync(context.Background()); err != nil {
			s.logger.Printf("Manual resync failed: %v", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte("resync started"))
}
