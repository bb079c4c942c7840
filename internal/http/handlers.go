package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/store"
)

// Server is the ops surface of the dispatch engine: inspect rides and
// assignment records, re-trigger dispatch for replayed events, and host
// driver notification sockets. The engine itself is driven by the Kafka
// consumer; nothing here sits on the dispatch hot path.
type Server struct {
	Store  store.Store
	Engine *dispatch.Engine
	WSReg  *notify.WSRegistry

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(st store.Store, engine *dispatch.Engine, reg *notify.WSRegistry, logger *slog.Logger) *Server {
	s := &Server{Store: st, Engine: engine, WSReg: reg, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/rides/{ride_id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/assignment", s.handleGetAssignment).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/dispatch", s.handleTriggerDispatch).Methods("POST")
	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/status", s.handleDriverStatus).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{driver_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	ride, err := s.Store.GetRide(r.Context(), rideID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "ride not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, ride)
}

func (s *Server) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	ride, err := s.Store.GetRide(r.Context(), rideID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "ride not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	cls, err := dispatch.Classify(ride)
	if err != nil {
		http.Error(w, "ride is not dispatched by this engine", http.StatusConflict)
		return
	}
	rec, err := s.Store.GetAssignment(r.Context(), cls.Locator)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "assignment record not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rec)
}

// handleTriggerDispatch restarts the engine for a ride, used when the
// ride-created event was lost or is being replayed.
func (s *Server) handleTriggerDispatch(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	if _, err := s.Store.GetRide(r.Context(), rideID); errors.Is(err, store.ErrNotFound) {
		http.Error(w, "ride not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	go func() {
		if err := s.Engine.HandleRideCreated(context.Background(), rideID); err != nil {
			s.logger.Error("manual dispatch failed", "ride_id", rideID, "error", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"ride_id": rideID, "status": "dispatch started"})
}

func (s *Server) handleDriverStatus(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	busy, err := s.Store.DriverBusy(r.Context(), driverID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"driver_id": driverID, "busy": busy})
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(driverID, conn)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
