package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/apperrors"
	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/ledger"
	"github.com/example/ride-dispatch/internal/matcher"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/store"
)

// VehicleRegistrar is the write side of the vehicle directory seam,
// standing in for the external vehicle registry.
type VehicleRegistrar interface {
	Register(riderID string, vt models.VehicleType)
}

type Server struct {
	Dispatch *dispatch.Service
	Registry presence.Registry
	Vehicles VehicleRegistrar
	Kafka    *ingest.KafkaProducer
	WSReg    *dispatch.WSRegistry

	logger *slog.Logger
	mux    *mux.Router
}

// New wires the dispatch core from config: Redis presence, Postgres
// store/ledger and Kafka fan-out when configured, in-memory fallbacks
// otherwise.
func New(cfg config.ServerConfig, logger *slog.Logger) *Server {
	var reg presence.Registry
	if cfg.RedisAddr != "" {
		reg = presence.NewRedisRegistry(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey, cfg.HeartbeatWindow)
	} else {
		reg = presence.NewMemoryRegistry(cfg.HeartbeatWindow)
	}

	var st store.Store
	var led ledger.Ledger
	if cfg.PGDSN != "" {
		if ps, err := store.NewPostgresStore(cfg.PGDSN); err == nil {
			st = ps
			led = ledger.NewPostgresLedger(ps.DB())
		} else {
			logger.Error("postgres unavailable, using in-memory store", "error", err)
		}
	}
	if st == nil {
		st = store.NewMemoryStore()
		led = ledger.NewMemoryLedger()
	}

	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	vehicles := dispatch.NewMemoryVehicleDirectory()
	wsreg := dispatch.NewWSRegistry()

	m := &matcher.Service{
		Requests:        st,
		Responses:       led,
		Available:       reg,
		DefaultSpeedMps: cfg.DefaultSpeedMps,
		Urban:           cfg.Urban,
	}
	d := &dispatch.Service{
		Store:           st,
		Ledger:          led,
		Presence:        reg,
		Vehicles:        vehicles,
		Matcher:         m,
		Notifier:        wsreg,
		Logger:          logger,
		DefaultRadiusKm: cfg.DefaultRadiusKm,
		CompletedGrace:  cfg.CompletedGrace,
	}

	s := &Server{
		Dispatch: d,
		Registry: reg,
		Vehicles: vehicles,
		Kafka:    kp,
		WSReg:    wsreg,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/riders/status", s.handleRiderStatus).Methods("POST")
	s.mux.HandleFunc("/api/v1/riders/location", s.handleRiderLocation).Methods("POST")
	s.mux.HandleFunc("/api/v1/riders/nearby", s.handleNearbyRiders).Methods("GET")
	s.mux.HandleFunc("/api/v1/riders/{rider_id}/requests", s.handleNearbyRequests).Methods("GET")
	s.mux.HandleFunc("/api/v1/requests", s.handleCreateRequest).Methods("POST")
	s.mux.HandleFunc("/api/v1/requests/{id}/accept", s.handleAccept).Methods("POST")
	s.mux.HandleFunc("/api/v1/requests/{id}/decline", s.handleDecline).Methods("POST")
	s.mux.HandleFunc("/api/v1/requests/{id}/arrive", s.handleArrive).Methods("POST")
	s.mux.HandleFunc("/api/v1/requests/{id}/start", s.handleStartTrip).Methods("POST")
	s.mux.HandleFunc("/api/v1/requests/{id}/complete", s.handleComplete).Methods("POST")
	s.mux.HandleFunc("/api/v1/requests/{id}/cancel", s.handleCancel).Methods("POST")
	s.mux.HandleFunc("/api/v1/passengers/{passenger_id}/active", s.handleActiveRequest).Methods("GET")
	s.mux.HandleFunc("/internal/riders/vehicle", s.handleRegisterVehicle).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{rider_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type statusBody struct {
	RiderID     string `json:"rider_id"`
	IsOnline    bool   `json:"is_online"`
	IsAvailable bool   `json:"is_available"`
}

func (s *Server) handleRiderStatus(w http.ResponseWriter, r *http.Request) {
	var b statusBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil || b.RiderID == "" {
		s.writeError(w, apperrors.Validation("rider_id", "required"))
		return
	}
	// availability implies on-duty; going offline clears it
	s.Registry.SetStatus(b.RiderID, b.IsOnline, b.IsAvailable && b.IsOnline)
	observability.RidersAvailable.Set(float64(s.Registry.AvailableCount()))
	w.WriteHeader(http.StatusNoContent)
}

type locationBody struct {
	RiderID string  `json:"rider_id"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

func (s *Server) handleRiderLocation(w http.ResponseWriter, r *http.Request) {
	var b locationBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil || b.RiderID == "" {
		s.writeError(w, apperrors.Validation("rider_id", "required"))
		return
	}
	if s.Kafka != nil {
		if err := s.Kafka.PublishHeartbeat(ingest.Heartbeat{RiderID: b.RiderID, Lat: b.Lat, Lng: b.Lng}); err != nil {
			s.logger.Warn("heartbeat publish failed", "rider_id", b.RiderID, "error", err)
		}
	}
	// silently a no-op for riders with no presence row
	s.Registry.UpdateLocation(b.RiderID, b.Lat, b.Lng)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNearbyRequests(w http.ResponseWriter, r *http.Request) {
	riderID := mux.Vars(r)["rider_id"]
	radius := 0.0
	if v := r.URL.Query().Get("radius_km"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			s.writeError(w, apperrors.Validation("radius_km", "must be a positive number"))
			return
		}
		radius = f
	}
	s.writeJSON(w, http.StatusOK, s.Dispatch.NearbyForRider(riderID, radius))
}

type createBody struct {
	PassengerID string       `json:"passenger_id"`
	Pickup      models.Place `json:"pickup"`
	Dropoff     models.Place `json:"dropoff"`
	VehicleType string       `json:"vehicle_type"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var b createBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		s.writeError(w, apperrors.Validation("body", "malformed JSON"))
		return
	}
	req, err := s.Dispatch.Create(b.PassengerID, b.Pickup, b.Dropoff, b.VehicleType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"request_id":     req.ID,
		"estimated_fare": req.EstimatedFare,
		"distance_km":    req.DistanceKm,
	})
}

type riderBody struct {
	RiderID string `json:"rider_id"`
	Timeout bool   `json:"timeout,omitempty"`
}

func (s *Server) decodeRider(w http.ResponseWriter, r *http.Request) (riderBody, bool) {
	var b riderBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil || b.RiderID == "" {
		s.writeError(w, apperrors.Validation("rider_id", "required"))
		return b, false
	}
	return b, true
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	b, ok := s.decodeRider(w, r)
	if !ok {
		return
	}
	req, err := s.Dispatch.Accept(mux.Vars(r)["id"], b.RiderID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	b, ok := s.decodeRider(w, r)
	if !ok {
		return
	}
	if err := s.Dispatch.Decline(mux.Vars(r)["id"], b.RiderID, b.Timeout); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleArrive(w http.ResponseWriter, r *http.Request) {
	b, ok := s.decodeRider(w, r)
	if !ok {
		return
	}
	if _, err := s.Dispatch.MarkArrived(mux.Vars(r)["id"], b.RiderID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartTrip(w http.ResponseWriter, r *http.Request) {
	b, ok := s.decodeRider(w, r)
	if !ok {
		return
	}
	if _, err := s.Dispatch.StartTrip(mux.Vars(r)["id"], b.RiderID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	b, ok := s.decodeRider(w, r)
	if !ok {
		return
	}
	if _, err := s.Dispatch.Complete(mux.Vars(r)["id"], b.RiderID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Dispatch.Cancel(mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActiveRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := s.Dispatch.ActiveForPassenger(mux.Vars(r)["passenger_id"])
	if !ok {
		s.writeError(w, apperrors.ErrNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleNearbyRiders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		s.writeError(w, apperrors.Validation("lat/lng", "required numeric coordinates"))
		return
	}
	radius := 0.0
	if v := q.Get("radius_km"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			radius = f
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"riders": s.Dispatch.NearbyRiders(lat, lng, radius),
	})
}

type vehicleBody struct {
	RiderID     string `json:"rider_id"`
	VehicleType string `json:"vehicle_type"`
}

func (s *Server) handleRegisterVehicle(w http.ResponseWriter, r *http.Request) {
	var b vehicleBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil || b.RiderID == "" {
		s.writeError(w, apperrors.Validation("rider_id", "required"))
		return
	}
	vt, ok := models.ParseVehicleType(b.VehicleType)
	if !ok {
		s.writeError(w, apperrors.Validation("vehicle_type", "unknown vehicle type"))
		return
	}
	s.Vehicles.Register(b.RiderID, vt)
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["rider_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", 400)
		return
	}
	s.WSReg.Add(id, conn)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.WSReg.Remove(id)
				_ = conn.Close()
				return
			}
		}
	}()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
