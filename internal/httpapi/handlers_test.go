package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/models"
)

func testServer() *Server {
	cfg := config.ServerConfig{
		HeartbeatWindow: 2 * time.Minute,
		DefaultRadiusKm: 10,
		DefaultSpeedMps: 10,
		Urban:           true,
		CompletedGrace:  time.Minute,
	}
	return New(cfg, logging.NewLogger("error"))
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func onboardRider(t *testing.T, s *Server, id string, lat, lng float64, vt string) {
	t.Helper()
	if w := do(t, s, "POST", "/api/v1/riders/status", map[string]any{"rider_id": id, "is_online": true, "is_available": true}); w.Code != 204 {
		t.Fatalf("status: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, s, "POST", "/api/v1/riders/location", map[string]any{"rider_id": id, "lat": lat, "lng": lng}); w.Code != 204 {
		t.Fatalf("location: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, s, "POST", "/internal/riders/vehicle", map[string]any{"rider_id": id, "vehicle_type": vt}); w.Code != 204 {
		t.Fatalf("vehicle: %d %s", w.Code, w.Body.String())
	}
}

func createRequest(t *testing.T, s *Server) string {
	t.Helper()
	w := do(t, s, "POST", "/api/v1/requests", map[string]any{
		"passenger_id": "p1",
		"pickup":       map[string]any{"label": "Fort", "lat": 6.9271, "lng": 79.8612},
		"dropoff":      map[string]any{"label": "Wellawatte", "lat": 6.8750, "lng": 79.8600},
		"vehicle_type": "bike",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var out struct {
		RequestID     string  `json:"request_id"`
		EstimatedFare float64 `json:"estimated_fare"`
		DistanceKm    float64 `json:"distance_km"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.RequestID == "" || out.EstimatedFare <= 0 || out.DistanceKm <= 0 {
		t.Fatalf("unexpected create response: %+v", out)
	}
	return out.RequestID
}

func TestCreateRejectsUnknownVehicleType(t *testing.T) {
	s := testServer()
	w := do(t, s, "POST", "/api/v1/requests", map[string]any{
		"passenger_id": "p1",
		"pickup":       map[string]any{"lat": 6.9271, "lng": 79.8612},
		"dropoff":      map[string]any{"lat": 6.8750, "lng": 79.8600},
		"vehicle_type": "rocket",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d %s", w.Code, w.Body.String())
	}
}

func TestAcceptConflictMapsTo409(t *testing.T) {
	s := testServer()
	onboardRider(t, s, "riderA", 6.9280, 79.8600, "bike")
	onboardRider(t, s, "riderB", 6.9290, 79.8610, "bike")
	id := createRequest(t, s)

	w := do(t, s, "POST", fmt.Sprintf("/api/v1/requests/%s/accept", id), map[string]any{"rider_id": "riderA"})
	if w.Code != http.StatusOK {
		t.Fatalf("first accept: %d %s", w.Code, w.Body.String())
	}
	var req models.RideRequest
	if err := json.Unmarshal(w.Body.Bytes(), &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Status != models.StatusAccepted || req.AssignedRiderID != "riderA" {
		t.Fatalf("unexpected accept payload: %+v", req)
	}

	if w := do(t, s, "POST", fmt.Sprintf("/api/v1/requests/%s/accept", id), map[string]any{"rider_id": "riderB"}); w.Code != http.StatusConflict {
		t.Fatalf("second accept: want 409, got %d %s", w.Code, w.Body.String())
	}
}

func TestPollAndActiveRequestFlow(t *testing.T) {
	s := testServer()
	onboardRider(t, s, "riderA", 6.9280, 79.8600, "bike")
	id := createRequest(t, s)

	w := do(t, s, "GET", "/api/v1/riders/riderA/requests?radius_km=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("poll: %d %s", w.Code, w.Body.String())
	}
	var poll struct {
		Requests            []models.NearbyRequest `json:"requests"`
		RecommendedRadiusKm float64                `json:"recommended_radius_km"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &poll); err != nil {
		t.Fatalf("decode poll: %v", err)
	}
	if len(poll.Requests) != 1 || poll.Requests[0].Request.ID != id {
		t.Fatalf("expected the open request in poll, got %+v", poll)
	}
	if poll.RecommendedRadiusKm < 3 || poll.RecommendedRadiusKm > 10 {
		t.Fatalf("advisory radius out of bounds: %f", poll.RecommendedRadiusKm)
	}

	w = do(t, s, "GET", "/api/v1/passengers/p1/active", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("active: %d %s", w.Code, w.Body.String())
	}
	var active models.RideRequest
	if err := json.Unmarshal(w.Body.Bytes(), &active); err != nil {
		t.Fatalf("decode active: %v", err)
	}
	if active.ID != id || active.Status != models.StatusPending {
		t.Fatalf("unexpected active request: %+v", active)
	}

	if w := do(t, s, "GET", "/api/v1/passengers/p2/active", nil); w.Code != http.StatusNotFound {
		t.Fatalf("no active request: want 404, got %d", w.Code)
	}
}

func TestInvalidTransitionMapsTo422(t *testing.T) {
	s := testServer()
	onboardRider(t, s, "riderA", 6.9280, 79.8600, "bike")
	id := createRequest(t, s)
	_ = do(t, s, "POST", fmt.Sprintf("/api/v1/requests/%s/accept", id), map[string]any{"rider_id": "riderA"})

	// start before arrive
	if w := do(t, s, "POST", fmt.Sprintf("/api/v1/requests/%s/start", id), map[string]any{"rider_id": "riderA"}); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("want 422, got %d %s", w.Code, w.Body.String())
	}
}

func TestNearbyRidersListing(t *testing.T) {
	s := testServer()
	onboardRider(t, s, "riderA", 6.9280, 79.8600, "bike")
	onboardRider(t, s, "riderB", 6.9000, 79.7000, "car")

	w := do(t, s, "GET", "/api/v1/riders/nearby?lat=6.9271&lng=79.8612&radius_km=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("nearby riders: %d %s", w.Code, w.Body.String())
	}
	var out struct {
		Riders []models.NearbyRider `json:"riders"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Riders) != 1 || out.Riders[0].RiderID != "riderA" {
		t.Fatalf("expected only rider A in radius, got %+v", out.Riders)
	}

	if w := do(t, s, "GET", "/api/v1/riders/nearby?radius_km=10", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing coords: want 400, got %d", w.Code)
	}
}

func TestCancelReleasesRiderOverHTTP(t *testing.T) {
	s := testServer()
	onboardRider(t, s, "riderA", 6.9280, 79.8600, "bike")
	id := createRequest(t, s)
	_ = do(t, s, "POST", fmt.Sprintf("/api/v1/requests/%s/accept", id), map[string]any{"rider_id": "riderA"})

	if w := do(t, s, "POST", fmt.Sprintf("/api/v1/requests/%s/cancel", id), nil); w.Code != http.StatusNoContent {
		t.Fatalf("cancel: %d %s", w.Code, w.Body.String())
	}
	p, ok := s.Registry.Get("riderA")
	if !ok || !p.IsAvailable {
		t.Fatalf("expected rider A available after cancel, got %+v", p)
	}
}
