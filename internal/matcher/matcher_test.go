package matcher

import (
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

type fakeRequests struct{ open []models.RideRequest }

func (f *fakeRequests) OpenByVehicle(vt models.VehicleType) []models.RideRequest {
	out := []models.RideRequest{}
	for _, r := range f.open {
		if r.VehicleType == vt {
			out = append(out, r)
		}
	}
	return out
}

type fakeResponses struct{ seen map[string]bool }

func (f *fakeResponses) Responded(requestID, riderID string) bool {
	return f.seen[requestID+"/"+riderID]
}

type fakeCount struct{ n int }

func (f *fakeCount) AvailableCount() int { return f.n }

func bikeRequest(id string) models.RideRequest {
	return models.RideRequest{
		ID:          id,
		PassengerID: "p1",
		Pickup:      models.Place{Label: "Fort", Lat: 6.9271, Lng: 79.8612},
		VehicleType: models.VehicleBike,
		Status:      models.StatusPending,
		RequestedAt: time.Now(),
	}
}

func TestRadiusFiltersFarRider(t *testing.T) {
	s := &Service{
		Requests:        &fakeRequests{open: []models.RideRequest{bikeRequest("req1")}},
		Responses:       &fakeResponses{seen: map[string]bool{}},
		Available:       &fakeCount{n: 10},
		DefaultSpeedMps: 10,
		Urban:           true,
	}

	nearRes := s.FindNearby("riderA", models.Coord{Lat: 6.9280, Lng: 79.8600}, models.VehicleBike, 10)
	if len(nearRes.Requests) != 1 {
		t.Fatalf("rider A should see the request, got %d", len(nearRes.Requests))
	}
	if d := nearRes.Requests[0].DistanceKm; d <= 0 || d > 0.5 {
		t.Fatalf("unexpected distance for rider A: %f", d)
	}
	if nearRes.Requests[0].PickupETASecs <= 0 {
		t.Fatal("expected a pickup ETA annotation")
	}

	farRes := s.FindNearby("riderB", models.Coord{Lat: 6.9000, Lng: 79.7000}, models.VehicleBike, 10)
	if len(farRes.Requests) != 0 {
		t.Fatalf("rider B is out of radius, got %d requests", len(farRes.Requests))
	}
}

func TestLedgerRowSuppressesReoffer(t *testing.T) {
	s := &Service{
		Requests:  &fakeRequests{open: []models.RideRequest{bikeRequest("req1")}},
		Responses: &fakeResponses{seen: map[string]bool{"req1/riderA": true}},
		Available: &fakeCount{n: 10},
		Urban:     true,
	}
	loc := models.Coord{Lat: 6.9280, Lng: 79.8600}

	if res := s.FindNearby("riderA", loc, models.VehicleBike, 10); len(res.Requests) != 0 {
		t.Fatal("rider with a ledger row must not be re-offered")
	}
	if res := s.FindNearby("riderC", loc, models.VehicleBike, 10); len(res.Requests) != 1 {
		t.Fatal("other riders still see the request")
	}
}

func TestVehicleClassMustMatch(t *testing.T) {
	s := &Service{
		Requests:  &fakeRequests{open: []models.RideRequest{bikeRequest("req1")}},
		Responses: &fakeResponses{seen: map[string]bool{}},
		Available: &fakeCount{n: 10},
		Urban:     true,
	}
	res := s.FindNearby("riderA", models.Coord{Lat: 6.9280, Lng: 79.8600}, models.VehicleCar, 10)
	if len(res.Requests) != 0 {
		t.Fatal("car rider must not see bike requests")
	}
}

func TestNearestPickupFirstAndAdvisoryRadius(t *testing.T) {
	far := bikeRequest("far")
	far.Pickup = models.Place{Label: "Dehiwala", Lat: 6.8510, Lng: 79.8660}
	near := bikeRequest("near")

	s := &Service{
		Requests:  &fakeRequests{open: []models.RideRequest{far, near}},
		Responses: &fakeResponses{seen: map[string]bool{}},
		Available: &fakeCount{n: 2},
		Urban:     true,
		Now:       func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	res := s.FindNearby("riderA", models.Coord{Lat: 6.9280, Lng: 79.8600}, models.VehicleBike, 20)
	if len(res.Requests) != 2 || res.Requests[0].Request.ID != "near" {
		t.Fatalf("expected nearest-first ordering, got %+v", res.Requests)
	}
	// off-peak, <5 riders, urban: 3 + 2
	if res.RecommendedRadiusKm != 5 {
		t.Fatalf("expected advisory radius 5, got %f", res.RecommendedRadiusKm)
	}
}
