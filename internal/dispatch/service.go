package dispatch

import (
	"log/slog"
	"time"

	"github.com/example/ride-dispatch/internal/apperrors"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/ledger"
	"github.com/example/ride-dispatch/internal/matcher"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/store"
)

// Notifier receives best-effort advisory notifications of dispatch
// events. Delivery is never required for correctness; polling remains
// the contract.
type Notifier interface {
	RequestCreated(req models.RideRequest)
	RequestTaken(requestID string)
}

// Service drives ride requests through their lifecycle, coordinating
// the request store, response ledger and presence registry.
type Service struct {
	Store    store.Store
	Ledger   ledger.Ledger
	Presence presence.Registry
	Vehicles VehicleDirectory
	Matcher  *matcher.Service
	Notifier Notifier
	Logger   *slog.Logger

	// DefaultRadiusKm applies when a polling rider supplies no radius.
	DefaultRadiusKm float64
	// CompletedGrace keeps a just-completed request visible to the
	// passenger's status poll.
	CompletedGrace time.Duration
	Now            func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create validates the request, prices it from the vehicle fare table
// and inserts it as pending.
func (s *Service) Create(passengerID string, pickup, dropoff models.Place, vehicleType string) (models.RideRequest, error) {
	if passengerID == "" {
		return models.RideRequest{}, apperrors.Validation("passenger_id", "required")
	}
	if !geo.Valid(pickup.Coord()) {
		return models.RideRequest{}, apperrors.Validation("pickup", "coordinates out of range")
	}
	if !geo.Valid(dropoff.Coord()) {
		return models.RideRequest{}, apperrors.Validation("dropoff", "coordinates out of range")
	}
	vt, ok := models.ParseVehicleType(vehicleType)
	if !ok {
		return models.RideRequest{}, apperrors.Validation("vehicle_type", "unknown vehicle type")
	}
	rate, _ := vt.Rate()
	dist := geo.DistanceKm(pickup.Coord(), dropoff.Coord())
	req := models.RideRequest{
		PassengerID:   passengerID,
		Pickup:        pickup,
		Dropoff:       dropoff,
		VehicleType:   vt,
		DistanceKm:    dist,
		EstimatedFare: rate.Base + rate.PerKm*dist,
	}
	if err := s.Store.Create(&req); err != nil {
		return models.RideRequest{}, err
	}
	observability.RequestsCreated.Inc()
	s.Logger.Info("request created", "request_id", req.ID, "vehicle_type", string(vt), "distance_km", dist)
	if s.Notifier != nil {
		s.Notifier.RequestCreated(req)
	}
	return req, nil
}

// Accept claims a pending request for a rider. The conditional store
// transition admits exactly one winner; everyone else gets ErrConflict.
// The winner's availability is flipped off as part of the same logical
// operation, and the claim is rolled back if the flip cannot be applied.
func (s *Service) Accept(requestID, riderID string) (models.RideRequest, error) {
	if _, ok := s.Presence.Get(riderID); !ok {
		return models.RideRequest{}, apperrors.ErrNotFound
	}
	req, err := s.Store.AcceptIfPending(requestID, riderID, s.now())
	if err != nil {
		if err == apperrors.ErrConflict {
			observability.AcceptConflicts.Inc()
		}
		return models.RideRequest{}, err
	}
	if !s.Presence.SetAvailability(riderID, false) {
		// rider row vanished between the guard and the flip; undo the claim
		if rerr := s.Store.ReleaseAccept(requestID, riderID); rerr != nil {
			s.Logger.Error("accept rollback failed", "request_id", requestID, "rider_id", riderID, "error", rerr)
		}
		return models.RideRequest{}, apperrors.ErrNotFound
	}
	_ = s.Ledger.Record(models.ResponseRecord{
		RequestID:           requestID,
		RiderID:             riderID,
		Response:            models.ResponseAccepted,
		ResponseTimeSeconds: s.now().Sub(req.RequestedAt).Seconds(),
		CreatedAt:           s.now(),
	})
	observability.Accepts.Inc()
	s.Logger.Info("request accepted", "request_id", requestID, "rider_id", riderID)
	if s.Notifier != nil {
		s.Notifier.RequestTaken(requestID)
	}
	return req, nil
}

// Decline records a terminal response for the (request, rider) pair.
// The request itself stays pending for everyone else. timeout marks a
// client-side offer expiry rather than an explicit tap.
func (s *Service) Decline(requestID, riderID string, timeout bool) error {
	req, err := s.Store.Get(requestID)
	if err != nil {
		return err
	}
	kind := models.ResponseDeclined
	if timeout {
		kind = models.ResponseTimeout
	}
	if err := s.Ledger.Record(models.ResponseRecord{
		RequestID:           requestID,
		RiderID:             riderID,
		Response:            kind,
		ResponseTimeSeconds: s.now().Sub(req.RequestedAt).Seconds(),
		CreatedAt:           s.now(),
	}); err != nil {
		return err
	}
	observability.Declines.Inc()
	return nil
}

// MarkArrived advances accepted -> arrived for the assigned rider.
func (s *Service) MarkArrived(requestID, riderID string) (models.RideRequest, error) {
	return s.Store.Advance(requestID, riderID, models.StatusAccepted, models.StatusArrived)
}

// StartTrip advances arrived -> picked_up for the assigned rider.
func (s *Service) StartTrip(requestID, riderID string) (models.RideRequest, error) {
	return s.Store.Advance(requestID, riderID, models.StatusArrived, models.StatusPickedUp)
}

// Complete finishes the trip and restores the rider's availability.
func (s *Service) Complete(requestID, riderID string) (models.RideRequest, error) {
	req, err := s.Store.Advance(requestID, riderID, models.StatusPickedUp, models.StatusCompleted)
	if err != nil {
		return models.RideRequest{}, err
	}
	s.Presence.SetAvailability(riderID, true)
	observability.Completions.Inc()
	s.Logger.Info("request completed", "request_id", requestID, "rider_id", riderID, "fare", req.EstimatedFare)
	return req, nil
}

// Cancel is the passenger-initiated abort, permitted from any
// non-terminal state. An assigned rider is released synchronously.
func (s *Service) Cancel(requestID string) (models.RideRequest, error) {
	prev, err := s.Store.Cancel(requestID)
	if err != nil {
		return models.RideRequest{}, err
	}
	if prev.AssignedRiderID != "" {
		s.Presence.SetAvailability(prev.AssignedRiderID, true)
	}
	observability.Cancellations.Inc()
	s.Logger.Info("request cancelled", "request_id", requestID, "was_status", string(prev.Status))
	if s.Notifier != nil {
		s.Notifier.RequestTaken(requestID)
	}
	cur, err := s.Store.Get(requestID)
	if err != nil {
		return models.RideRequest{}, err
	}
	return cur, nil
}

// NearbyForRider resolves the rider's location and vehicle class, runs
// the matcher, and records a "shown" row for every returned request so
// the same offer is never surfaced to the same rider twice. Unknown or
// unconfigured riders get an empty result, not an error.
func (s *Service) NearbyForRider(riderID string, radiusKm float64) matcher.Result {
	if radiusKm <= 0 {
		radiusKm = s.DefaultRadiusKm
	}
	p, ok := s.Presence.Get(riderID)
	if !ok {
		return s.emptyResult()
	}
	vt, ok := s.Vehicles.VehicleFor(riderID)
	if !ok {
		return s.emptyResult()
	}
	res := s.Matcher.FindNearby(riderID, p.Location, vt, radiusKm)
	for _, nr := range res.Requests {
		_ = s.Ledger.Record(models.ResponseRecord{
			RequestID: nr.Request.ID,
			RiderID:   riderID,
			Response:  models.ResponseShown,
			CreatedAt: s.now(),
		})
	}
	return res
}

func (s *Service) emptyResult() matcher.Result {
	return matcher.Result{
		Requests: []models.NearbyRequest{},
		RecommendedRadiusKm: geo.RecommendedRadiusKm(
			s.now().Hour(), s.Presence.AvailableCount(), s.Matcher.Urban),
	}
}

// ActiveForPassenger returns the passenger's newest open request, or
// one completed within the grace window, for status polling.
func (s *Service) ActiveForPassenger(passengerID string) (models.RideRequest, bool) {
	grace := s.CompletedGrace
	if grace <= 0 {
		grace = time.Minute
	}
	return s.Store.ActiveForPassenger(passengerID, grace)
}

// NearbyRiders is the passenger-facing listing of fresh, available riders.
func (s *Service) NearbyRiders(lat, lng, radiusKm float64) []models.NearbyRider {
	if radiusKm <= 0 {
		radiusKm = s.DefaultRadiusKm
	}
	return s.Presence.Nearby(lat, lng, radiusKm)
}
