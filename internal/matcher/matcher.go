package matcher

import (
	"sort"
	"time"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

// RequestSource lists open requests for one vehicle class.
type RequestSource interface {
	OpenByVehicle(vt models.VehicleType) []models.RideRequest
}

// ResponseLog reports whether a rider already has a ledger row for a request.
type ResponseLog interface {
	Responded(requestID, riderID string) bool
}

// AvailableCounter feeds the advisory radius policy.
type AvailableCounter interface {
	AvailableCount() int
}

// Result is one poll's worth of matchable requests plus the suggested
// radius for current conditions. The suggestion is surfaced to clients;
// the filter itself uses the caller-supplied radius.
type Result struct {
	Requests            []models.NearbyRequest `json:"requests"`
	RecommendedRadiusKm float64                `json:"recommended_radius_km"`
}

// Service is the proximity matcher. Purely a read; recording "shown"
// rows is the caller's business.
type Service struct {
	Requests        RequestSource
	Responses       ResponseLog
	Available       AvailableCounter
	DefaultSpeedMps float64
	Urban           bool
	Now             func() time.Time
}

// FindNearby returns the open requests of the rider's vehicle class
// within radiusKm of the rider that the rider has not yet been shown or
// responded to, nearest pickup first.
func (s *Service) FindNearby(riderID string, loc models.Coord, vt models.VehicleType, radiusKm float64) Result {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	res := Result{
		Requests:            []models.NearbyRequest{},
		RecommendedRadiusKm: geo.RecommendedRadiusKm(now().Hour(), s.Available.AvailableCount(), s.Urban),
	}
	for _, req := range s.Requests.OpenByVehicle(vt) {
		if s.Responses.Responded(req.ID, riderID) {
			continue
		}
		d := geo.DistanceKm(loc, req.Pickup.Coord())
		if d > radiusKm {
			continue
		}
		res.Requests = append(res.Requests, models.NearbyRequest{
			Request:       req,
			DistanceKm:    d,
			PickupETASecs: geo.PickupETASeconds(d, s.DefaultSpeedMps),
		})
	}
	sort.Slice(res.Requests, func(i, j int) bool {
		return res.Requests[i].DistanceKm < res.Requests[j].DistanceKm
	})
	return res
}
