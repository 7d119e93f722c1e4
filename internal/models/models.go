package models

import (
	"strings"
	"time"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Place is a named coordinate, used for pickup and dropoff points.
type Place struct {
	Label string  `json:"label"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
}

func (p Place) Coord() Coord { return Coord{Lat: p.Lat, Lng: p.Lng} }

// VehicleType is the closed set of vehicle classes a rider can drive.
type VehicleType string

const (
	VehicleTuk  VehicleType = "tuk"
	VehicleBike VehicleType = "bike"
	VehicleCar  VehicleType = "car"
	VehicleVan  VehicleType = "van"
)

// FareRate prices a vehicle class: fare = Base + PerKm * distance.
type FareRate struct {
	Base  float64
	PerKm float64
}

var fareTable = map[VehicleType]FareRate{
	VehicleTuk:  {Base: 100, PerKm: 60},
	VehicleBike: {Base: 50, PerKm: 40},
	VehicleCar:  {Base: 200, PerKm: 100},
	VehicleVan:  {Base: 300, PerKm: 120},
}

// ParseVehicleType validates a wire value against the closed set.
func ParseVehicleType(s string) (VehicleType, bool) {
	vt := VehicleType(strings.ToLower(strings.TrimSpace(s)))
	_, ok := fareTable[vt]
	return vt, ok
}

// Rate returns the fare rate for the vehicle type; ok is false for unknown types.
func (v VehicleType) Rate() (FareRate, bool) {
	r, ok := fareTable[v]
	return r, ok
}

type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusAccepted  RequestStatus = "accepted"
	StatusArrived   RequestStatus = "arrived"
	StatusPickedUp  RequestStatus = "picked_up"
	StatusCompleted RequestStatus = "completed"
	StatusCancelled RequestStatus = "cancelled"
	StatusDeclined  RequestStatus = "declined"
)

// Terminal reports whether no further lifecycle transition is permitted.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusDeclined
}

type RideRequest struct {
	ID              string        `json:"id"`
	PassengerID     string        `json:"passenger_id"`
	Pickup          Place         `json:"pickup"`
	Dropoff         Place         `json:"dropoff"`
	VehicleType     VehicleType   `json:"vehicle_type"`
	Status          RequestStatus `json:"status"`
	AssignedRiderID string        `json:"assigned_rider_id,omitempty"`
	EstimatedFare   float64       `json:"estimated_fare"`
	DistanceKm      float64       `json:"distance_km"`
	RequestedAt     time.Time     `json:"requested_at"`
	AcceptedAt      *time.Time    `json:"accepted_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// RiderPresence is the last known location and duty flags for one rider.
// One row per rider, last-write-wins, never deleted.
type RiderPresence struct {
	RiderID     string    `json:"rider_id"`
	Location    Coord     `json:"location"`
	IsOnline    bool      `json:"is_online"`
	IsAvailable bool      `json:"is_available"`
	LastUpdated time.Time `json:"last_updated"`
}

type ResponseKind string

const (
	ResponseShown    ResponseKind = "shown"
	ResponseAccepted ResponseKind = "accepted"
	ResponseDeclined ResponseKind = "declined"
	ResponseTimeout  ResponseKind = "timeout"
)

// ResponseRecord logs one rider's response to one request.
// At most one record per (RequestID, RiderID); later writes overwrite.
type ResponseRecord struct {
	RequestID           string       `json:"request_id"`
	RiderID             string       `json:"rider_id"`
	Response            ResponseKind `json:"response"`
	ResponseTimeSeconds float64      `json:"response_time_seconds,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
}

// NearbyRequest is one matcher result: an open request annotated with the
// polling rider's distance to its pickup and a rough pickup ETA.
type NearbyRequest struct {
	Request       RideRequest `json:"request"`
	DistanceKm    float64     `json:"distance_from_rider_km"`
	PickupETASecs float64     `json:"pickup_eta_seconds"`
}

// NearbyRider is one passenger-facing listing entry.
type NearbyRider struct {
	RiderID    string  `json:"rider_id"`
	Location   Coord   `json:"location"`
	DistanceKm float64 `json:"distance_km"`
}
