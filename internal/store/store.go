package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/apperrors"
	"github.com/example/ride-dispatch/internal/models"
)

// Store is the authoritative record of ride requests. Transitions are
// single conditional updates so that status is linearizable per request;
// in particular AcceptIfPending must admit exactly one winner under
// concurrent acceptance.
type Store interface {
	// Create assigns the id and RequestedAt and inserts as pending.
	Create(req *models.RideRequest) error
	Get(id string) (models.RideRequest, error)
	// AcceptIfPending transitions pending -> accepted and sets the
	// assignee, only if the request is still pending at the moment of
	// the attempt. Losers get apperrors.ErrConflict.
	AcceptIfPending(id, riderID string, at time.Time) (models.RideRequest, error)
	// ReleaseAccept is the accept compensation: revert to pending and
	// clear the assignee, so a failed availability flip never strands
	// an assignment.
	ReleaseAccept(id, riderID string) error
	// Advance moves from -> to, guarded by the caller being the
	// assigned rider. CompletedAt is stamped when to is completed.
	Advance(id, riderID string, from, to models.RequestStatus) (models.RideRequest, error)
	// Cancel is permitted from any non-terminal state. Returns the
	// pre-cancel snapshot so callers can release the assignee.
	Cancel(id string) (models.RideRequest, error)
	// ActiveForPassenger returns the newest non-terminal request, or
	// one completed within grace, for status polling.
	ActiveForPassenger(passengerID string, grace time.Duration) (models.RideRequest, bool)
	// OpenByVehicle lists pending, unassigned requests of one vehicle class.
	OpenByVehicle(vt models.VehicleType) []models.RideRequest
	// StalePendingIDs lists pending requests requested before cutoff.
	StalePendingIDs(cutoff time.Time) []string
}

type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*models.RideRequest

	// Now is overridable for tests.
	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*models.RideRequest)}
}

func (m *MemoryStore) clock() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *MemoryStore) Create(req *models.RideRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.ID = uuid.NewString()
	req.Status = models.StatusPending
	req.RequestedAt = m.clock()
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(id string) (models.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return models.RideRequest{}, apperrors.ErrNotFound
	}
	return *r, nil
}

func (m *MemoryStore) AcceptIfPending(id, riderID string, at time.Time) (models.RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return models.RideRequest{}, apperrors.ErrNotFound
	}
	if r.Status != models.StatusPending || r.AssignedRiderID != "" {
		return models.RideRequest{}, apperrors.ErrConflict
	}
	r.Status = models.StatusAccepted
	r.AssignedRiderID = riderID
	t := at
	r.AcceptedAt = &t
	return *r, nil
}

func (m *MemoryStore) ReleaseAccept(id, riderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if r.Status != models.StatusAccepted || r.AssignedRiderID != riderID {
		return apperrors.ErrInvalidTransition
	}
	r.Status = models.StatusPending
	r.AssignedRiderID = ""
	r.AcceptedAt = nil
	return nil
}

func (m *MemoryStore) Advance(id, riderID string, from, to models.RequestStatus) (models.RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return models.RideRequest{}, apperrors.ErrNotFound
	}
	if r.AssignedRiderID != riderID || r.Status != from {
		return models.RideRequest{}, apperrors.ErrInvalidTransition
	}
	r.Status = to
	if to == models.StatusCompleted {
		t := m.clock()
		r.CompletedAt = &t
	}
	return *r, nil
}

func (m *MemoryStore) Cancel(id string) (models.RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return models.RideRequest{}, apperrors.ErrNotFound
	}
	if r.Status.Terminal() {
		return models.RideRequest{}, apperrors.ErrInvalidTransition
	}
	prev := *r
	r.Status = models.StatusCancelled
	// assignee is only meaningful for open and completed requests
	r.AssignedRiderID = ""
	return prev, nil
}

func (m *MemoryStore) ActiveForPassenger(passengerID string, grace time.Duration) (models.RideRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *models.RideRequest
	cutoff := m.clock().Add(-grace)
	for _, r := range m.requests {
		if r.PassengerID != passengerID {
			continue
		}
		live := !r.Status.Terminal() ||
			(r.Status == models.StatusCompleted && r.CompletedAt != nil && r.CompletedAt.After(cutoff))
		if !live {
			continue
		}
		if best == nil || r.RequestedAt.After(best.RequestedAt) {
			best = r
		}
	}
	if best == nil {
		return models.RideRequest{}, false
	}
	return *best, true
}

func (m *MemoryStore) OpenByVehicle(vt models.VehicleType) []models.RideRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RideRequest, 0)
	for _, r := range m.requests {
		if r.Status == models.StatusPending && r.AssignedRiderID == "" && r.VehicleType == vt {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

func (m *MemoryStore) StalePendingIDs(cutoff time.Time) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, r := range m.requests {
		if r.Status == models.StatusPending && r.RequestedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}
