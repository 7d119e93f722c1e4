package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

// Registry is the authoritative store for rider presence. Heartbeats and
// dispatch transitions both write through it; dispatch availability flips
// are authoritative over whatever the rider's own heartbeat last wrote.
type Registry interface {
	// SetStatus upserts the duty flags, creating the row on first call
	// with a placeholder location. Flags are stored as passed; callers
	// own the isAvailable => isOnline invariant.
	SetStatus(riderID string, online, available bool) models.RiderPresence
	// UpdateLocation upserts coordinates and freshness. It is a no-op
	// when the rider has no presence row yet: a location update cannot
	// create on-duty status.
	UpdateLocation(riderID string, lat, lng float64) bool
	Get(riderID string) (models.RiderPresence, bool)
	// SetAvailability is the dispatch-side override used on accept,
	// complete and cancel. Availability is never restored for a rider
	// who has gone offline. Returns false when the rider is unknown.
	SetAvailability(riderID string, available bool) bool
	// Nearby lists online, available riders within radiusKm whose last
	// heartbeat is fresher than the staleness window, nearest first.
	Nearby(lat, lng, radiusKm float64) []models.NearbyRider
	// AvailableCount counts non-stale available riders.
	AvailableCount() int
}

// MemoryRegistry is the default single-process Registry.
type MemoryRegistry struct {
	mu     sync.RWMutex
	riders map[string]models.RiderPresence
	window time.Duration
	now    func() time.Time
}

func NewMemoryRegistry(stalenessWindow time.Duration) *MemoryRegistry {
	if stalenessWindow <= 0 {
		stalenessWindow = 2 * time.Minute
	}
	return &MemoryRegistry{
		riders: make(map[string]models.RiderPresence),
		window: stalenessWindow,
		now:    time.Now,
	}
}

func (m *MemoryRegistry) SetStatus(riderID string, online, available bool) models.RiderPresence {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.riders[riderID]
	if !ok {
		p = models.RiderPresence{RiderID: riderID}
	}
	p.IsOnline = online
	p.IsAvailable = available
	p.LastUpdated = m.now()
	m.riders[riderID] = p
	return p
}

func (m *MemoryRegistry) UpdateLocation(riderID string, lat, lng float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.riders[riderID]
	if !ok {
		return false
	}
	p.Location = models.Coord{Lat: lat, Lng: lng}
	p.LastUpdated = m.now()
	m.riders[riderID] = p
	return true
}

func (m *MemoryRegistry) Get(riderID string) (models.RiderPresence, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.riders[riderID]
	return p, ok
}

func (m *MemoryRegistry) SetAvailability(riderID string, available bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.riders[riderID]
	if !ok {
		return false
	}
	p.IsAvailable = available && p.IsOnline
	m.riders[riderID] = p
	return true
}

func (m *MemoryRegistry) Nearby(lat, lng, radiusKm float64) []models.NearbyRider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := m.now().Add(-m.window)
	origin := models.Coord{Lat: lat, Lng: lng}
	out := make([]models.NearbyRider, 0)
	for _, p := range m.riders {
		if !p.IsOnline || !p.IsAvailable || p.LastUpdated.Before(cutoff) {
			continue
		}
		d := geo.DistanceKm(origin, p.Location)
		if d > radiusKm {
			continue
		}
		out = append(out, models.NearbyRider{RiderID: p.RiderID, Location: p.Location, DistanceKm: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

func (m *MemoryRegistry) AvailableCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := m.now().Add(-m.window)
	n := 0
	for _, p := range m.riders {
		if p.IsOnline && p.IsAvailable && !p.LastUpdated.Before(cutoff) {
			n++
		}
	}
	return n
}
