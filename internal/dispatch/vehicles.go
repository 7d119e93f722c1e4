package dispatch

import (
	"sync"

	"github.com/example/ride-dispatch/internal/models"
)

// VehicleDirectory supplies each rider's vehicle class. The real
// directory lives in the vehicle registry service; this seam lets the
// core consume it read-only.
type VehicleDirectory interface {
	VehicleFor(riderID string) (models.VehicleType, bool)
}

// MemoryVehicleDirectory is the in-process directory used standalone
// and in tests.
type MemoryVehicleDirectory struct {
	mu       sync.RWMutex
	vehicles map[string]models.VehicleType
}

func NewMemoryVehicleDirectory() *MemoryVehicleDirectory {
	return &MemoryVehicleDirectory{vehicles: make(map[string]models.VehicleType)}
}

func (d *MemoryVehicleDirectory) Register(riderID string, vt models.VehicleType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vehicles[riderID] = vt
}

func (d *MemoryVehicleDirectory) VehicleFor(riderID string) (models.VehicleType, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	vt, ok := d.vehicles[riderID]
	return vt, ok
}
