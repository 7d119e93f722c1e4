package ledger

import (
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// Ledger is the append/upsert log of rider responses to requests.
// One record per (request, rider) pair; later writes overwrite. Records
// outlive their request for audit and are never deleted.
type Ledger interface {
	Record(rec models.ResponseRecord) error
	// Responded reports whether any record exists for the pair. Any
	// response value, including a bare "shown", suppresses re-offers.
	Responded(requestID, riderID string) bool
	ForRequest(requestID string) []models.ResponseRecord
}

type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]map[string]models.ResponseRecord // requestID -> riderID -> record
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]map[string]models.ResponseRecord)}
}

func (m *MemoryLedger) Record(rec models.ResponseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	byRider, ok := m.records[rec.RequestID]
	if !ok {
		byRider = make(map[string]models.ResponseRecord)
		m.records[rec.RequestID] = byRider
	}
	byRider[rec.RiderID] = rec
	return nil
}

func (m *MemoryLedger) Responded(requestID, riderID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[requestID][riderID]
	return ok
}

func (m *MemoryLedger) ForRequest(requestID string) []models.ResponseRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ResponseRecord, 0, len(m.records[requestID]))
	for _, rec := range m.records[requestID] {
		out = append(out, rec)
	}
	return out
}
