package ledger

import (
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestRecordUpsertsSinglePair(t *testing.T) {
	l := NewMemoryLedger()
	if l.Responded("req1", "r1") {
		t.Fatal("expected no record yet")
	}
	_ = l.Record(models.ResponseRecord{RequestID: "req1", RiderID: "r1", Response: models.ResponseShown})
	if !l.Responded("req1", "r1") {
		t.Fatal("expected record after shown")
	}
	_ = l.Record(models.ResponseRecord{RequestID: "req1", RiderID: "r1", Response: models.ResponseDeclined, ResponseTimeSeconds: 4.2})

	recs := l.ForRequest("req1")
	if len(recs) != 1 {
		t.Fatalf("later response must overwrite, not duplicate: %d records", len(recs))
	}
	if recs[0].Response != models.ResponseDeclined || recs[0].ResponseTimeSeconds != 4.2 {
		t.Fatalf("unexpected record: %+v", recs[0])
	}
}

func TestRecordsAreScopedPerPair(t *testing.T) {
	l := NewMemoryLedger()
	_ = l.Record(models.ResponseRecord{RequestID: "req1", RiderID: "r1", Response: models.ResponseDeclined})
	_ = l.Record(models.ResponseRecord{RequestID: "req1", RiderID: "r2", Response: models.ResponseTimeout})

	if !l.Responded("req1", "r1") || !l.Responded("req1", "r2") {
		t.Fatal("expected both pairs recorded")
	}
	if l.Responded("req2", "r1") {
		t.Fatal("unexpected record for other request")
	}
	if len(l.ForRequest("req1")) != 2 {
		t.Fatalf("expected 2 records, got %d", len(l.ForRequest("req1")))
	}
}
