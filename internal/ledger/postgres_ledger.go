package ledger

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (p *PostgresLedger) Record(rec models.ResponseRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := p.db.Exec(`INSERT INTO ride_responses(request_id, rider_id, response, response_time_seconds, created_at)
		VALUES($1,$2,$3,$4,$5)
		ON CONFLICT (request_id, rider_id)
		DO UPDATE SET response=EXCLUDED.response, response_time_seconds=EXCLUDED.response_time_seconds, created_at=EXCLUDED.created_at`,
		rec.RequestID, rec.RiderID, string(rec.Response), rec.ResponseTimeSeconds, rec.CreatedAt)
	return err
}

func (p *PostgresLedger) Responded(requestID, riderID string) bool {
	var n int
	err := p.db.QueryRow(`SELECT COUNT(1) FROM ride_responses WHERE request_id=$1 AND rider_id=$2`,
		requestID, riderID).Scan(&n)
	return err == nil && n > 0
}

func (p *PostgresLedger) ForRequest(requestID string) []models.ResponseRecord {
	rows, err := p.db.Query(`SELECT request_id, rider_id, response, response_time_seconds, created_at
		FROM ride_responses WHERE request_id=$1 ORDER BY created_at`, requestID)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []models.ResponseRecord
	for rows.Next() {
		var rec models.ResponseRecord
		var resp string
		if err := rows.Scan(&rec.RequestID, &rec.RiderID, &resp, &rec.ResponseTimeSeconds, &rec.CreatedAt); err != nil {
			continue
		}
		rec.Response = models.ResponseKind(resp)
		out = append(out, rec)
	}
	return out
}
