package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/apperrors"
	"github.com/example/ride-dispatch/internal/models"
)

// PostgresStore expresses every transition as one conditional UPDATE,
// letting the database arbitrate concurrent accepts.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) DB() *sql.DB { return p.db }

const requestCols = `id, passenger_id, pickup_label, pickup_lat, pickup_lng,
	dropoff_label, dropoff_lat, dropoff_lng, vehicle_type, status,
	assigned_rider_id, estimated_fare, distance_km, requested_at, accepted_at, completed_at`

func (p *PostgresStore) Create(req *models.RideRequest) error {
	req.ID = uuid.NewString()
	req.Status = models.StatusPending
	req.RequestedAt = time.Now()
	_, err := p.db.Exec(`INSERT INTO ride_requests(id, passenger_id, pickup_label, pickup_lat, pickup_lng,
		dropoff_label, dropoff_lat, dropoff_lng, vehicle_type, status, estimated_fare, distance_km, requested_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		req.ID, req.PassengerID, req.Pickup.Label, req.Pickup.Lat, req.Pickup.Lng,
		req.Dropoff.Label, req.Dropoff.Lat, req.Dropoff.Lng, string(req.VehicleType),
		string(req.Status), req.EstimatedFare, req.DistanceKm, req.RequestedAt)
	return err
}

func (p *PostgresStore) Get(id string) (models.RideRequest, error) {
	return p.scanOne(p.db.QueryRow(`SELECT `+requestCols+` FROM ride_requests WHERE id=$1`, id))
}

func (p *PostgresStore) AcceptIfPending(id, riderID string, at time.Time) (models.RideRequest, error) {
	res, err := p.db.Exec(`UPDATE ride_requests SET status=$1, assigned_rider_id=$2, accepted_at=$3
		WHERE id=$4 AND status=$5 AND assigned_rider_id IS NULL`,
		string(models.StatusAccepted), riderID, at, id, string(models.StatusPending))
	if err != nil {
		return models.RideRequest{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := p.Get(id); err != nil {
			return models.RideRequest{}, apperrors.ErrNotFound
		}
		return models.RideRequest{}, apperrors.ErrConflict
	}
	return p.Get(id)
}

func (p *PostgresStore) ReleaseAccept(id, riderID string) error {
	res, err := p.db.Exec(`UPDATE ride_requests SET status=$1, assigned_rider_id=NULL, accepted_at=NULL
		WHERE id=$2 AND status=$3 AND assigned_rider_id=$4`,
		string(models.StatusPending), id, string(models.StatusAccepted), riderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrInvalidTransition
	}
	return nil
}

func (p *PostgresStore) Advance(id, riderID string, from, to models.RequestStatus) (models.RideRequest, error) {
	var res sql.Result
	var err error
	if to == models.StatusCompleted {
		res, err = p.db.Exec(`UPDATE ride_requests SET status=$1, completed_at=$2
			WHERE id=$3 AND status=$4 AND assigned_rider_id=$5`,
			string(to), time.Now(), id, string(from), riderID)
	} else {
		res, err = p.db.Exec(`UPDATE ride_requests SET status=$1
			WHERE id=$2 AND status=$3 AND assigned_rider_id=$4`,
			string(to), id, string(from), riderID)
	}
	if err != nil {
		return models.RideRequest{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := p.Get(id); err != nil {
			return models.RideRequest{}, apperrors.ErrNotFound
		}
		return models.RideRequest{}, apperrors.ErrInvalidTransition
	}
	return p.Get(id)
}

func (p *PostgresStore) Cancel(id string) (models.RideRequest, error) {
	prev, err := p.Get(id)
	if err != nil {
		return models.RideRequest{}, err
	}
	res, err := p.db.Exec(`UPDATE ride_requests SET status=$1, assigned_rider_id=NULL
		WHERE id=$2 AND status IN ($3,$4,$5,$6)`,
		string(models.StatusCancelled), id,
		string(models.StatusPending), string(models.StatusAccepted),
		string(models.StatusArrived), string(models.StatusPickedUp))
	if err != nil {
		return models.RideRequest{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.RideRequest{}, apperrors.ErrInvalidTransition
	}
	return prev, nil
}

func (p *PostgresStore) ActiveForPassenger(passengerID string, grace time.Duration) (models.RideRequest, bool) {
	row := p.db.QueryRow(`SELECT `+requestCols+` FROM ride_requests
		WHERE passenger_id=$1 AND (status IN ($2,$3,$4,$5) OR (status=$6 AND completed_at > $7))
		ORDER BY requested_at DESC LIMIT 1`,
		passengerID,
		string(models.StatusPending), string(models.StatusAccepted),
		string(models.StatusArrived), string(models.StatusPickedUp),
		string(models.StatusCompleted), time.Now().Add(-grace))
	req, err := p.scanOne(row)
	if err != nil {
		return models.RideRequest{}, false
	}
	return req, true
}

func (p *PostgresStore) OpenByVehicle(vt models.VehicleType) []models.RideRequest {
	rows, err := p.db.Query(`SELECT `+requestCols+` FROM ride_requests
		WHERE status=$1 AND assigned_rider_id IS NULL AND vehicle_type=$2
		ORDER BY requested_at`, string(models.StatusPending), string(vt))
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []models.RideRequest
	for rows.Next() {
		if req, err := p.scanRows(rows); err == nil {
			out = append(out, req)
		}
	}
	return out
}

func (p *PostgresStore) StalePendingIDs(cutoff time.Time) []string {
	rows, err := p.db.Query(`SELECT id FROM ride_requests WHERE status=$1 AND requested_at < $2`,
		string(models.StatusPending), cutoff)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

type scanner interface {
	Scan(dest ...any) error
}

func (p *PostgresStore) scanOne(row *sql.Row) (models.RideRequest, error) {
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return models.RideRequest{}, apperrors.ErrNotFound
	}
	return req, err
}

func (p *PostgresStore) scanRows(rows *sql.Rows) (models.RideRequest, error) {
	return scanRequest(rows)
}

func scanRequest(s scanner) (models.RideRequest, error) {
	var req models.RideRequest
	var vt, status string
	var rider sql.NullString
	var acceptedAt, completedAt sql.NullTime
	err := s.Scan(&req.ID, &req.PassengerID,
		&req.Pickup.Label, &req.Pickup.Lat, &req.Pickup.Lng,
		&req.Dropoff.Label, &req.Dropoff.Lat, &req.Dropoff.Lng,
		&vt, &status, &rider, &req.EstimatedFare, &req.DistanceKm,
		&req.RequestedAt, &acceptedAt, &completedAt)
	if err != nil {
		return models.RideRequest{}, err
	}
	req.VehicleType = models.VehicleType(vt)
	req.Status = models.RequestStatus(status)
	if rider.Valid {
		req.AssignedRiderID = rider.String
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		req.AcceptedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		req.CompletedAt = &t
	}
	return req, nil
}
