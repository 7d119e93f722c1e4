package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/ingest"
)

// fakeUpdater implements RedisUpdater for tests
type fakeUpdater struct {
	hasRow   bool
	failGeo  int // number of times to fail GeoAdd before succeeding
	failH    int // number of times to fail HSet before succeeding
	geoCalls int
	hCalls   int
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	return nil
}

func (f *fakeUpdater) Exists(ctx context.Context, key string) (bool, error) {
	return f.hasRow, nil
}

func TestUpdateRedisWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{hasRow: true, failGeo: 1, failH: 1}
	hb := ingest.Heartbeat{RiderID: "r1", Lat: 6.9, Lng: 79.8}
	ctx := context.Background()
	start := time.Now()
	if err := updateRedisWithRetry(ctx, f, "riders_geo", hb, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.geoCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestUpdateRedisWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{hasRow: true, failGeo: 5, failH: 0}
	hb := ingest.Heartbeat{RiderID: "r1", Lat: 6.9, Lng: 79.8}
	ctx := context.Background()
	if err := updateRedisWithRetry(ctx, f, "riders_geo", hb, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}

func TestUpdateRedisWithRetry_DropsUnknownRider(t *testing.T) {
	f := &fakeUpdater{hasRow: false}
	hb := ingest.Heartbeat{RiderID: "ghost", Lat: 6.9, Lng: 79.8}
	if err := updateRedisWithRetry(context.Background(), f, "riders_geo", hb, 3, time.Millisecond); err != nil {
		t.Fatalf("unknown rider should be a silent drop, got %v", err)
	}
	if f.geoCalls != 0 || f.hCalls != 0 {
		t.Fatalf("no writes expected for unknown rider, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
}
