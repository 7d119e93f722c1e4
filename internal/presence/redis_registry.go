package presence

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

// RedisRegistry implements Registry on Redis GEO commands plus a metadata
// hash per rider, so multiple API processes share one presence view.
// Writes are best-effort, matching the last-write-wins row semantics.
type RedisRegistry struct {
	client *redis.Client
	geoKey string
	window time.Duration
	ctx    context.Context
}

const availableSetKey = "riders_available"

func NewRedisRegistry(addr, password, geoKey string, stalenessWindow time.Duration) *RedisRegistry {
	if stalenessWindow <= 0 {
		stalenessWindow = 2 * time.Minute
	}
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisRegistry{client: c, geoKey: geoKey, window: stalenessWindow, ctx: context.Background()}
}

func metaKey(riderID string) string { return "rider:meta:" + riderID }

func (r *RedisRegistry) SetStatus(riderID string, online, available bool) models.RiderPresence {
	now := time.Now()
	_ = r.client.HSet(r.ctx, metaKey(riderID), map[string]interface{}{
		"online":    strconv.FormatBool(online),
		"available": strconv.FormatBool(available),
		"updated":   now.Format(time.RFC3339Nano),
	}).Err()
	if available {
		_ = r.client.SAdd(r.ctx, availableSetKey, riderID).Err()
	} else {
		_ = r.client.SRem(r.ctx, availableSetKey, riderID).Err()
	}
	p, _ := r.Get(riderID)
	return p
}

func (r *RedisRegistry) UpdateLocation(riderID string, lat, lng float64) bool {
	if n, err := r.client.Exists(r.ctx, metaKey(riderID)).Result(); err != nil || n == 0 {
		return false
	}
	_, _ = r.client.GeoAdd(r.ctx, r.geoKey, &redis.GeoLocation{Longitude: lng, Latitude: lat, Name: riderID}).Result()
	_ = r.client.HSet(r.ctx, metaKey(riderID), "updated", time.Now().Format(time.RFC3339Nano)).Err()
	return true
}

func (r *RedisRegistry) Get(riderID string) (models.RiderPresence, bool) {
	m, err := r.client.HGetAll(r.ctx, metaKey(riderID)).Result()
	if err != nil || len(m) == 0 {
		return models.RiderPresence{}, false
	}
	p := models.RiderPresence{RiderID: riderID}
	p.IsOnline = m["online"] == "true"
	p.IsAvailable = m["available"] == "true"
	if ts, err := time.Parse(time.RFC3339Nano, m["updated"]); err == nil {
		p.LastUpdated = ts
	}
	if pos, err := r.client.GeoPos(r.ctx, r.geoKey, riderID).Result(); err == nil && len(pos) == 1 && pos[0] != nil {
		p.Location = models.Coord{Lat: pos[0].Latitude, Lng: pos[0].Longitude}
	}
	return p, true
}

func (r *RedisRegistry) SetAvailability(riderID string, available bool) bool {
	p, ok := r.Get(riderID)
	if !ok {
		return false
	}
	avail := available && p.IsOnline
	_ = r.client.HSet(r.ctx, metaKey(riderID), "available", strconv.FormatBool(avail)).Err()
	if avail {
		_ = r.client.SAdd(r.ctx, availableSetKey, riderID).Err()
	} else {
		_ = r.client.SRem(r.ctx, availableSetKey, riderID).Err()
	}
	return true
}

func (r *RedisRegistry) Nearby(lat, lng, radiusKm float64) []models.NearbyRider {
	res, err := r.client.GeoRadius(r.ctx, r.geoKey, lng, lat, &redis.GeoRadiusQuery{
		Radius: radiusKm, Unit: "km", WithCoord: true, WithDist: true, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	cutoff := time.Now().Add(-r.window)
	origin := models.Coord{Lat: lat, Lng: lng}
	out := make([]models.NearbyRider, 0, len(res))
	for _, g := range res {
		p, ok := r.Get(g.Name)
		if !ok || !p.IsOnline || !p.IsAvailable || p.LastUpdated.Before(cutoff) {
			continue
		}
		loc := models.Coord{Lat: g.Latitude, Lng: g.Longitude}
		out = append(out, models.NearbyRider{RiderID: g.Name, Location: loc, DistanceKm: geo.DistanceKm(origin, loc)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

func (r *RedisRegistry) AvailableCount() int {
	n, err := r.client.SCard(r.ctx, availableSetKey).Result()
	if err != nil {
		return 0
	}
	return int(n)
}
