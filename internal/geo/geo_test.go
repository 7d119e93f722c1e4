package geo

import (
	"math"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestDistanceZeroAndSymmetry(t *testing.T) {
	a := models.Coord{Lat: 6.9271, Lng: 79.8612}
	b := models.Coord{Lat: 6.9280, Lng: 79.8600}
	if d := DistanceKm(a, a); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
	if DistanceKm(a, b) != DistanceKm(b, a) {
		t.Fatalf("distance not symmetric: %f vs %f", DistanceKm(a, b), DistanceKm(b, a))
	}
}

func TestDistanceColomboFixtures(t *testing.T) {
	pickup := models.Coord{Lat: 6.9271, Lng: 79.8612}
	riderA := models.Coord{Lat: 6.9280, Lng: 79.8600}
	riderB := models.Coord{Lat: 6.9000, Lng: 79.7000}

	if d := DistanceKm(pickup, riderA); math.Abs(d-0.17) > 0.005 {
		t.Fatalf("rider A distance: want ~0.17 km, got %f", d)
	}
	if d := DistanceKm(pickup, riderB); d <= 10 {
		t.Fatalf("rider B should be outside 10 km, got %f", d)
	}
}

func TestDistanceRoundedToTwoDecimals(t *testing.T) {
	a := models.Coord{Lat: 6.9271, Lng: 79.8612}
	b := models.Coord{Lat: 6.9355, Lng: 79.8487}
	d := DistanceKm(a, b)
	if math.Round(d*100)/100 != d {
		t.Fatalf("distance not rounded: %v", d)
	}
}

func TestDistanceNaNPropagates(t *testing.T) {
	a := models.Coord{Lat: math.NaN(), Lng: 79.8612}
	b := models.Coord{Lat: 6.9280, Lng: 79.8600}
	if d := DistanceKm(a, b); !math.IsNaN(d) {
		t.Fatalf("expected NaN, got %f", d)
	}
	if Valid(a) {
		t.Fatal("NaN coordinate should not be valid")
	}
}

func TestRecommendedRadiusBounds(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		for _, count := range []int{0, 4, 5, 9, 10, 50} {
			for _, urban := range []bool{true, false} {
				r := RecommendedRadiusKm(hour, count, urban)
				if r < 3 || r > 10 {
					t.Fatalf("radius out of bounds: hour=%d count=%d urban=%v r=%f", hour, count, urban, r)
				}
			}
		}
	}
}

func TestRecommendedRadiusPolicy(t *testing.T) {
	cases := []struct {
		hour  int
		count int
		urban bool
		want  float64
	}{
		{12, 10, true, 3},  // off-peak, plenty of riders
		{8, 10, true, 5},   // morning peak
		{20, 10, true, 5},  // evening peak boundary is inclusive
		{8, 4, true, 7},    // peak + scarce riders
		{12, 7, true, 4},   // 5-9 riders
		{12, 7, false, 7},  // non-urban bump
		{18, 0, false, 10}, // capped
		{3, 0, false, 8},
	}
	for _, c := range cases {
		if got := RecommendedRadiusKm(c.hour, c.count, c.urban); got != c.want {
			t.Fatalf("hour=%d count=%d urban=%v: want %f, got %f", c.hour, c.count, c.urban, c.want, got)
		}
	}
}
