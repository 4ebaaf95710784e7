// Command gen-rides seeds a ride store with synthetic ride history for
// exercising the learner and report tooling without real rides.
package main

import (
	"context"
	"flag"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/crankcase-data/power.report/internal/learner"
	"github.com/crankcase-data/power.report/internal/ridestore"
)

func main() {
	dbPath := flag.String("db", "rides.db", "ride store path")
	count := flag.Int("n", 20, "number of rides")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	store, err := ridestore.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open ride store: %v", err)
	}
	defer store.Close()

	rng := rand.New(rand.NewSource(*seed))
	ctx := context.Background()
	start := time.Now().AddDate(0, 0, -*count)

	for i := 0; i < *count; i++ {
		ride := syntheticRide(rng, start.AddDate(0, 0, i))
		if err := store.SaveRide(ctx, &ride); err != nil {
			log.Fatalf("failed to save ride %d: %v", i+1, err)
		}
		if (i+1)%5 == 0 {
			log.Printf("%d/%d rides", i+1, *count)
		}
	}
	log.Printf("✓ Seeded %d rides into %s", *count, *dbPath)
}

// syntheticRide produces a 1-2 h ride of 60 s segments over rolling terrain,
// with power loosely tracking the grade.
func syntheticRide(rng *rand.Rand, day time.Time) learner.Ride {
	startAt := time.Date(day.Year(), day.Month(), day.Day(), 8, 0, 0, 0, time.UTC)
	nSegments := 60 + rng.Intn(60)
	basePower := 180 + rng.Float64()*60
	baseTemp := 12 + rng.Float64()*18

	ride := learner.Ride{
		StartTime: startAt,
		EndTime:   startAt.Add(time.Duration(nSegments) * time.Minute),
		AvgTempC:  baseTemp,
	}

	var powerSum float64
	for s := 0; s < nSegments; s++ {
		grade := 0.04 * math.Sin(float64(s)/8)
		power := basePower + grade*2500 + rng.NormFloat64()*15
		if power < 0 {
			power = 0
		}
		speed := 9 - grade*60 + rng.NormFloat64()*0.4
		if speed < 1 {
			speed = 1
		}
		seg := learner.Segment{
			At:           startAt.Add(time.Duration(s) * time.Minute),
			DurationSec:  60,
			MeanPower:    power,
			MeanSpeedMps: speed,
			MeanGrade:    grade,
			MeanWindMps:  rng.Float64() * 3,
			MeanTempC:    baseTemp + rng.NormFloat64(),
			MeanHumidity: 40 + rng.Float64()*40,
		}
		ride.Segments = append(ride.Segments, seg)
		ride.DistanceM += speed * 60
		powerSum += power
		if power > ride.MaxPower {
			ride.MaxPower = power
		}
	}
	ride.AvgPower = powerSum / float64(nSegments)
	// Close enough for synthetic data; real NP comes from the estimator.
	ride.NormalizedPower = ride.AvgPower * 1.05
	return ride
}
