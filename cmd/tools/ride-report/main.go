// Command ride-report renders an HTML report of the ride history: a power
// trend across rides and the distance per ride.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/crankcase-data/power.report/internal/learner"
	"github.com/crankcase-data/power.report/internal/ridestore"
	"github.com/crankcase-data/power.report/internal/units"
)

func main() {
	dbPath := flag.String("db", "rides.db", "ride store path")
	output := flag.String("o", "report.html", "output HTML path")
	limit := flag.Int("n", 50, "max rides to include (newest first)")
	flag.Parse()

	store, err := ridestore.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open ride store: %v", err)
	}
	defer store.Close()

	rides, err := store.RecentRides(context.Background(), *limit)
	if err != nil {
		log.Fatalf("failed to read rides: %v", err)
	}
	if len(rides) == 0 {
		log.Fatal("no rides in store")
	}
	// RecentRides is newest first; the report reads left to right in time.
	for i, j := 0, len(rides)-1; i < j; i, j = i+1, j-1 {
		rides[i], rides[j] = rides[j], rides[i]
	}

	page := components.NewPage()
	page.AddCharts(powerTrendChart(rides), distanceChart(rides))

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
	log.Printf("✓ Report for %d rides: %s", len(rides), *output)
}

func rideDates(rides []learner.Ride) []string {
	dates := make([]string, len(rides))
	for i, r := range rides {
		dates[i] = r.StartTime.Format("Jan 02")
	}
	return dates
}

func powerTrendChart(rides []learner.Ride) *charts.Line {
	avg := make([]opts.LineData, len(rides))
	np := make([]opts.LineData, len(rides))
	for i, r := range rides {
		avg[i] = opts.LineData{Value: r.AvgPower}
		np[i] = opts.LineData{Value: r.NormalizedPower}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Power Trend",
			Subtitle: fmt.Sprintf("%d rides", len(rides)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Watts"}),
	)
	line.SetXAxis(rideDates(rides)).
		AddSeries("avg power", avg).
		AddSeries("normalized power", np)
	return line
}

func distanceChart(rides []learner.Ride) *charts.Bar {
	dist := make([]opts.BarData, len(rides))
	for i, r := range rides {
		dist[i] = opts.BarData{Value: r.DistanceM / units.MetersPerMile}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Distance per Ride"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Miles"}),
	)
	bar.SetXAxis(rideDates(rides)).AddSeries("distance", dist)
	return bar
}
