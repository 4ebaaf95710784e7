// Command route-profile renders the elevation profile of a route JSON file
// to PNG, with the climbs the lookahead analysis will see.
package main

import (
	"encoding/json"
	"flag"
	"image/color"
	"log"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/crankcase-data/power.report/internal/route"
	"github.com/crankcase-data/power.report/internal/units"
)

type routeFile struct {
	Points    []route.SourcePoint `json:"points"`
	Waypoints []route.Waypoint    `json:"waypoints"`
}

func main() {
	input := flag.String("route", "route.json", "route JSON path")
	output := flag.String("o", "profile.png", "output PNG path")
	flag.Parse()

	data, err := os.ReadFile(*input)
	if err != nil {
		log.Fatalf("failed to read route: %v", err)
	}
	var rf routeFile
	if err := json.Unmarshal(data, &rf); err != nil {
		log.Fatalf("failed to parse route: %v", err)
	}
	r, err := route.New(rf.Points, rf.Waypoints)
	if err != nil {
		log.Fatalf("invalid route: %v", err)
	}

	p := plot.New()
	p.Title.Text = "Elevation Profile"
	p.X.Label.Text = "Distance (mi)"
	p.Y.Label.Text = "Elevation (m)"

	pts := make(plotter.XYs, len(r.Points))
	for i, pt := range r.Points {
		pts[i] = plotter.XY{X: pt.CumDistanceM / units.MetersPerMile, Y: pt.ElevationM}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		log.Fatalf("failed to build profile line: %v", err)
	}
	line.Width = vg.Points(1)
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	p.Add(line)
	p.Add(plotter.NewGrid())

	if err := p.Save(10*vg.Inch, 4*vg.Inch, *output); err != nil {
		log.Fatalf("failed to save profile: %v", err)
	}
	log.Printf("✓ Profile over %.1f mi with %d turns: %s",
		r.TotalDistanceM()/units.MetersPerMile, len(r.Turns), *output)
}
