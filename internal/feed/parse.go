package feed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// The head unit emits one fused sample per second as a CSV line:
//
//	TICK,power,speed_mps,cadence,heart_rate,grade,wind_mps,temp_c,humidity_pct,lat,lon,altitude_m
//
// An empty column means the corresponding sensor is absent or dropped out for
// this sample. Speed is the one mandatory reading.
const tickPrefix = "TICK,"

const tickFieldCount = 11

// ErrNotTick marks lines that are not tick samples (boot banners, command
// echoes). Callers skip these.
var ErrNotTick = errors.New("not a tick line")

// Tick is one parsed sensor sample. Has* flags report which optional sensors
// delivered a reading.
type Tick struct {
	PowerW   float64
	HasPower bool

	SpeedMps float64

	Cadence    float64
	HasCadence bool

	HeartRate    float64
	HasHeartRate bool

	Grade    float64
	HasGrade bool

	WindMps float64
	HasWind bool

	TemperatureC   float64
	HasTemperature bool

	HumidityPct float64
	HasHumidity bool

	Lat, Lon    float64
	HasPosition bool
	AltitudeM   float64
}

// ParseTick parses one head-unit line. Returns ErrNotTick for non-sample
// lines.
func ParseTick(line string) (Tick, error) {
	if !strings.HasPrefix(line, tickPrefix) {
		return Tick{}, ErrNotTick
	}
	fields := strings.Split(strings.TrimSuffix(line[len(tickPrefix):], "\r"), ",")
	if len(fields) != tickFieldCount {
		return Tick{}, fmt.Errorf("tick line has %d fields, want %d", len(fields), tickFieldCount)
	}

	var t Tick
	var err error

	if t.SpeedMps, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return Tick{}, fmt.Errorf("bad speed field %q: %w", fields[1], err)
	}

	opt := func(idx int, dst *float64, has *bool, name string) error {
		if fields[idx] == "" {
			return nil
		}
		v, err := strconv.ParseFloat(fields[idx], 64)
		if err != nil {
			return fmt.Errorf("bad %s field %q: %w", name, fields[idx], err)
		}
		*dst = v
		*has = true
		return nil
	}

	if err := opt(0, &t.PowerW, &t.HasPower, "power"); err != nil {
		return Tick{}, err
	}
	if err := opt(2, &t.Cadence, &t.HasCadence, "cadence"); err != nil {
		return Tick{}, err
	}
	if err := opt(3, &t.HeartRate, &t.HasHeartRate, "heart_rate"); err != nil {
		return Tick{}, err
	}
	if err := opt(4, &t.Grade, &t.HasGrade, "grade"); err != nil {
		return Tick{}, err
	}
	if err := opt(5, &t.WindMps, &t.HasWind, "wind"); err != nil {
		return Tick{}, err
	}
	if err := opt(6, &t.TemperatureC, &t.HasTemperature, "temperature"); err != nil {
		return Tick{}, err
	}
	if err := opt(7, &t.HumidityPct, &t.HasHumidity, "humidity"); err != nil {
		return Tick{}, err
	}

	if fields[8] != "" && fields[9] != "" {
		if t.Lat, err = strconv.ParseFloat(fields[8], 64); err != nil {
			return Tick{}, fmt.Errorf("bad lat field %q: %w", fields[8], err)
		}
		if t.Lon, err = strconv.ParseFloat(fields[9], 64); err != nil {
			return Tick{}, fmt.Errorf("bad lon field %q: %w", fields[9], err)
		}
		t.HasPosition = true
	}
	if fields[10] != "" {
		if t.AltitudeM, err = strconv.ParseFloat(fields[10], 64); err != nil {
			return Tick{}, fmt.Errorf("bad altitude field %q: %w", fields[10], err)
		}
	}
	return t, nil
}
