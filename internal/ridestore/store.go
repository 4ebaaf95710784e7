// Package ridestore persists completed rides and their learner segments in a
// local SQLite database. Schema management goes through embedded migrations;
// the store is the learner's historical ride source.
package ridestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/crankcase-data/power.report/internal/learner"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the rides database. Safe for concurrent use; SQLite serializes
// writers internally.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ride store: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// Not closing m: that would close the shared DB connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SaveRide persists a completed ride with its segments in one transaction.
// A missing ride ID is assigned; the assigned ID is written back to r.
func (s *Store) SaveRide(ctx context.Context, r *learner.Ride) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ride save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rides (id, start_time_unix, end_time_unix, distance_m,
			avg_power, normalized_power, max_power, avg_temp_c)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartTime.Unix(), r.EndTime.Unix(), r.DistanceM,
		r.AvgPower, r.NormalizedPower, r.MaxPower, r.AvgTempC)
	if err != nil {
		return fmt.Errorf("insert ride %s: %w", r.ID, err)
	}

	for i, seg := range r.Segments {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ride_segments (ride_id, seq, at_unix, duration_sec,
				mean_power, mean_speed_mps, mean_grade, mean_wind_mps,
				mean_temp_c, mean_humidity, mean_heart_rate)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, i, seg.At.Unix(), seg.DurationSec,
			seg.MeanPower, seg.MeanSpeedMps, seg.MeanGrade, seg.MeanWindMps,
			seg.MeanTempC, seg.MeanHumidity, seg.MeanHeartRate)
		if err != nil {
			return fmt.Errorf("insert segment %d of ride %s: %w", i, r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ride %s: %w", r.ID, err)
	}
	return nil
}

// RecentRides returns up to limit most recent rides, newest first, segments
// included. It satisfies the learner's ride source contract; limit is capped
// at the learner's training window.
func (s *Store) RecentRides(ctx context.Context, limit int) ([]learner.Ride, error) {
	if limit <= 0 || limit > learner.MaxTrainingRides {
		limit = learner.MaxTrainingRides
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_time_unix, end_time_unix, distance_m,
			avg_power, normalized_power, max_power, avg_temp_c
		FROM rides ORDER BY start_time_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent rides: %w", err)
	}
	defer rows.Close()

	var rides []learner.Ride
	for rows.Next() {
		var r learner.Ride
		var startUnix, endUnix int64
		if err := rows.Scan(&r.ID, &startUnix, &endUnix, &r.DistanceM,
			&r.AvgPower, &r.NormalizedPower, &r.MaxPower, &r.AvgTempC); err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		r.StartTime = time.Unix(startUnix, 0).UTC()
		r.EndTime = time.Unix(endUnix, 0).UTC()
		rides = append(rides, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rides: %w", err)
	}

	for i := range rides {
		segs, err := s.segments(ctx, rides[i].ID)
		if err != nil {
			return nil, err
		}
		rides[i].Segments = segs
	}
	return rides, nil
}

func (s *Store) segments(ctx context.Context, rideID string) ([]learner.Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT at_unix, duration_sec, mean_power, mean_speed_mps, mean_grade,
			mean_wind_mps, mean_temp_c, mean_humidity, mean_heart_rate
		FROM ride_segments WHERE ride_id = ? ORDER BY seq`, rideID)
	if err != nil {
		return nil, fmt.Errorf("query segments of ride %s: %w", rideID, err)
	}
	defer rows.Close()

	var segs []learner.Segment
	for rows.Next() {
		var seg learner.Segment
		var atUnix int64
		if err := rows.Scan(&atUnix, &seg.DurationSec, &seg.MeanPower,
			&seg.MeanSpeedMps, &seg.MeanGrade, &seg.MeanWindMps,
			&seg.MeanTempC, &seg.MeanHumidity, &seg.MeanHeartRate); err != nil {
			return nil, fmt.Errorf("scan segment of ride %s: %w", rideID, err)
		}
		seg.At = time.Unix(atUnix, 0).UTC()
		segs = append(segs, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments of ride %s: %w", rideID, err)
	}
	return segs, nil
}

// RideCount returns the number of stored rides.
func (s *Store) RideCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rides`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rides: %w", err)
	}
	return n, nil
}
