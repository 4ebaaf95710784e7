// Package config loads the head unit's JSON configuration. All fields are
// pointers so a partial file only overrides what it names; the Get* accessors
// supply defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration. The schema matches the /api/config
// endpoint so the same JSON serves startup files and runtime updates.
type Config struct {
	// Process-level settings
	ListenAddr *string `json:"listen_addr,omitempty"`
	SensorPort *string `json:"sensor_port,omitempty"`
	DBPath     *string `json:"db_path,omitempty"`
	ParamsPath *string `json:"params_path,omitempty"`

	// Rider defaults, used until calibration or the learner override them
	RiderMassKg        *float64 `json:"rider_mass_kg,omitempty"`
	RiderCdA           *float64 `json:"rider_cda,omitempty"`
	RiderCrr           *float64 `json:"rider_crr,omitempty"`
	RiderFTPWatts      *float64 `json:"rider_ftp_watts,omitempty"`
	DrivetrainLossFrac *float64 `json:"drivetrain_loss_frac,omitempty"`

	// Learner settings
	RetrainOnRideEnd *bool   `json:"retrain_on_ride_end,omitempty"`
	RetrainInterval  *string `json:"retrain_interval,omitempty"` // duration string like "30m"
}

// helpers for building configs in code and tests
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrBool(v bool) *bool          { return &v }

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads and validates a JSON config file. Fields absent from the file
// fall through to the accessor defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects values no rider or bike can have.
func (c *Config) Validate() error {
	if c.RiderMassKg != nil && *c.RiderMassKg <= 0 {
		return fmt.Errorf("rider_mass_kg must be positive, got %v", *c.RiderMassKg)
	}
	if c.RiderCdA != nil && (*c.RiderCdA <= 0 || *c.RiderCdA > 1) {
		return fmt.Errorf("rider_cda must be in (0,1], got %v", *c.RiderCdA)
	}
	if c.RiderCrr != nil && (*c.RiderCrr <= 0 || *c.RiderCrr >= 1) {
		return fmt.Errorf("rider_crr must be in (0,1), got %v", *c.RiderCrr)
	}
	if c.RiderFTPWatts != nil && *c.RiderFTPWatts < 0 {
		return fmt.Errorf("rider_ftp_watts must be non-negative, got %v", *c.RiderFTPWatts)
	}
	if c.DrivetrainLossFrac != nil && (*c.DrivetrainLossFrac < 0 || *c.DrivetrainLossFrac >= 1) {
		return fmt.Errorf("drivetrain_loss_frac must be in [0,1), got %v", *c.DrivetrainLossFrac)
	}
	if c.RetrainInterval != nil {
		if _, err := time.ParseDuration(*c.RetrainInterval); err != nil {
			return fmt.Errorf("retrain_interval: %w", err)
		}
	}
	return nil
}

func (c *Config) GetListenAddr() string {
	if c.ListenAddr == nil {
		return ":8080"
	}
	return *c.ListenAddr
}

func (c *Config) GetSensorPort() string {
	if c.SensorPort == nil {
		return "/dev/ttyUSB0"
	}
	return *c.SensorPort
}

func (c *Config) GetDBPath() string {
	if c.DBPath == nil {
		return "rides.db"
	}
	return *c.DBPath
}

func (c *Config) GetParamsPath() string {
	if c.ParamsPath == nil {
		return "rider.json"
	}
	return *c.ParamsPath
}

func (c *Config) GetRiderMassKg() float64 {
	if c.RiderMassKg == nil {
		return 85
	}
	return *c.RiderMassKg
}

func (c *Config) GetRiderCdA() float64 {
	if c.RiderCdA == nil {
		return 0.32
	}
	return *c.RiderCdA
}

func (c *Config) GetRiderCrr() float64 {
	if c.RiderCrr == nil {
		return 0.0045
	}
	return *c.RiderCrr
}

// GetRiderFTPWatts returns 0 when no FTP is configured; the learner's
// estimate takes over in that case.
func (c *Config) GetRiderFTPWatts() float64 {
	if c.RiderFTPWatts == nil {
		return 0
	}
	return *c.RiderFTPWatts
}

func (c *Config) GetDrivetrainLossFrac() float64 {
	if c.DrivetrainLossFrac == nil {
		return 0.03
	}
	return *c.DrivetrainLossFrac
}

func (c *Config) GetRetrainOnRideEnd() bool {
	if c.RetrainOnRideEnd == nil {
		return true
	}
	return *c.RetrainOnRideEnd
}

func (c *Config) GetRetrainInterval() time.Duration {
	if c.RetrainInterval == nil {
		return 30 * time.Minute
	}
	d, err := time.ParseDuration(*c.RetrainInterval)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}
