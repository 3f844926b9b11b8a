package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/sonus/internal/cue"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for guidance tuning. The
// schema matches the /api/tuning endpoint so the same JSON can be used for
// both startup configuration and runtime updates.
type TuningConfig struct {
	// Periodic cue loop
	FrequencySeconds *float64 `json:"frequency_seconds,omitempty"`
	PlayNoTargetCue  *bool    `json:"play_no_target_cue,omitempty"`

	// Corridor hysteresis
	LockCorridorDeg            *float64 `json:"lock_corridor_deg,omitempty"`
	StraightAheadDeg           *float64 `json:"straight_ahead_deg,omitempty"`
	StraightAheadCooldown      *float64 `json:"straight_ahead_cooldown,omitempty"`
	StraightAheadRearmSeconds  *float64 `json:"straight_ahead_rearm_seconds,omitempty"`
	StraightAheadRearmExtraDeg *float64 `json:"straight_ahead_rearm_extra_deg,omitempty"`
	RecentLockGrace            *float64 `json:"recent_lock_grace,omitempty"`

	// Movement sampling
	MovementCuesEnabled        *bool    `json:"movement_cues_enabled,omitempty"`
	MinMoveSpeed               *float64 `json:"min_move_speed,omitempty"`
	MovementCueCooldown        *float64 `json:"movement_cue_cooldown,omitempty"`
	StraightAheadMovementGrace *float64 `json:"straight_ahead_movement_grace,omitempty"`
	IgnoreIfCloserThan         *float64 `json:"ignore_if_closer_than,omitempty"`

	// Scheduler
	SampleInterval *string `json:"sample_interval,omitempty"` // duration string like "200ms"
	FrameInterval  *string `json:"frame_interval,omitempty"`  // duration string like "50ms"
	TrailLength    *int    `json:"trail_length,omitempty"`

	// Distance bands with an audio asset, by name ("20m", ">500m"). Empty
	// means all bands.
	AvailableBands []string `json:"available_bands,omitempty"`

	// Observer start pose
	ObserverLat        *float64 `json:"observer_lat,omitempty"`
	ObserverLon        *float64 `json:"observer_lon,omitempty"`
	ObserverHeadingDeg *float64 `json:"observer_heading_deg,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to the
// value its getter falls back to.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		FrequencySeconds:           ptrFloat64(30),
		PlayNoTargetCue:            ptrBool(false),
		LockCorridorDeg:            ptrFloat64(20),
		StraightAheadDeg:           ptrFloat64(24),
		StraightAheadCooldown:      ptrFloat64(3),
		StraightAheadRearmSeconds:  ptrFloat64(0.75),
		StraightAheadRearmExtraDeg: ptrFloat64(6),
		RecentLockGrace:            ptrFloat64(4),
		MovementCuesEnabled:        ptrBool(true),
		MinMoveSpeed:               ptrFloat64(0.3),
		MovementCueCooldown:        ptrFloat64(6),
		StraightAheadMovementGrace: ptrFloat64(0.5),
		IgnoreIfCloserThan:         ptrFloat64(10),
		SampleInterval:             ptrString("200ms"),
		FrameInterval:              ptrString("50ms"),
		TrailLength:                ptrInt(600),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to their defaults, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Merge overlays every field set in other onto c.
func (c *TuningConfig) Merge(other *TuningConfig) {
	if other == nil {
		return
	}
	mergeF := func(dst **float64, src *float64) {
		if src != nil {
			*dst = ptrFloat64(*src)
		}
	}
	mergeB := func(dst **bool, src *bool) {
		if src != nil {
			*dst = ptrBool(*src)
		}
	}
	mergeF(&c.FrequencySeconds, other.FrequencySeconds)
	mergeB(&c.PlayNoTargetCue, other.PlayNoTargetCue)
	mergeF(&c.LockCorridorDeg, other.LockCorridorDeg)
	mergeF(&c.StraightAheadDeg, other.StraightAheadDeg)
	mergeF(&c.StraightAheadCooldown, other.StraightAheadCooldown)
	mergeF(&c.StraightAheadRearmSeconds, other.StraightAheadRearmSeconds)
	mergeF(&c.StraightAheadRearmExtraDeg, other.StraightAheadRearmExtraDeg)
	mergeF(&c.RecentLockGrace, other.RecentLockGrace)
	mergeB(&c.MovementCuesEnabled, other.MovementCuesEnabled)
	mergeF(&c.MinMoveSpeed, other.MinMoveSpeed)
	mergeF(&c.MovementCueCooldown, other.MovementCueCooldown)
	mergeF(&c.StraightAheadMovementGrace, other.StraightAheadMovementGrace)
	mergeF(&c.IgnoreIfCloserThan, other.IgnoreIfCloserThan)
	mergeF(&c.ObserverLat, other.ObserverLat)
	mergeF(&c.ObserverLon, other.ObserverLon)
	mergeF(&c.ObserverHeadingDeg, other.ObserverHeadingDeg)
	if other.SampleInterval != nil {
		c.SampleInterval = ptrString(*other.SampleInterval)
	}
	if other.FrameInterval != nil {
		c.FrameInterval = ptrString(*other.FrameInterval)
	}
	if other.TrailLength != nil {
		c.TrailLength = ptrInt(*other.TrailLength)
	}
	if other.AvailableBands != nil {
		c.AvailableBands = append([]string(nil), other.AvailableBands...)
	}
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	nonNegative := map[string]*float64{
		"frequency_seconds":              c.FrequencySeconds,
		"straight_ahead_cooldown":        c.StraightAheadCooldown,
		"straight_ahead_rearm_seconds":   c.StraightAheadRearmSeconds,
		"straight_ahead_rearm_extra_deg": c.StraightAheadRearmExtraDeg,
		"recent_lock_grace":              c.RecentLockGrace,
		"min_move_speed":                 c.MinMoveSpeed,
		"movement_cue_cooldown":          c.MovementCueCooldown,
		"straight_ahead_movement_grace":  c.StraightAheadMovementGrace,
		"ignore_if_closer_than":          c.IgnoreIfCloserThan,
	}
	for name, v := range nonNegative {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}

	for name, v := range map[string]*float64{
		"lock_corridor_deg":  c.LockCorridorDeg,
		"straight_ahead_deg": c.StraightAheadDeg,
	} {
		if v != nil && (*v <= 0 || *v > 180) {
			return fmt.Errorf("%s must be in (0, 180], got %f", name, *v)
		}
	}

	for name, v := range map[string]*string{
		"sample_interval": c.SampleInterval,
		"frame_interval":  c.FrameInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.TrailLength != nil && *c.TrailLength < 0 {
		return fmt.Errorf("trail_length must be non-negative, got %d", *c.TrailLength)
	}

	for _, name := range c.AvailableBands {
		if _, ok := cue.ParseBand(name); !ok {
			return fmt.Errorf("unknown distance band %q", name)
		}
	}

	if c.ObserverLat != nil && (*c.ObserverLat < -90 || *c.ObserverLat > 90) {
		return fmt.Errorf("observer_lat out of range: %f", *c.ObserverLat)
	}
	if c.ObserverLon != nil && (*c.ObserverLon < -180 || *c.ObserverLon > 180) {
		return fmt.Errorf("observer_lon out of range: %f", *c.ObserverLon)
	}
	return nil
}

func getFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def // default on parse error
	}
	return d
}

// GetFrequencySeconds returns the periodic cue interval or the default.
func (c *TuningConfig) GetFrequencySeconds() float64 { return getFloat(c.FrequencySeconds, 30) }

// GetPlayNoTargetCue returns play_no_target_cue or the default.
func (c *TuningConfig) GetPlayNoTargetCue() bool {
	if c.PlayNoTargetCue == nil {
		return false
	}
	return *c.PlayNoTargetCue
}

// GetLockCorridorDeg returns lock_corridor_deg or the default.
func (c *TuningConfig) GetLockCorridorDeg() float64 { return getFloat(c.LockCorridorDeg, 20) }

// GetStraightAheadDeg returns straight_ahead_deg or the default.
func (c *TuningConfig) GetStraightAheadDeg() float64 { return getFloat(c.StraightAheadDeg, 24) }

// GetStraightAheadCooldown returns straight_ahead_cooldown in seconds or the default.
func (c *TuningConfig) GetStraightAheadCooldown() float64 {
	return getFloat(c.StraightAheadCooldown, 3)
}

// GetStraightAheadRearmSeconds returns straight_ahead_rearm_seconds or the default.
func (c *TuningConfig) GetStraightAheadRearmSeconds() float64 {
	return getFloat(c.StraightAheadRearmSeconds, 0.75)
}

// GetStraightAheadRearmExtraDeg returns straight_ahead_rearm_extra_deg or the default.
func (c *TuningConfig) GetStraightAheadRearmExtraDeg() float64 {
	return getFloat(c.StraightAheadRearmExtraDeg, 6)
}

// GetRecentLockGrace returns recent_lock_grace in seconds or the default.
func (c *TuningConfig) GetRecentLockGrace() float64 { return getFloat(c.RecentLockGrace, 4) }

// GetMovementCuesEnabled returns movement_cues_enabled or the default.
func (c *TuningConfig) GetMovementCuesEnabled() bool {
	if c.MovementCuesEnabled == nil {
		return true
	}
	return *c.MovementCuesEnabled
}

// GetMinMoveSpeed returns min_move_speed or the default.
func (c *TuningConfig) GetMinMoveSpeed() float64 { return getFloat(c.MinMoveSpeed, 0.3) }

// GetMovementCueCooldown returns movement_cue_cooldown in seconds or the default.
func (c *TuningConfig) GetMovementCueCooldown() float64 {
	return getFloat(c.MovementCueCooldown, 6)
}

// GetStraightAheadMovementGrace returns straight_ahead_movement_grace in seconds or the default.
func (c *TuningConfig) GetStraightAheadMovementGrace() float64 {
	return getFloat(c.StraightAheadMovementGrace, 0.5)
}

// GetIgnoreIfCloserThan returns ignore_if_closer_than or the default.
func (c *TuningConfig) GetIgnoreIfCloserThan() float64 {
	return getFloat(c.IgnoreIfCloserThan, 10)
}

// GetSampleInterval returns the movement loop period.
func (c *TuningConfig) GetSampleInterval() time.Duration {
	return getDuration(c.SampleInterval, 200*time.Millisecond)
}

// GetFrameInterval returns the scheduler frame period.
func (c *TuningConfig) GetFrameInterval() time.Duration {
	return getDuration(c.FrameInterval, 50*time.Millisecond)
}

// GetTrailLength returns how many positions are kept per routed target.
func (c *TuningConfig) GetTrailLength() int {
	if c.TrailLength == nil {
		return 600
	}
	return *c.TrailLength
}

// GetAvailableBands returns the configured band names, or nil for all bands.
func (c *TuningConfig) GetAvailableBands() []string { return c.AvailableBands }

// GetObserver returns the configured observer start pose and whether a
// location was set.
func (c *TuningConfig) GetObserver() (lat, lon, heading float64, ok bool) {
	heading = getFloat(c.ObserverHeadingDeg, 0)
	if c.ObserverLat == nil || c.ObserverLon == nil {
		return 0, 0, heading, false
	}
	return *c.ObserverLat, *c.ObserverLon, heading, true
}
