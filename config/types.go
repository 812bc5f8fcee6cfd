package config

import (
	"fmt"
	"math"
	"time"
)

// Params captures the staking parameters an operator configures once per
// deployment.
type Params struct {
	PointsPerLock uint8    `toml:"PointsPerLock"`
	MaxLocks      uint8    `toml:"MaxLocks"`
	FreezePeriod  Duration `toml:"FreezePeriod"`
	Collection    string   `toml:"Collection"`
}

// Duration accepts either a Go duration string ("1h") or an integer number
// of seconds in TOML.
type Duration time.Duration

// UnmarshalTOML implements toml.Unmarshaler.
func (d *Duration) UnmarshalTOML(v interface{}) error {
	switch value := v.(type) {
	case int64:
		if value < 0 {
			return fmt.Errorf("duration must not be negative: %d", value)
		}
		*d = Duration(time.Duration(value) * time.Second)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("unsupported duration type %T", v)
	}
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Seconds returns the duration as whole seconds, rejecting values that do not
// fit the on-chain representation.
func (d Duration) Seconds() (uint32, error) {
	dur := time.Duration(d)
	if dur < 0 {
		return 0, fmt.Errorf("duration must not be negative")
	}
	if dur%time.Second != 0 {
		return 0, fmt.Errorf("duration %s is not a whole number of seconds", dur)
	}
	secs := int64(dur / time.Second)
	if secs > math.MaxUint32 {
		return 0, fmt.Errorf("duration %s exceeds %d seconds", dur, uint32(math.MaxUint32))
	}
	return uint32(secs), nil
}
