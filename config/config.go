package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultParams mirrors the reference deployment: ten points per completed
// lock, two concurrent locks and a one hour freeze.
func DefaultParams() Params {
	return Params{
		PointsPerLock: 10,
		MaxLocks:      2,
		FreezePeriod:  Duration(time.Hour),
	}
}

// LoadParams loads staking parameters from the given path. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func LoadParams(path string) (Params, error) {
	params := DefaultParams()
	meta, err := toml.DecodeFile(path, &params)
	if err != nil {
		return Params{}, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Params{}, fmt.Errorf("config file %s has unknown keys: %v", path, undecoded)
	}
	return params, nil
}

// WriteParams persists params as TOML, creating parent directories. An
// existing file is only replaced when overwrite is set.
func WriteParams(path string, params Params, overwrite bool) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(params)
}
