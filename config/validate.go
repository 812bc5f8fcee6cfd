package config

import (
	"fmt"
	"strings"

	"nftstake/native/nftstake"
)

// ValidateParams checks the staking parameters and converts them into the
// engine's configuration record.
func ValidateParams(p Params) (nftstake.Config, error) {
	var cfg nftstake.Config
	if p.MaxLocks == 0 {
		return cfg, fmt.Errorf("params: MaxLocks must be at least 1")
	}
	if p.PointsPerLock == 0 {
		return cfg, fmt.Errorf("params: PointsPerLock must be at least 1")
	}
	secs, err := p.FreezePeriod.Seconds()
	if err != nil {
		return cfg, fmt.Errorf("params: FreezePeriod: %w", err)
	}
	if strings.TrimSpace(p.Collection) == "" {
		return cfg, fmt.Errorf("params: Collection required")
	}
	collection, err := nftstake.ParseCollectionID(p.Collection)
	if err != nil {
		return cfg, fmt.Errorf("params: %w", err)
	}
	cfg = nftstake.Config{
		PointsPerLock: p.PointsPerLock,
		MaxLocks:      p.MaxLocks,
		FreezePeriod:  secs,
		Collection:    collection,
	}
	if err := nftstake.ValidateConfig(&cfg); err != nil {
		return nftstake.Config{}, err
	}
	return cfg, nil
}
