package nftstake

import (
	"errors"
	"fmt"

	"nftstake/storage"
)

// configStore owns the singleton Config record.
type configStore struct {
	st State
}

func (c configStore) initialize(cfg *Config) (ConfigID, error) {
	if err := ValidateConfig(cfg); err != nil {
		return ConfigID{}, err
	}
	if err := c.st.InsertStakeConfig(cfg.Clone()); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return ConfigID{}, ErrAlreadyInitialized
		}
		return ConfigID{}, err
	}
	return c.st.ConfigID(), nil
}

func (c configStore) load() (*Config, error) {
	cfg, ok, err := c.st.StakeConfig()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return cfg, nil
}

// ValidateConfig rejects parameters no lock could ever satisfy.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if cfg.MaxLocks == 0 {
		return fmt.Errorf("%w: max locks must be positive", ErrInvalidConfig)
	}
	if cfg.Collection == (CollectionID{}) {
		return fmt.Errorf("%w: collection required", ErrInvalidConfig)
	}
	return nil
}
