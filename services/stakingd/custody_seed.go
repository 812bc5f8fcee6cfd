package stakingd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"nftstake/integrations/custody/memory"
	"nftstake/native/nftstake"
)

// SeedItem is one item minted into the in-process custody ledger at startup.
// Owner accepts a bech32 holder address or 0x-prefixed hex.
type SeedItem struct {
	Item       string `yaml:"item"`
	Owner      string `yaml:"owner"`
	Collection string `yaml:"collection"`
	Verified   bool   `yaml:"verified"`
}

type custodySeedFile struct {
	Items []SeedItem `yaml:"items"`
}

// LoadCustodySeed reads the item list minted into the memory custody driver.
func LoadCustodySeed(path string) ([]SeedItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read custody seed: %w", err)
	}
	var seed custodySeedFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode custody seed: %w", err)
	}
	return seed.Items, nil
}

// seedCustody mints items into ledger. Duplicate items are rejected so a
// typo cannot silently reassign ownership.
func seedCustody(ledger *memory.Custody, items []SeedItem) error {
	for i, entry := range items {
		item, err := nftstake.ParseItemID(entry.Item)
		if err != nil {
			return fmt.Errorf("custody seed entry %d: %w", i, err)
		}
		owner, err := nftstake.ParseHolderID(entry.Owner)
		if err != nil {
			return fmt.Errorf("custody seed entry %d: %w", i, err)
		}
		collection, err := nftstake.ParseCollectionID(entry.Collection)
		if err != nil {
			return fmt.Errorf("custody seed entry %d: %w", i, err)
		}
		if err := ledger.Mint(item, owner, collection, entry.Verified); err != nil {
			return fmt.Errorf("custody seed entry %d: %w", i, err)
		}
	}
	return nil
}
