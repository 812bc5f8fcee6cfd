package nftstake

// State exposes the keyed records visible to a single operation. Insert
// methods are create-only and report storage.ErrExists when the derived
// address is occupied.
type State interface {
	ConfigID() ConfigID
	StakeConfig() (*Config, bool, error)
	InsertStakeConfig(cfg *Config) error

	Holder(id HolderID) (*Holder, bool, error)
	InsertHolder(h *Holder) error
	PutHolder(h *Holder) error

	Lock(item ItemID) (*Lock, bool, error)
	InsertLock(l *Lock) error
	DeleteLock(item ItemID) error
}

// Store runs operations against State. Update commits every write made by fn
// atomically, or none of them when fn returns an error.
type Store interface {
	View(fn func(State) error) error
	Update(fn func(State) error) error
}
