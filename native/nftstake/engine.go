package nftstake

import (
	"context"
	"log/slog"
	"time"

	"nftstake/core/events"
)

// Engine orchestrates configure, register, lock, unlock and claim against the
// record store and the custody service. Every operation runs in a single
// store transaction; events are emitted only after the transaction commits.
type Engine struct {
	store   Store
	custody Custody
	emitter events.Emitter
	logger  *slog.Logger
	nowFn   func() int64
}

// NewEngine creates a staking engine with a no-op emitter. Callers must
// configure a store and a custody service before invoking operations.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetStore configures the record store used by the engine.
func (e *Engine) SetStore(store Store) { e.store = store }

// SetCustody configures the custody service used by the engine.
func (e *Engine) SetCustody(custody Custody) { e.custody = custody }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger configures the logger. Passing nil restores slog.Default().
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With(slog.String("component", "nftstake"))
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) log() *slog.Logger {
	if e == nil || e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

func (e *Engine) ready(needCustody bool) error {
	if e == nil || e.store == nil {
		return errNilStore
	}
	if needCustody && e.custody == nil {
		return errNilCustody
	}
	return nil
}

// InitializeConfig creates the singleton configuration and returns its
// record address.
func (e *Engine) InitializeConfig(cfg Config) (ConfigID, error) {
	if err := e.ready(false); err != nil {
		return ConfigID{}, err
	}
	var id ConfigID
	err := e.store.Update(func(st State) error {
		var err error
		id, err = configStore{st: st}.initialize(&cfg)
		return err
	})
	if err != nil {
		return ConfigID{}, err
	}
	e.emit(events.StakeConfigured{
		ConfigID:      id,
		PointsPerLock: cfg.PointsPerLock,
		MaxLocks:      cfg.MaxLocks,
		FreezePeriod:  cfg.FreezePeriod,
		Collection:    cfg.Collection,
	})
	return id, nil
}

// RegisterHolder creates an empty holder record.
func (e *Engine) RegisterHolder(holder HolderID) (*Holder, error) {
	if err := e.ready(false); err != nil {
		return nil, err
	}
	var rec *Holder
	err := e.store.Update(func(st State) error {
		var err error
		rec, err = registry{st: st}.register(holder)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.emit(events.HolderRegistered{Holder: holder})
	return rec, nil
}

// Lock delegates custody of item to its derived authority, freezes it and
// records the lock. The lock record is written inside the transaction before
// the freeze is requested; if anything fails the transaction is discarded and
// any custody action already taken is reversed.
func (e *Engine) Lock(ctx context.Context, holder HolderID, item ItemID) (*Lock, error) {
	if err := e.ready(true); err != nil {
		return nil, err
	}
	now := e.now()
	var (
		rec       *Lock
		updated   *Holder
		authority HolderID
		delegated bool
		frozen    bool
	)
	err := e.store.Update(func(st State) error {
		delegated, frozen = false, false
		cfg, err := configStore{st: st}.load()
		if err != nil {
			return err
		}
		reg := registry{st: st}
		current, err := reg.get(holder)
		if err != nil {
			return err
		}
		if current.ActiveLocks >= cfg.MaxLocks {
			return ErrMaxLocksReached
		}
		member, err := e.custody.VerifyCollection(ctx, item, cfg.Collection)
		if err != nil {
			return custodyErr("verify", item, err)
		}
		if !member {
			return ErrUnverifiedAsset
		}
		rec, err = ledger{st: st}.create(holder, item, now)
		if err != nil {
			return err
		}
		authority = DeriveLockAuthority(st.ConfigID(), item)
		if err := e.custody.GrantDelegate(ctx, item, holder, authority); err != nil {
			return custodyErr("grant", item, err)
		}
		delegated = true
		if err := e.custody.Freeze(ctx, item, authority); err != nil {
			return custodyErr("freeze", item, err)
		}
		frozen = true
		updated, err = reg.incrementLocks(holder, cfg.MaxLocks)
		return err
	})
	if err != nil {
		if delegated {
			e.releaseCustody(ctx, holder, item, authority, frozen)
		}
		return nil, err
	}
	e.log().Debug("item locked",
		slog.String("holder", holder.String()),
		slog.String("item", item.String()),
		slog.Int64("lockedAt", now))
	e.emit(events.ItemLocked{
		Holder:      holder,
		Item:        item,
		Authority:   authority,
		LockedAt:    now,
		ActiveLocks: updated.ActiveLocks,
	})
	return rec, nil
}

// Unlock thaws item, revokes the delegate, credits the flat per-cycle reward
// and destroys the lock. Points are PointsPerLock regardless of how long the
// item stayed locked beyond the freeze period.
func (e *Engine) Unlock(ctx context.Context, holder HolderID, item ItemID) (*Holder, error) {
	if err := e.ready(true); err != nil {
		return nil, err
	}
	now := e.now()
	var (
		rec       *Lock
		updated   *Holder
		earned    uint32
		authority HolderID
		thawed    bool
		revoked   bool
	)
	err := e.store.Update(func(st State) error {
		thawed, revoked = false, false
		cfg, err := configStore{st: st}.load()
		if err != nil {
			return err
		}
		led := ledger{st: st}
		rec, err = led.owned(item, holder)
		if err != nil {
			return err
		}
		if now-rec.LockedAt < int64(cfg.FreezePeriod) {
			return ErrFreezePeriodActive
		}
		authority = DeriveLockAuthority(st.ConfigID(), item)
		if err := e.custody.Thaw(ctx, item, authority); err != nil {
			return custodyErr("thaw", item, err)
		}
		thawed = true
		if err := e.custody.RevokeDelegate(ctx, item, holder); err != nil {
			return custodyErr("revoke", item, err)
		}
		revoked = true
		reg := registry{st: st}
		earned = uint32(cfg.PointsPerLock)
		if _, err := reg.addPoints(holder, earned); err != nil {
			return err
		}
		updated, err = reg.decrementLocks(holder)
		if err != nil {
			return err
		}
		return led.remove(item, holder)
	})
	if err != nil {
		if thawed {
			e.restoreCustody(ctx, holder, item, authority, revoked)
		}
		return nil, err
	}
	e.log().Debug("item unlocked",
		slog.String("holder", holder.String()),
		slog.String("item", item.String()),
		slog.Int64("heldFor", now-rec.LockedAt))
	e.emit(events.ItemUnlocked{
		Holder:       holder,
		Item:         item,
		LockedAt:     rec.LockedAt,
		UnlockedAt:   now,
		PointsEarned: earned,
		Points:       updated.Points,
		ActiveLocks:  updated.ActiveLocks,
	})
	return updated, nil
}

// compensationTimeout bounds the custody calls that undo a failed operation.
const compensationTimeout = 30 * time.Second

// compensationContext detaches rollback calls from the caller's cancellation.
// A request that was cancelled half way through must still be unwound.
func compensationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
}

// releaseCustody reverses a partially applied lock whose record never
// committed, so no item stays delegated without a lock record.
func (e *Engine) releaseCustody(ctx context.Context, holder HolderID, item ItemID, authority HolderID, frozen bool) {
	ctx, cancel := compensationContext(ctx)
	defer cancel()
	if frozen {
		if err := e.custody.Thaw(ctx, item, authority); err != nil {
			e.log().Error("lock rollback: thaw failed",
				slog.String("item", item.String()), slog.Any("error", err))
		}
	}
	if err := e.custody.RevokeDelegate(ctx, item, holder); err != nil {
		e.log().Error("lock rollback: revoke failed",
			slog.String("item", item.String()), slog.Any("error", err))
	}
}

// restoreCustody re-applies the delegate and freeze after an unlock whose
// record deletion never committed, keeping the item consistent with its
// surviving lock record.
func (e *Engine) restoreCustody(ctx context.Context, holder HolderID, item ItemID, authority HolderID, revoked bool) {
	ctx, cancel := compensationContext(ctx)
	defer cancel()
	if revoked {
		if err := e.custody.GrantDelegate(ctx, item, holder, authority); err != nil {
			e.log().Error("unlock rollback: grant failed",
				slog.String("item", item.String()), slog.Any("error", err))
			return
		}
	}
	if err := e.custody.Freeze(ctx, item, authority); err != nil {
		e.log().Error("unlock rollback: freeze failed",
			slog.String("item", item.String()), slog.Any("error", err))
	}
}

// Config returns the stored configuration.
func (e *Engine) Config() (*Config, error) {
	if err := e.ready(false); err != nil {
		return nil, err
	}
	var cfg *Config
	err := e.store.View(func(st State) error {
		var err error
		cfg, err = configStore{st: st}.load()
		return err
	})
	return cfg, err
}

// ConfigID returns the record address of the configuration. The address is
// deterministic and available before initialization.
func (e *Engine) ConfigID() (ConfigID, error) {
	if err := e.ready(false); err != nil {
		return ConfigID{}, err
	}
	var id ConfigID
	err := e.store.View(func(st State) error {
		id = st.ConfigID()
		return nil
	})
	return id, err
}

// Holder returns the holder record for id.
func (e *Engine) Holder(id HolderID) (*Holder, error) {
	if err := e.ready(false); err != nil {
		return nil, err
	}
	var rec *Holder
	err := e.store.View(func(st State) error {
		var err error
		rec, err = registry{st: st}.get(id)
		return err
	})
	return rec, err
}

// LockStatus returns the lock for item together with the earliest unix time
// at which it may be unlocked.
func (e *Engine) LockStatus(item ItemID) (*Lock, int64, error) {
	if err := e.ready(false); err != nil {
		return nil, 0, err
	}
	var (
		rec *Lock
		at  int64
	)
	err := e.store.View(func(st State) error {
		cfg, err := configStore{st: st}.load()
		if err != nil {
			return err
		}
		rec, err = ledger{st: st}.get(item)
		if err != nil {
			return err
		}
		at = rec.UnlockableAt(cfg)
		return nil
	})
	return rec, at, err
}
