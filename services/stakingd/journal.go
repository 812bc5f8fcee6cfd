package stakingd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"nftstake/core/events"
	"nftstake/integrations/exports"
	"nftstake/native/nftstake"
)

// JournalEntry is one committed staking event.
type JournalEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type       string    `gorm:"index;not null"`
	Holder     string    `gorm:"index"`
	Item       string    `gorm:"index"`
	Points     uint32
	Amount     string
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

// TableName pins the table name independent of the struct name.
func (JournalEntry) TableName() string { return "stake_journal" }

// Journal appends every emitted event to a SQL table. It satisfies
// events.Emitter; write failures are logged and never reach the engine.
type Journal struct {
	db       *gorm.DB
	decimals uint8
	logger   *slog.Logger
	now      func() time.Time
}

// OpenJournal connects to dsn. postgres:// and postgresql:// DSNs use the
// postgres driver; anything else is treated as a sqlite DSN.
func OpenJournal(dsn string, decimals uint8, logger *slog.Logger) (*Journal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("journal dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return NewJournal(db, decimals, logger)
}

// NewJournal migrates the journal table on db.
func NewJournal(db *gorm.DB, decimals uint8, logger *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal database required")
	}
	if err := db.AutoMigrate(&JournalEntry{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		db:       db,
		decimals: decimals,
		logger:   logger.With(slog.String("component", "journal")),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter.
func (j *Journal) Emit(evt events.Event) {
	if j == nil || evt == nil {
		return
	}
	if err := j.Append(context.Background(), evt); err != nil {
		j.logger.Error("journal append failed",
			slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Append writes evt as a new journal row.
func (j *Journal) Append(ctx context.Context, evt events.Event) error {
	rendered := events.Render(evt)
	if rendered == nil {
		return nil
	}
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	entry := JournalEntry{
		ID:         uuid.New(),
		Type:       rendered.Type,
		Holder:     rendered.Attributes["holder"],
		Item:       rendered.Attributes["item"],
		Attributes: string(attrs),
		CreatedAt:  j.now(),
	}
	switch e := evt.(type) {
	case events.RewardsClaimed:
		entry.Points = e.Payout
		entry.Amount = PayoutAmount(e.Payout, j.decimals).Dec()
		if e.ClaimedAt > 0 {
			entry.CreatedAt = time.Unix(e.ClaimedAt, 0).UTC()
		}
	case events.ItemUnlocked:
		entry.Points = e.PointsEarned
	}
	return j.db.WithContext(ctx).Create(&entry).Error
}

// JournalFilter narrows Entries. Zero values match everything.
type JournalFilter struct {
	Type   string
	Holder string
	Since  time.Time
	Limit  int
}

// Entries returns journal rows in insertion order.
func (j *Journal) Entries(ctx context.Context, filter JournalFilter) ([]JournalEntry, error) {
	query := j.db.WithContext(ctx).Model(&JournalEntry{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Holder != "" {
		query = query.Where("holder = ?", filter.Holder)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var entries []JournalEntry
	if err := query.Order("created_at asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Claims returns settled claim receipts recorded since the given time.
func (j *Journal) Claims(ctx context.Context, since time.Time) ([]exports.ClaimReceipt, error) {
	entries, err := j.Entries(ctx, JournalFilter{Type: events.TypeRewardsClaimed, Since: since})
	if err != nil {
		return nil, err
	}
	receipts := make([]exports.ClaimReceipt, 0, len(entries))
	for _, entry := range entries {
		holder, err := nftstake.ParseHolderID(entry.Holder)
		if err != nil {
			return nil, fmt.Errorf("journal entry %s: %w", entry.ID, err)
		}
		amount, err := uint256.FromDecimal(entry.Amount)
		if err != nil {
			return nil, fmt.Errorf("journal entry %s: amount: %w", entry.ID, err)
		}
		receipts = append(receipts, exports.ClaimReceipt{
			ID:        entry.ID.String(),
			Holder:    holder,
			Points:    entry.Points,
			Amount:    amount,
			ClaimedAt: entry.CreatedAt,
		})
	}
	return receipts, nil
}

// ActiveLocks derives the number of open locks from the lock and unlock
// history.
func (j *Journal) ActiveLocks(ctx context.Context) (int64, error) {
	var locked, unlocked int64
	if err := j.db.WithContext(ctx).Model(&JournalEntry{}).Where("type = ?", events.TypeItemLocked).Count(&locked).Error; err != nil {
		return 0, err
	}
	if err := j.db.WithContext(ctx).Model(&JournalEntry{}).Where("type = ?", events.TypeItemUnlocked).Count(&unlocked).Error; err != nil {
		return 0, err
	}
	if unlocked > locked {
		return 0, nil
	}
	return locked - unlocked, nil
}

// Attribute decodes a single attribute from the stored JSON.
func (e JournalEntry) Attribute(key string) string {
	var attrs map[string]string
	if err := json.Unmarshal([]byte(e.Attributes), &attrs); err != nil {
		return ""
	}
	return attrs[key]
}

// AttributeInt parses a numeric attribute, returning zero when absent.
func (e JournalEntry) AttributeInt(key string) int64 {
	value, err := strconv.ParseInt(e.Attribute(key), 10, 64)
	if err != nil {
		return 0
	}
	return value
}
