// Package explorer indexes committed farm events into a SQL database so
// they can be listed without replaying the ledger.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"xfarm/core/events"
	"xfarm/observability"
)

const (
	// DefaultLimit caps Query results when the filter does not.
	DefaultLimit = 100
	// MaxLimit is the largest page Query returns.
	MaxLimit = 1000
)

// EventRecord is one indexed event. Seq preserves emission order.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex"`
	Height     uint64    `gorm:"index"`
	Type       string    `gorm:"index"`
	Pool       string    `gorm:"index"`
	Account    string    `gorm:"index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// Attrs decodes the stored attributes.
func (r EventRecord) Attrs() (map[string]string, error) {
	attrs := make(map[string]string)
	if strings.TrimSpace(r.Attributes) == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

// Filter narrows Query. Zero fields match everything.
type Filter struct {
	Pool    string
	Type    string
	Account string
	Limit   int
}

// Index stores events in a gorm database.
type Index struct {
	db      *gorm.DB
	logger  *slog.Logger
	metrics *observability.ExplorerMetrics

	mu  sync.Mutex
	seq uint64
}

// Open connects to the driver ("sqlite" or "postgres") and migrates the
// schema.
func Open(driver, dsn string) (*Index, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("explorer: unknown driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("explorer: open %s: %w", driver, err)
	}
	return New(db)
}

// New wraps an open gorm handle.
func New(db *gorm.DB) (*Index, error) {
	if db == nil {
		return nil, errors.New("explorer: database must not be nil")
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("explorer: migrate: %w", err)
	}
	var last EventRecord
	res := db.Order("seq desc").Limit(1).Find(&last)
	if res.Error != nil {
		return nil, fmt.Errorf("explorer: load sequence: %w", res.Error)
	}
	return &Index{
		db:      db,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: observability.Explorer(),
		seq:     last.Seq,
	}, nil
}

// SetLogger replaces the discard logger.
func (i *Index) SetLogger(logger *slog.Logger) {
	if logger != nil {
		i.logger = logger
	}
}

// Emit implements events.Emitter. Failures are logged and counted; the
// ledger never waits on the index.
func (i *Index) Emit(evt events.Event) {
	if err := i.Record(context.Background(), evt); err != nil {
		i.metrics.RecordError("insert")
		i.logger.Error("explorer: index event", "type", evt.EventType(), "error", err)
	}
}

// Record inserts evt.
func (i *Index) Record(ctx context.Context, evt events.Event) error {
	if evt == nil {
		return nil
	}
	rec := EventRecord{ID: uuid.New(), Type: evt.EventType()}
	if typed, ok := evt.(events.Typed); ok {
		if rendered := typed.Event(); rendered != nil {
			rec.Height = rendered.Height
			rec.Pool = rendered.Attributes["pool"]
			rec.Account = rendered.Attributes["account"]
			if rec.Account == "" {
				rec.Account = rendered.Attributes["sender"]
			}
			raw, err := json.Marshal(rendered.Attributes)
			if err != nil {
				return err
			}
			rec.Attributes = string(raw)
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	rec.Seq = i.seq + 1
	if err := i.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return err
	}
	i.seq = rec.Seq
	i.metrics.RecordIndexed(rec.Type)
	return nil
}

// Query returns matching events, newest first.
func (i *Index) Query(ctx context.Context, filter Filter) ([]EventRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	tx, err := i.filtered(ctx, filter)
	if err != nil {
		return nil, err
	}
	var out []EventRecord
	if err := tx.Order("seq desc").Limit(limit).Find(&out).Error; err != nil {
		i.metrics.RecordError("query")
		return nil, err
	}
	return out, nil
}

func (i *Index) filtered(ctx context.Context, filter Filter) (*gorm.DB, error) {
	tx := i.db.WithContext(ctx).Model(&EventRecord{})
	if pool := strings.TrimSpace(filter.Pool); pool != "" {
		if _, err := strconv.ParseUint(pool, 10, 64); err != nil {
			return nil, fmt.Errorf("explorer: invalid pool %q", filter.Pool)
		}
		tx = tx.Where("pool = ?", pool)
	}
	if typ := strings.TrimSpace(filter.Type); typ != "" {
		tx = tx.Where("type = ?", typ)
	}
	if account := strings.TrimSpace(filter.Account); account != "" {
		tx = tx.Where("account = ?", strings.ToLower(account))
	}
	return tx, nil
}

// Close releases the database connection.
func (i *Index) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
