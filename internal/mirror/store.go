// Package mirror keeps a durable copy of every card so state survives a
// restart. The in-memory card is always authoritative while the process runs;
// the mirror is only read at boot.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/fightcard-backend/internal/engine"
	"github.com/DoyleJ11/fightcard-backend/pkg/types"
)

// Saver writes a complete snapshot of one card.
type Saver interface {
	Save(ctx context.Context, slug string, snap types.Snapshot) error
}

// Loader reads back what a Saver wrote. found is false when nothing was ever
// saved for slug.
type Loader interface {
	Load(ctx context.Context, slug string) (snap types.Snapshot, found bool, err error)
}

// Store is the relational mirror, backed by Postgres in production and SQLite
// for local runs.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Dialector picks the gorm driver for dsn: postgres:// and postgresql:// URLs
// go to Postgres, sqlite:<path> or a bare path to SQLite.
func Dialector(dsn string) gorm.Dialector {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn)
	case strings.HasPrefix(dsn, "sqlite:"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite:"))
	default:
		return sqlite.Open(dsn)
	}
}

func Open(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(Dialector(dsn), &gorm.Config{Logger: NewGormLogger(log)})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := NewStore(db)
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&FightRow{}, &MetaRow{}, &CardRow{}, &AuditRow{}); err != nil {
		return fmt.Errorf("migrating mirror schema: %w", err)
	}
	return nil
}

// Save replaces the card's fight sequence and upserts every metadata key in
// one transaction, so a reader never sees a half written sequence.
func (s *Store) Save(ctx context.Context, slug string, snap types.Snapshot) error {
	fights := fightRows(slug, snap.Fights)
	meta, err := metaRows(slug, snap, s.now())
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("card_slug = ?", slug).Delete(&FightRow{}).Error; err != nil {
			return fmt.Errorf("clearing fights: %w", err)
		}
		if len(fights) > 0 {
			if err := tx.Create(&fights).Error; err != nil {
				return fmt.Errorf("inserting fights: %w", err)
			}
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "card_slug"}, {Name: "meta_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&meta).Error
		if err != nil {
			return fmt.Errorf("upserting metadata: %w", err)
		}
		return nil
	})
}

func (s *Store) Load(ctx context.Context, slug string) (types.Snapshot, bool, error) {
	var fights []FightRow
	if err := s.db.WithContext(ctx).Where("card_slug = ?", slug).Order("position").Find(&fights).Error; err != nil {
		return types.Snapshot{}, false, fmt.Errorf("reading fights: %w", err)
	}
	var meta []MetaRow
	if err := s.db.WithContext(ctx).Where("card_slug = ?", slug).Find(&meta).Error; err != nil {
		return types.Snapshot{}, false, fmt.Errorf("reading metadata: %w", err)
	}
	if len(fights) == 0 && len(meta) == 0 {
		return types.Snapshot{}, false, nil
	}

	snap := engine.NewEmptyState()
	snap.Fights = fightsFromRows(fights)
	applyMeta(&snap, meta)
	return snap, true, nil
}

func (s *Store) SaveCard(ctx context.Context, rec types.CardRecord) error {
	row := cardRow(rec)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("saving card %q: %w", rec.Slug, err)
	}
	return nil
}

func (s *Store) SaveAudit(ctx context.Context, e types.AuditEntry) error {
	row, err := auditRow(e)
	if err != nil {
		return fmt.Errorf("encoding audit entry for %q: %w", e.Slug, err)
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("saving audit entry for %q: %w", e.Slug, err)
	}
	return nil
}

// ListCards returns every registered card that has not expired at now.
func (s *Store) ListCards(ctx context.Context, now time.Time) ([]types.CardRecord, error) {
	var rows []CardRow
	err := s.db.WithContext(ctx).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing cards: %w", err)
	}
	out := make([]types.CardRecord, len(rows))
	for i, r := range rows {
		out[i] = cardRecord(r)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormLogger sends gorm's output through zap.
type gormLogger struct {
	log   *zap.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

func NewGormLogger(log *zap.Logger) gormlogger.Interface {
	if log == nil {
		log = zap.NewNop()
	}
	return &gormLogger{log: log, level: gormlogger.Warn, slow: 500 * time.Millisecond}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.Sugar().Infof(msg, args...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Sugar().Warnf(msg, args...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.Sugar().Errorf(msg, args...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.log.Warn("sql error", zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed), zap.Error(err))
	case elapsed > l.slow && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.Warn("slow sql", zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.log.Debug("sql", zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	}
}
