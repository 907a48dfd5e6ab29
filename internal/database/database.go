package database

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database is an ambient persistence sink for trade/fill/daily-stats
// history. It is write-only from the bot's perspective: nothing here is
// read back to reconstruct core state at startup (§6).
type Database struct {
	db *gorm.DB
}

// Fill records one executed order fill for reporting.
type Fill struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"`
	OrderID     string          `gorm:"index"`
	MarketSlug  string          `gorm:"index"`
	Strategy    string
	Intent      string // "BUY_LONG", "SELL_SHORT", etc.
	Price       decimal.Decimal `gorm:"type:decimal(10,6)"`
	Quantity    int
	Fee         decimal.Decimal `gorm:"type:decimal(20,6)"`
	RealizedPnL decimal.Decimal `gorm:"type:decimal(20,6)"`
	CreatedAt   time.Time
}

// DailyStat records one day's equity/PnL/breaker snapshot.
type DailyStat struct {
	Day            string `gorm:"primaryKey"` // YYYY-MM-DD (UTC)
	StartEquity    decimal.Decimal `gorm:"type:decimal(20,6)"`
	EndEquity      decimal.Decimal `gorm:"type:decimal(20,6)"`
	RealizedPnL    decimal.Decimal `gorm:"type:decimal(20,6)"`
	TradeCount     int
	BreakerTripped bool
	BreakerReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func New(dsn string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("database connected (postgres)")
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("database initialized (sqlite)")
	}

	if err := db.AutoMigrate(&Fill{}, &DailyStat{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// SaveFill persists one executed fill.
func (d *Database) SaveFill(f *Fill) error {
	f.CreatedAt = time.Now()
	return d.db.Create(f).Error
}

// RecentFills returns the most recent fills, newest first.
func (d *Database) RecentFills(limit int) ([]Fill, error) {
	var fills []Fill
	err := d.db.Order("created_at DESC").Limit(limit).Find(&fills).Error
	return fills, err
}

// UpsertDailyStat writes or replaces the stat row for a UTC day.
func (d *Database) UpsertDailyStat(s *DailyStat) error {
	s.UpdatedAt = time.Now()
	return d.db.Save(s).Error
}

// DailyStats returns the most recent daily stat rows, newest first.
func (d *Database) DailyStats(limit int) ([]DailyStat, error) {
	var stats []DailyStat
	err := d.db.Order("day DESC").Limit(limit).Find(&stats).Error
	return stats, err
}
