package slot

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SlotItem represents a row in the slot table
type SlotItem struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

// Postgres is a Slot stored in a Postgres table through GORM.
type Postgres struct {
	db *gorm.DB
}

var _ Slot = (*Postgres)(nil)

// OpenPostgres connects and migrates the slot table
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&SlotItem{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) Get(key string) (string, bool, error) {
	var item SlotItem
	err := p.db.Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return item.Value, true, nil
}

// Set upserts the row
func (p *Postgres) Set(key, value string) error {
	item := SlotItem{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	if err := p.db.Save(&item).Error; err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) Remove(key string) error {
	if err := p.db.Delete(&SlotItem{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying connection pool
func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
