package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dhis2-sre/im-console/internal/errdef"
	"github.com/dhis2-sre/im-console/pkg/config"
	slogGorm "github.com/orandin/slog-gorm"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func NewDatabase(logger *slog.Logger, c config.Postgresql) (*gorm.DB, error) {
	databaseConfig := gorm.Config{
		Logger: slogGorm.New(slogGorm.WithHandler(logger.Handler())),
	}

	db, err := gorm.Open(postgres.Open(c.DSN()), &databaseConfig)
	if err != nil {
		return nil, err
	}

	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		return nil, fmt.Errorf("failed to add tracing to database: %v", err)
	}

	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, err
	}

	return db, nil
}

type entry struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

func (entry) TableName() string {
	return "kv_entries"
}

func NewDatabaseStore(db *gorm.DB, prefix string) *databaseStore {
	return &databaseStore{db: db, prefix: prefix}
}

type databaseStore struct {
	db     *gorm.DB
	prefix string
}

func (d databaseStore) Get(ctx context.Context, key string) (string, error) {
	var e entry
	err := d.db.
		WithContext(ctx).
		Where("key = ?", d.prefix+key).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", errdef.NewNotFound("key %q doesn't exist", key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to find key %q: %v", key, err)
	}
	return e.Value, nil
}

func (d databaseStore) Set(ctx context.Context, key, value string) error {
	// only use ctx for values (logging) and not cancellation signals on writes
	ctx = context.WithoutCancel(ctx)

	e := entry{Key: d.prefix + key, Value: value}
	return d.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&e).Error
}

func (d databaseStore) Delete(ctx context.Context, key string) error {
	ctx = context.WithoutCancel(ctx)

	return d.db.
		WithContext(ctx).
		Where("key = ?", d.prefix+key).
		Delete(&entry{}).Error
}
