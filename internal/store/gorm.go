package store

import (
	"context"
	"errors"

	"elearn_quiz_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormKV 基于 MySQL 的持久键值存储
type GormKV struct {
	db *gorm.DB
}

func NewGormKV(db *gorm.DB) *GormKV {
	return &GormKV{db: db}
}

func (g *GormKV) Get(ctx context.Context, key string) (string, bool, error) {
	var entry model.KVEntry
	err := g.db.WithContext(ctx).Where("`key` = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

func (g *GormKV) Set(ctx context.Context, key, value string) error {
	entry := model.KVEntry{Key: key, Value: value}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (g *GormKV) Remove(ctx context.Context, key string) error {
	return g.db.WithContext(ctx).Where("`key` = ?", key).Delete(&model.KVEntry{}).Error
}

func (g *GormKV) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := g.db.WithContext(ctx).Model(&model.KVEntry{}).
		Where("`key` LIKE ?", prefix+"%").
		Pluck("`key`", &keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}
