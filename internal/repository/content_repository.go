package repository

import (
	"elearn_quiz_backend/internal/model"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContentRepository 内容协作方的数据库后端：path → JSON 载荷
type ContentRepository struct {
	DB *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{DB: db}
}

// FindByPath 按路径读取内容，不存在返回 nil（而非错误）
func (r *ContentRepository) FindByPath(path string) (json.RawMessage, error) {
	var entry model.ContentEntry
	err := r.DB.Where("path = ?", path).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry.Payload, nil
}

// Upsert 整体替换指定路径的内容
func (r *ContentRepository) Upsert(path string, payload json.RawMessage) error {
	entry := model.ContentEntry{Path: path, Payload: payload}
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&entry).Error
}

func (r *ContentRepository) Delete(path string) error {
	return r.DB.Where("path = ?", path).Delete(&model.ContentEntry{}).Error
}
