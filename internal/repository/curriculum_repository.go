package repository

import (
	"elearn_quiz_backend/internal/model"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CurriculumRepository 课程树存储：pathId → LearningPath JSON
type CurriculumRepository struct {
	DB *gorm.DB
}

func NewCurriculumRepository(db *gorm.DB) *CurriculumRepository {
	return &CurriculumRepository{DB: db}
}

// FindByPathID 读取课程树，不存在或载荷损坏都返回 nil
func (r *CurriculumRepository) FindByPathID(pathID string) (*model.LearningPath, error) {
	var entry model.CurriculumEntry
	err := r.DB.Where("path_id = ?", pathID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var path model.LearningPath
	if err := json.Unmarshal(entry.Payload, &path); err != nil {
		// 损坏的课程树按不存在处理
		return nil, nil
	}
	return &path, nil
}

// Upsert 整体替换课程树
func (r *CurriculumRepository) Upsert(pathID string, payload json.RawMessage) error {
	entry := model.CurriculumEntry{PathID: pathID, Payload: payload}
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&entry).Error
}

func (r *CurriculumRepository) Delete(pathID string) error {
	return r.DB.Where("path_id = ?", pathID).Delete(&model.CurriculumEntry{}).Error
}
