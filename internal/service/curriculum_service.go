package service

import (
	"context"
	"encoding/json"

	"elearn_quiz_backend/internal/model"
	"elearn_quiz_backend/internal/repository"
)

// CurriculumProvider 课程协作方：只读的课程树查询
type CurriculumProvider interface {
	GetPath(ctx context.Context, pathID string) (*model.LearningPath, error)
}

// CurriculumService 课程树的读写入口
type CurriculumService struct {
	Repo *repository.CurriculumRepository
}

func NewCurriculumService(repo *repository.CurriculumRepository) *CurriculumService {
	return &CurriculumService{Repo: repo}
}

// GetPath 读取课程树，不存在返回 nil
func (s *CurriculumService) GetPath(_ context.Context, pathID string) (*model.LearningPath, error) {
	return s.Repo.FindByPathID(pathID)
}

// PutPath 整体替换课程树
func (s *CurriculumService) PutPath(_ context.Context, pathID string, payload json.RawMessage) error {
	return s.Repo.Upsert(pathID, payload)
}

func (s *CurriculumService) DeletePath(_ context.Context, pathID string) error {
	return s.Repo.Delete(pathID)
}
