package service

import (
	"context"
	"encoding/json"
	"sync"

	"elearn_quiz_backend/internal/config"
	"elearn_quiz_backend/internal/event"
	"elearn_quiz_backend/internal/model"
	"elearn_quiz_backend/internal/store"
	"elearn_quiz_backend/internal/util"
	"elearn_quiz_backend/pkg/logger"
	"elearn_quiz_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// StreakService 连对追踪：按 (学习者, 主题) 维护连对状态。
// achieved 单调且达成事件只发一次；未 Start 的主题一切操作都是空操作
type StreakService struct {
	KV    store.KV
	Bus   *event.Bus
	Quiz  *config.QuizConfig
	clock util.Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStreakService(kv store.KV, bus *event.Bus, quizCfg *config.QuizConfig, clock util.Clock) *StreakService {
	return &StreakService{
		KV:    kv,
		Bus:   bus,
		Quiz:  quizCfg,
		clock: clock,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor 同一 (学习者, 主题) 的读改写串行化
func (s *StreakService) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[key] = l
	return l
}

// Start 开始追踪；已有未完成的追踪时幂等返回现有状态，不清零进度
func (s *StreakService) Start(ctx context.Context, learnerID, topicID string, cfg *model.StreakConfig) (*model.StreakState, error) {
	key := store.StreakKey(learnerID, topicID)
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()

	existing, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.IsComplete() {
		return existing, nil
	}

	target := s.Quiz.TargetStreak
	maxQuestions := s.Quiz.StreakMaxQuestions
	if cfg != nil {
		if cfg.TargetStreak > 0 {
			target = cfg.TargetStreak
		}
		if cfg.MaxQuestions > 0 {
			maxQuestions = cfg.MaxQuestions
		}
	}

	now := s.clock.Now()
	state := &model.StreakState{
		TopicID:      topicID,
		LearnerID:    learnerID,
		TargetStreak: target,
		MaxQuestions: maxQuestions,
		StartedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.save(ctx, key, state); err != nil {
		return nil, err
	}
	return state, nil
}

// RecordAnswer 记录一次作答并返回更新后的状态。
// 未开始追踪返回 nil；已完成的追踪不再累计。
// 答错时按配置回退：reset 清零当前连对，freeze 保持不动
func (s *StreakService) RecordAnswer(ctx context.Context, learnerID, topicID string, correct bool) (*model.StreakState, error) {
	key := store.StreakKey(learnerID, topicID)
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()

	state, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}
	if state.IsComplete() {
		return state, nil
	}

	state.TotalAttempted++
	if correct {
		state.TotalCorrect++
		state.CurrentStreak++
		if state.CurrentStreak > state.BestStreak {
			state.BestStreak = state.CurrentStreak
		}
	} else if s.Quiz.StreakOnIncorrect != "freeze" {
		state.CurrentStreak = 0
	}

	state.RecentAnswers = append(state.RecentAnswers, correct)
	if len(state.RecentAnswers) > model.StreakHistoryLimit {
		state.RecentAnswers = state.RecentAnswers[len(state.RecentAnswers)-model.StreakHistoryLimit:]
	}

	now := s.clock.Now()
	state.UpdatedAt = now

	achievedNow := false
	if !state.Achieved && state.CurrentStreak >= state.TargetStreak {
		state.Achieved = true
		state.AchievedAt = &now
		achievedNow = true
	}

	if err := s.save(ctx, key, state); err != nil {
		return nil, err
	}

	// 达成事件只在跨越目标的那一次作答发出
	if achievedNow {
		monitoring.StreaksAchieved.Inc()
		s.Bus.Publish(event.TopicStreakAchieved, state)
		logger.Log.Info("streak achieved",
			zap.String("learner", learnerID),
			zap.String("topic", topicID),
			zap.Int("target", state.TargetStreak))
	}

	return state, nil
}

// GetStreak 读取当前状态，未开始返回 nil
func (s *StreakService) GetStreak(ctx context.Context, learnerID, topicID string) (*model.StreakState, error) {
	return s.load(ctx, store.StreakKey(learnerID, topicID))
}

// Reset 管理操作：清零计数和历史，保留身份、目标和历史最佳；
// 从未追踪过的主题上是空操作
func (s *StreakService) Reset(ctx context.Context, learnerID, topicID string) error {
	key := store.StreakKey(learnerID, topicID)
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()

	state, err := s.load(ctx, key)
	if err != nil || state == nil {
		return err
	}

	state.CurrentStreak = 0
	state.TotalCorrect = 0
	state.TotalAttempted = 0
	state.RecentAnswers = nil
	state.Achieved = false
	state.AchievedAt = nil
	state.UpdatedAt = s.clock.Now()
	return s.save(ctx, key, state)
}

func (s *StreakService) load(ctx context.Context, key string) (*model.StreakState, error) {
	raw, ok, err := s.KV.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var state model.StreakState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		// 损坏的状态按不存在处理
		logger.Log.Warn("corrupt streak state discarded", zap.String("key", key), zap.Error(err))
		return nil, nil
	}
	return &state, nil
}

func (s *StreakService) save(ctx context.Context, key string, state *model.StreakState) error {
	body, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.KV.Set(ctx, key, string(body))
}
