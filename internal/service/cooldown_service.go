package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"elearn_quiz_backend/internal/config"
	"elearn_quiz_backend/internal/model"
	"elearn_quiz_backend/internal/store"
	"elearn_quiz_backend/internal/util"
	"elearn_quiz_backend/pkg/logger"
	"elearn_quiz_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// CooldownService mastery 尝试配额账本：每日上限、尝试间冷却、最小间隔。
// CheckAttempt 纯读不写，RecordAttempt 是唯一的写入口
type CooldownService struct {
	KV    store.KV
	Quiz  *config.QuizConfig
	clock util.Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	cache map[string]*model.AttemptRecord
}

func NewCooldownService(kv store.KV, quizCfg *config.QuizConfig, clock util.Clock) *CooldownService {
	return &CooldownService{
		KV:    kv,
		Quiz:  quizCfg,
		clock: clock,
		locks: make(map[string]*sync.Mutex),
		cache: make(map[string]*model.AttemptRecord),
	}
}

func (s *CooldownService) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[key] = l
	return l
}

// CheckAttempt 判定是否允许发起一次 mastery 尝试。
// 判定优先级固定：已掌握 → 日配额（跨天按已重置视角、不落库）→ 冷却 → 最小间隔 → 放行。
// 拒绝是结构化业务结果，不是错误
func (s *CooldownService) CheckAttempt(ctx context.Context, learnerID, topicID string) (*model.AttemptCheck, error) {
	record, err := s.load(ctx, learnerID, topicID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	check := s.evaluate(record, now)
	if !check.Allowed {
		monitoring.AttemptDenials.WithLabelValues(string(check.Reason)).Inc()
	}
	return check, nil
}

// evaluate 对账本记录做只读判定；record 为 nil 表示首次尝试
func (s *CooldownService) evaluate(record *model.AttemptRecord, now time.Time) *model.AttemptCheck {
	maxPerDay := s.Quiz.MaxAttemptsPerDay

	if record == nil {
		return &model.AttemptCheck{
			Allowed:           true,
			Message:           "attempt allowed",
			RemainingAttempts: maxPerDay,
			ResetsAt:          s.nextResetAt(now),
		}
	}

	if record.Mastered {
		return &model.AttemptCheck{
			Reason:            model.DenialAlreadyMastered,
			Message:           "topic already mastered",
			RemainingAttempts: 0,
			ResetsAt:          record.ResetsAt,
		}
	}

	// 跨天后按已重置的视角判定，但不在读路径上落库
	attemptsToday := record.AttemptsToday
	resetsAt := record.ResetsAt
	if !now.Before(record.ResetsAt) {
		attemptsToday = 0
		resetsAt = s.nextResetAt(now)
	}
	remaining := maxPerDay - attemptsToday
	if remaining < 0 {
		remaining = 0
	}

	if attemptsToday >= maxPerDay {
		return &model.AttemptCheck{
			Reason:            model.DenialMaxAttemptsReached,
			Message:           fmt.Sprintf("daily attempt limit reached, resets in %s", util.FormatRemaining(resetsAt.Sub(now))),
			RemainingAttempts: 0,
			ResetsAt:          resetsAt,
		}
	}

	if record.CooldownEndsAt != nil && now.Before(*record.CooldownEndsAt) {
		return &model.AttemptCheck{
			Reason:            model.DenialInCooldown,
			Message:           fmt.Sprintf("in cooldown, try again in %s", util.FormatRemaining(record.CooldownEndsAt.Sub(now))),
			RemainingAttempts: remaining,
			ResetsAt:          resetsAt,
			CooldownEndsAt:    record.CooldownEndsAt,
		}
	}

	if record.LastAttemptAt != nil {
		earliest := record.LastAttemptAt.Add(time.Duration(s.Quiz.MinMinutesBetween) * time.Minute)
		if now.Before(earliest) {
			return &model.AttemptCheck{
				Reason:            model.DenialTooSoon,
				Message:           fmt.Sprintf("too soon since last attempt, wait %s", util.FormatRemaining(earliest.Sub(now))),
				RemainingAttempts: remaining,
				ResetsAt:          resetsAt,
			}
		}
	}

	return &model.AttemptCheck{
		Allowed:           true,
		Message:           "attempt allowed",
		RemainingAttempts: remaining,
		ResetsAt:          resetsAt,
	}
}

// RecordAttempt 账本唯一的写入口：落一次已完成的 mastery 尝试。
// 跨天重置在这里真正发生；bestScore 与 mastered 都单调不回退
func (s *CooldownService) RecordAttempt(ctx context.Context, learnerID, topicID string, score float64, passed bool) (*model.AttemptRecord, error) {
	key := store.AttemptKey(learnerID, topicID)
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()

	record, err := s.load(ctx, learnerID, topicID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	if record == nil {
		record = &model.AttemptRecord{
			TopicID:           topicID,
			LearnerID:         learnerID,
			MaxAttemptsPerDay: s.Quiz.MaxAttemptsPerDay,
			ResetsAt:          s.nextResetAt(now),
		}
	}

	if !now.Before(record.ResetsAt) {
		record.AttemptsToday = 0
		record.ResetsAt = s.nextResetAt(now)
	}

	record.AttemptsToday++
	record.LastAttemptAt = &now
	cooldownEnds := now.Add(time.Duration(s.Quiz.CooldownHours) * time.Hour)
	record.CooldownEndsAt = &cooldownEnds

	if score > record.BestScore {
		record.BestScore = score
	}
	if passed && !record.Mastered {
		record.Mastered = true
		record.MasteredAt = &now
	}

	record.History = append(record.History, model.AttemptHistoryEntry{
		AttemptedAt: now,
		Score:       score,
		Passed:      passed,
	})
	if len(record.History) > model.AttemptHistoryLimit {
		record.History = record.History[len(record.History)-model.AttemptHistoryLimit:]
	}

	if err := s.save(ctx, key, record); err != nil {
		return nil, err
	}

	monitoring.MasteryAttempts.WithLabelValues(strconv.FormatBool(passed)).Inc()
	return record, nil
}

// GetCooldownStatus 面向展示的只读投影，剩余时间已格式化
func (s *CooldownService) GetCooldownStatus(ctx context.Context, learnerID, topicID string) (*model.CooldownStatus, error) {
	record, err := s.load(ctx, learnerID, topicID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	return s.project(record, topicID, now), nil
}

// GetCooldownStatuses 批量投影，供路径页一次取整个小节的状态
func (s *CooldownService) GetCooldownStatuses(ctx context.Context, learnerID string, topicIDs []string) (map[string]*model.CooldownStatus, error) {
	now := s.clock.Now()
	statuses := make(map[string]*model.CooldownStatus, len(topicIDs))
	for _, topicID := range topicIDs {
		record, err := s.load(ctx, learnerID, topicID)
		if err != nil {
			return nil, err
		}
		statuses[topicID] = s.project(record, topicID, now)
	}
	return statuses, nil
}

func (s *CooldownService) project(record *model.AttemptRecord, topicID string, now time.Time) *model.CooldownStatus {
	maxPerDay := s.Quiz.MaxAttemptsPerDay
	status := &model.CooldownStatus{
		TopicID:           topicID,
		CooldownRemaining: util.FormatRemaining(0),
		RemainingAttempts: maxPerDay,
		ResetsAt:          s.nextResetAt(now),
	}
	if record == nil {
		return status
	}

	attemptsToday := record.AttemptsToday
	resetsAt := record.ResetsAt
	if !now.Before(record.ResetsAt) {
		attemptsToday = 0
		resetsAt = s.nextResetAt(now)
	}

	status.AttemptsToday = attemptsToday
	status.RemainingAttempts = maxPerDay - attemptsToday
	if status.RemainingAttempts < 0 {
		status.RemainingAttempts = 0
	}
	status.ResetsAt = resetsAt
	status.BestScore = record.BestScore
	status.Mastered = record.Mastered

	if record.CooldownEndsAt != nil && now.Before(*record.CooldownEndsAt) {
		status.InCooldown = true
		status.CooldownEndsAt = record.CooldownEndsAt
		status.CooldownRemaining = util.FormatRemaining(record.CooldownEndsAt.Sub(now))
	}
	return status
}

// GetRecord 读取原始账本记录，未尝试过返回 nil
func (s *CooldownService) GetRecord(ctx context.Context, learnerID, topicID string) (*model.AttemptRecord, error) {
	return s.load(ctx, learnerID, topicID)
}

// ResetAttempts 管理操作：清除 (学习者, 主题) 的账本记录
func (s *CooldownService) ResetAttempts(ctx context.Context, learnerID, topicID string) error {
	key := store.AttemptKey(learnerID, topicID)
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	return s.KV.Remove(ctx, key)
}

// nextResetAt 下一个每日重置时刻（本地时间 DailyResetHour 整点）
func (s *CooldownService) nextResetAt(now time.Time) time.Time {
	reset := time.Date(now.Year(), now.Month(), now.Day(), s.Quiz.DailyResetHour, 0, 0, 0, now.Location())
	if !now.Before(reset) {
		reset = reset.AddDate(0, 0, 1)
	}
	return reset
}

// load 返回记录副本。缓存内的记录只读共享，写入方改副本后由 save 整体换入，
// 并发的读方永远不会看到写到一半的记录
func (s *CooldownService) load(ctx context.Context, learnerID, topicID string) (*model.AttemptRecord, error) {
	key := store.AttemptKey(learnerID, topicID)

	s.mu.Lock()
	if record, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return record.Clone(), nil
	}
	s.mu.Unlock()

	raw, ok, err := s.KV.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var record model.AttemptRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		logger.Log.Warn("corrupt attempt record discarded", zap.String("key", key), zap.Error(err))
		return nil, nil
	}

	s.mu.Lock()
	s.cache[key] = &record
	s.mu.Unlock()
	return record.Clone(), nil
}

func (s *CooldownService) save(ctx context.Context, key string, record *model.AttemptRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.KV.Set(ctx, key, string(body)); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache[key] = record
	s.mu.Unlock()
	return nil
}
