package service

import (
	"context"
	"encoding/json"
	"sort"
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

// gateFlags 关卡的少量持久化标记；其余字段每次读取时从配额账本重新派生
type gateFlags struct {
	SkipUnlocked bool `json:"skipUnlocked"`
	Completed    bool `json:"completed"`
	Skipped      bool `json:"skipped"`
}

// PathAdaptationService 路径适配层：小节关卡、挫折推荐、预评估跳级。
// 关卡不是独立权威数据，每次读取都基于 AttemptRecord 与跳级标记重算，
// 保证不变式 locked == false ⟹ mastered ∨ skipUnlocked
type PathAdaptationService struct {
	KV       store.KV
	Cooldown *CooldownService
	Currics  CurriculumProvider
	Bus      *event.Bus
	Quiz     *config.QuizConfig
	clock    util.Clock

	mu sync.Mutex
}

func NewPathAdaptationService(kv store.KV, cooldown *CooldownService, currics CurriculumProvider, bus *event.Bus, quizCfg *config.QuizConfig, clock util.Clock) *PathAdaptationService {
	return &PathAdaptationService{
		KV:       kv,
		Cooldown: cooldown,
		Currics:  currics,
		Bus:      bus,
		Quiz:     quizCfg,
		clock:    clock,
	}
}

// GetGateStatus 派生单个小节的关卡状态
func (s *PathAdaptationService) GetGateStatus(ctx context.Context, learnerID, pathID, sectionID string) (*model.GateStatus, error) {
	flags, err := s.loadFlags(ctx, learnerID, pathID, sectionID)
	if err != nil {
		return nil, err
	}
	return s.derive(ctx, learnerID, pathID, sectionID, flags)
}

// GetGateStatuses 批量派生整条路径全部小节的关卡状态，按文档顺序返回
func (s *PathAdaptationService) GetGateStatuses(ctx context.Context, learnerID, pathID string) ([]*model.GateStatus, error) {
	path, err := s.Currics.GetPath(ctx, pathID)
	if err != nil {
		return nil, err
	}
	if path == nil {
		return nil, nil
	}

	var gates []*model.GateStatus
	for _, section := range path.Sections() {
		gate, err := s.GetGateStatus(ctx, learnerID, pathID, section.ID)
		if err != nil {
			return nil, err
		}
		gates = append(gates, gate)
	}
	return gates, nil
}

// derive 由配额账本 + 持久化标记重算关卡
func (s *PathAdaptationService) derive(ctx context.Context, learnerID, pathID, sectionID string, flags gateFlags) (*model.GateStatus, error) {
	record, err := s.Cooldown.GetRecord(ctx, learnerID, sectionID)
	if err != nil {
		return nil, err
	}
	check, err := s.Cooldown.CheckAttempt(ctx, learnerID, sectionID)
	if err != nil {
		return nil, err
	}

	gate := &model.GateStatus{
		PathID:            pathID,
		SectionID:         sectionID,
		LearnerID:         learnerID,
		SkipUnlocked:      flags.SkipUnlocked,
		Completed:         flags.Completed,
		Skipped:           flags.Skipped,
		RemainingAttempts: check.RemainingAttempts,
		UpdatedAt:         s.clock.Now(),
	}
	if record != nil {
		gate.BestScore = record.BestScore
		gate.Mastered = record.Mastered
	}

	gate.Locked = !(gate.Mastered || gate.SkipUnlocked)
	if gate.Locked {
		gate.Reason = lockReason(record, check)
		gate.QuizAvailable = check.Allowed
		gate.CooldownEndsAt = check.CooldownEndsAt
	}
	return gate, nil
}

// lockReason 锁定原因优先级：未尝试 → 配额耗尽 → 冷却中 → 未通过
func lockReason(record *model.AttemptRecord, check *model.AttemptCheck) model.GateReason {
	if record == nil || len(record.History) == 0 {
		return model.GateNotAttempted
	}
	switch check.Reason {
	case model.DenialMaxAttemptsReached:
		return model.GateMaxAttempts
	case model.DenialInCooldown, model.DenialTooSoon:
		return model.GateInCooldown
	}
	return model.GateFailed
}

// RecordMasteryResult mastery 结算后的回写：通过则标记完成并广播解锁，
// 未通过则针对低分主题生成内容推荐
func (s *PathAdaptationService) RecordMasteryResult(ctx context.Context, learnerID string, pc *model.PathContext, result *model.QuizResult) error {
	if result.Passed {
		s.mu.Lock()
		flags, err := s.loadFlags(ctx, learnerID, pc.PathID, pc.SectionID)
		if err == nil {
			flags.Completed = true
			err = s.saveFlags(ctx, learnerID, pc.PathID, pc.SectionID, flags)
		}
		s.mu.Unlock()
		if err != nil {
			return err
		}

		monitoring.GatesUnlocked.WithLabelValues("mastered").Inc()
		gate, err := s.GetGateStatus(ctx, learnerID, pc.PathID, pc.SectionID)
		if err != nil {
			return err
		}
		s.Bus.Publish(event.TopicGateChanged, gate)
		logger.Log.Info("section gate unlocked",
			zap.String("learner", learnerID),
			zap.String("path", pc.PathID),
			zap.String("section", pc.SectionID))
		return nil
	}

	return s.generateRecommendations(ctx, learnerID, pc.PathID, result)
}

// generateRecommendations 未通过时为低分主题生成推荐：
// confidence = 1 - score，去重后按置信度降序截断
func (s *PathAdaptationService) generateRecommendations(ctx context.Context, learnerID, pathID string, result *model.QuizResult) error {
	now := s.clock.Now()
	var fresh []model.Recommendation
	for topicID, ts := range result.TopicBreakdown {
		if ts.Score >= s.Quiz.StruggleScoreThreshold {
			continue
		}
		fresh = append(fresh, model.Recommendation{
			TopicID:    topicID,
			Reason:     model.RecommendStruggledWithConcept,
			Confidence: 1 - ts.Score,
			CreatedAt:  now,
		})
	}
	if len(fresh) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.GetRecommendations(ctx, learnerID, pathID)
	if err != nil {
		return err
	}

	// 同主题去重，保留置信度更高的一条
	byTopic := make(map[string]model.Recommendation, len(existing)+len(fresh))
	for _, r := range existing {
		byTopic[r.TopicID] = r
	}
	for _, r := range fresh {
		if prev, ok := byTopic[r.TopicID]; !ok || r.Confidence > prev.Confidence {
			byTopic[r.TopicID] = r
		}
	}

	merged := make([]model.Recommendation, 0, len(byTopic))
	for _, r := range byTopic {
		merged = append(merged, r)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Confidence > merged[j].Confidence
	})
	if len(merged) > s.Quiz.MaxRecommendations {
		merged = merged[:s.Quiz.MaxRecommendations]
	}

	body, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	if err := s.KV.Set(ctx, store.RecommendationKey(learnerID, pathID), string(body)); err != nil {
		return err
	}

	s.Bus.Publish(event.TopicRecommendationsChanged, merged)
	return nil
}

// GetRecommendations 读取推荐列表，没有或损坏都返回空
func (s *PathAdaptationService) GetRecommendations(ctx context.Context, learnerID, pathID string) ([]model.Recommendation, error) {
	raw, ok, err := s.KV.Get(ctx, store.RecommendationKey(learnerID, pathID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var recs []model.Recommendation
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		logger.Log.Warn("corrupt recommendations discarded", zap.String("learner", learnerID), zap.String("path", pathID))
		return nil, nil
	}
	return recs, nil
}

// ClearRecommendations 管理操作：清空推荐列表
func (s *PathAdaptationService) ClearRecommendations(ctx context.Context, learnerID, pathID string) error {
	if err := s.KV.Remove(ctx, store.RecommendationKey(learnerID, pathID)); err != nil {
		return err
	}
	s.Bus.Publish(event.TopicRecommendationsChanged, []model.Recommendation{})
	return nil
}

// RecordPreAssessmentResult 把预评估结果映射到课程小节：
// 小节内有数据的主题平均分达到跳级阈值即显式解锁该小节；
// 推荐起点是文档顺序上第一个仍锁定的小节
func (s *PathAdaptationService) RecordPreAssessmentResult(ctx context.Context, learnerID, pathID string, result *model.QuizResult) (*model.PreAssessmentOutcome, error) {
	path, err := s.Currics.GetPath(ctx, pathID)
	if err != nil {
		return nil, err
	}
	if path == nil {
		return nil, util.ErrPathNotFound
	}

	outcome := &model.PreAssessmentOutcome{
		PathID:        pathID,
		LearnerID:     learnerID,
		SkipThreshold: s.Quiz.SkipThreshold,
		EvaluatedAt:   s.clock.Now(),
	}

	for _, section := range path.Sections() {
		sr := model.SectionSkipResult{
			SectionID: section.ID,
			TopicIDs:  section.TopicIDs,
		}

		var sum float64
		var n int
		for _, topicID := range section.TopicIDs {
			if ts, ok := result.TopicBreakdown[topicID]; ok {
				sum += ts.Score
				n++
			}
		}
		if n > 0 {
			sr.AverageScore = sum / float64(n)
			sr.RecommendSkip = sr.AverageScore >= s.Quiz.SkipThreshold
		}

		if sr.RecommendSkip {
			if err := s.unlockBySkip(ctx, learnerID, pathID, section.ID); err != nil {
				return nil, err
			}
			outcome.SkippedSectionCount++
		} else if outcome.RecommendedStartID == "" {
			outcome.RecommendedStartID = section.ID
		}

		outcome.Sections = append(outcome.Sections, sr)
	}

	body, err := json.Marshal(outcome)
	if err != nil {
		return nil, err
	}
	if err := s.KV.Set(ctx, store.PreAssessmentKey(learnerID, pathID), string(body)); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *PathAdaptationService) unlockBySkip(ctx context.Context, learnerID, pathID, sectionID string) error {
	s.mu.Lock()
	flags, err := s.loadFlags(ctx, learnerID, pathID, sectionID)
	if err == nil && !flags.SkipUnlocked {
		// 跳级的小节同时记为已跳过和已完成
		flags.SkipUnlocked = true
		flags.Skipped = true
		flags.Completed = true
		err = s.saveFlags(ctx, learnerID, pathID, sectionID, flags)
		if err == nil {
			monitoring.GatesUnlocked.WithLabelValues("skip_ahead").Inc()
		}
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	gate, err := s.GetGateStatus(ctx, learnerID, pathID, sectionID)
	if err != nil {
		return err
	}
	s.Bus.Publish(event.TopicGateChanged, gate)
	return nil
}

// GetPreAssessment 读取已存的预评估结果，没有返回 nil
func (s *PathAdaptationService) GetPreAssessment(ctx context.Context, learnerID, pathID string) (*model.PreAssessmentOutcome, error) {
	raw, ok, err := s.KV.Get(ctx, store.PreAssessmentKey(learnerID, pathID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var outcome model.PreAssessmentOutcome
	if err := json.Unmarshal([]byte(raw), &outcome); err != nil {
		return nil, nil
	}
	return &outcome, nil
}

// ClearSkipAhead 管理操作：撤销整条路径上的跳级解锁和预评估记录
func (s *PathAdaptationService) ClearSkipAhead(ctx context.Context, learnerID, pathID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := "gate:" + learnerID + ":" + pathID + ":"
	keys, err := s.KV.KeysWithPrefix(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.KV.Remove(ctx, key); err != nil {
			return err
		}
	}
	return s.KV.Remove(ctx, store.PreAssessmentKey(learnerID, pathID))
}

func (s *PathAdaptationService) loadFlags(ctx context.Context, learnerID, pathID, sectionID string) (gateFlags, error) {
	var flags gateFlags
	raw, ok, err := s.KV.Get(ctx, store.GateKey(learnerID, pathID, sectionID))
	if err != nil {
		return flags, err
	}
	if !ok {
		return flags, nil
	}
	if err := json.Unmarshal([]byte(raw), &flags); err != nil {
		// 损坏的标记按全锁定处理
		return gateFlags{}, nil
	}
	return flags, nil
}

func (s *PathAdaptationService) saveFlags(ctx context.Context, learnerID, pathID, sectionID string, flags gateFlags) error {
	body, err := json.Marshal(flags)
	if err != nil {
		return err
	}
	return s.KV.Set(ctx, store.GateKey(learnerID, pathID, sectionID), string(body))
}
