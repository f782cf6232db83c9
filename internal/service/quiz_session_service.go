package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"elearn_quiz_backend/internal/config"
	"elearn_quiz_backend/internal/event"
	"elearn_quiz_backend/internal/model"
	"elearn_quiz_backend/internal/util"
	"elearn_quiz_backend/pkg/logger"
	"elearn_quiz_backend/pkg/monitoring"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PathProgressSink 会话完成后路径侧的回写口；由路径适配层实现
type PathProgressSink interface {
	RecordMasteryResult(ctx context.Context, learnerID string, pc *model.PathContext, result *model.QuizResult) error
	RecordPreAssessmentResult(ctx context.Context, learnerID, pathID string, result *model.QuizResult) (*model.PreAssessmentOutcome, error)
}

// CreateSessionParams 创建会话的入参；零值字段取 QuizConfig 默认
type CreateSessionParams struct {
	LearnerID  string
	PathID     string
	SectionID  string
	TopicID    string // inline 必填
	Count      int
	ExcludeIDs []string
	// mastery 过采样用：学习者练习过的主题
	PracticedTopics []string
}

// CreateSessionOutcome 创建结果；mastery 被配额拒绝时 Session 为 nil、Check 给出原因
type CreateSessionOutcome struct {
	Session *model.QuizSession  `json:"session,omitempty"`
	Check   *model.AttemptCheck `json:"check,omitempty"`
}

// QuizSessionService 测验会话状态机。会话只存内存，终态会话按保留时长回收。
// 所有状态迁移走固定迁移表，非法迁移是空操作而非错误
type QuizSessionService struct {
	Pools    *PoolService
	Streaks  *StreakService
	Cooldown *CooldownService
	Progress PathProgressSink
	Bus      *event.Bus
	Quiz     *config.QuizConfig
	clock    util.Clock

	mu       sync.Mutex
	sessions map[string]*model.QuizSession
	results  map[string]*model.QuizResult
}

func NewQuizSessionService(pools *PoolService, streaks *StreakService, cooldown *CooldownService, progress PathProgressSink, bus *event.Bus, quizCfg *config.QuizConfig, clock util.Clock) *QuizSessionService {
	return &QuizSessionService{
		Pools:    pools,
		Streaks:  streaks,
		Cooldown: cooldown,
		Progress: progress,
		Bus:      bus,
		Quiz:     quizCfg,
		clock:    clock,
		sessions: make(map[string]*model.QuizSession),
		results:  make(map[string]*model.QuizResult),
	}
}

// newHumanID 面向学习者展示的短ID，如 QZ-7F3A9C
func newHumanID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "QZ-" + strings.ToUpper(raw[:6])
}

// CreatePracticeSession 练习会话：小节层级题源，可回看可跳过，不计配额
func (s *QuizSessionService) CreatePracticeSession(ctx context.Context, p CreateSessionParams) (*CreateSessionOutcome, error) {
	count := p.Count
	if count <= 0 {
		count = s.Quiz.PracticeQuestionCount
	}

	source := s.Pools.GetHierarchicalSource(ctx, p.PathID, p.SectionID)
	s.Pools.LoadPools(ctx, source)
	selection := s.Pools.SelectPractice(source.CombinedPool, count, p.ExcludeIDs)

	session := s.newSession(p.LearnerID, model.QuizPractice, selection, model.SessionConfig{
		PassingScore:        s.Quiz.PassingScore,
		QuestionCount:       count,
		RandomizeOrder:      true,
		AllowBackNavigation: true,
		AllowSkip:           true,
	})
	session.PathContext = &model.PathContext{PathID: p.PathID, SectionID: p.SectionID}

	s.register(session)
	return &CreateSessionOutcome{Session: session}, nil
}

// CreateMasterySession mastery 会话：先过配额账本，被拒时只返回结构化原因。
// 配额按 (学习者, 小节) 记账，创建本身不扣配额，完成时才 RecordAttempt
func (s *QuizSessionService) CreateMasterySession(ctx context.Context, p CreateSessionParams) (*CreateSessionOutcome, error) {
	check, err := s.Cooldown.CheckAttempt(ctx, p.LearnerID, p.SectionID)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		return &CreateSessionOutcome{Check: check}, nil
	}

	count := p.Count
	if count <= 0 {
		count = s.Quiz.MasteryQuestionCount
	}

	source := s.Pools.GetHierarchicalSource(ctx, p.PathID, p.SectionID)
	s.Pools.LoadPools(ctx, source)
	selection := s.Pools.SelectMastery(source.CombinedPool, count, p.ExcludeIDs, p.PracticedTopics)

	session := s.newSession(p.LearnerID, model.QuizMastery, selection, model.SessionConfig{
		PassingScore:  s.Quiz.PassingScore,
		QuestionCount: count,
	})
	session.TopicID = p.SectionID
	session.PathContext = &model.PathContext{PathID: p.PathID, SectionID: p.SectionID}
	session.AttemptInfo = &model.SessionAttemptInfo{
		AttemptNumber:     s.Quiz.MaxAttemptsPerDay - check.RemainingAttempts + 1,
		RemainingAttempts: check.RemainingAttempts,
		ResetsAt:          &check.ResetsAt,
	}

	s.register(session)
	return &CreateSessionOutcome{Session: session, Check: check}, nil
}

// CreateInlineSession inline 会话：单主题，同步启动连对追踪并镜像其状态
func (s *QuizSessionService) CreateInlineSession(ctx context.Context, p CreateSessionParams) (*CreateSessionOutcome, error) {
	count := p.Count
	if count <= 0 {
		count = s.Quiz.InlineQuestionCount
	}

	pool := s.Pools.GetPool(ctx, p.TopicID)
	selection := s.Pools.SelectInline(pool, count, p.TopicID)

	streak, err := s.Streaks.Start(ctx, p.LearnerID, p.TopicID, nil)
	if err != nil {
		return nil, err
	}

	session := s.newSession(p.LearnerID, model.QuizInline, selection, model.SessionConfig{
		PassingScore:  s.Quiz.PassingScore,
		QuestionCount: count,
	})
	session.TopicID = p.TopicID
	session.StreakInfo = mirrorStreak(streak)

	s.register(session)
	return &CreateSessionOutcome{Session: session}, nil
}

// CreatePreAssessmentSession 预评估会话：覆盖整条路径的主题，用于跳级判定
func (s *QuizSessionService) CreatePreAssessmentSession(ctx context.Context, p CreateSessionParams) (*CreateSessionOutcome, error) {
	count := p.Count
	if count <= 0 {
		count = s.Quiz.MasteryQuestionCount
	}

	// 不给目标小节即遍历全路径
	source := s.Pools.GetHierarchicalSource(ctx, p.PathID, "")
	s.Pools.LoadPools(ctx, source)
	selection := s.Pools.Select(source.CombinedPool, SelectOptions{
		Count:         count,
		Randomize:     true,
		EnsureVariety: true,
	})

	session := s.newSession(p.LearnerID, model.QuizPreAssessment, selection, model.SessionConfig{
		PassingScore:  s.Quiz.SkipThreshold,
		QuestionCount: count,
	})
	session.PathContext = &model.PathContext{PathID: p.PathID}

	s.register(session)
	return &CreateSessionOutcome{Session: session}, nil
}

// newSession 组装会话，题目顺序在创建时定死，之后不再洗牌
func (s *QuizSessionService) newSession(learnerID string, quizType model.QuizType, selection *SelectionResult, cfg model.SessionConfig) *model.QuizSession {
	questions := make([]model.SessionQuestion, len(selection.Questions))
	for i, item := range selection.Questions {
		questions[i] = model.SessionQuestion{Item: item, Index: i}
	}

	return &model.QuizSession{
		ID:        uuid.New().String(),
		HumanID:   newHumanID(),
		LearnerID: learnerID,
		Type:      quizType,
		State:     model.StateNotStarted,
		Questions: questions,
		Timing: model.SessionTiming{
			CreatedAt:        s.clock.Now(),
			TimeLimitSeconds: cfg.TimeLimitSeconds,
		},
		Config: cfg,
	}
}

func (s *QuizSessionService) register(session *model.QuizSession) {
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	monitoring.SessionsStarted.WithLabelValues(string(session.Type)).Inc()
}

// GetSession 按ID读取会话，不存在返回 nil
func (s *QuizSessionService) GetSession(sessionID string) *model.QuizSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionID]
}

// GetResult 读取已完成会话的结果快照，未完成返回 nil
func (s *QuizSessionService) GetResult(sessionID string) *model.QuizResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[sessionID]
}

// ListSessions 列出学习者的全部在存会话
func (s *QuizSessionService) ListSessions(learnerID string) []*model.QuizSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.QuizSession
	for _, sess := range s.sessions {
		if sess.LearnerID == learnerID {
			out = append(out, sess)
		}
	}
	return out
}

// Start not_started → in_progress；其余状态下是空操作，返回 nil
func (s *QuizSessionService) Start(sessionID string) *model.QuizSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[sessionID]
	if sess == nil || sess.State != model.StateNotStarted {
		return nil
	}
	now := s.clock.Now()
	sess.State = model.StateInProgress
	sess.Timing.StartedAt = &now
	return sess
}

// Pause in_progress → paused
func (s *QuizSessionService) Pause(sessionID string) *model.QuizSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[sessionID]
	if sess == nil || sess.State != model.StateInProgress {
		return nil
	}
	sess.State = model.StatePaused
	return sess
}

// Resume paused → in_progress
func (s *QuizSessionService) Resume(sessionID string) *model.QuizSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[sessionID]
	if sess == nil || sess.State != model.StatePaused {
		return nil
	}
	sess.State = model.StateInProgress
	return sess
}

// Abandon in_progress / paused → abandoned；放弃不产出结果
func (s *QuizSessionService) Abandon(sessionID string) *model.QuizSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[sessionID]
	if sess == nil || (sess.State != model.StateInProgress && sess.State != model.StatePaused) {
		return nil
	}
	now := s.clock.Now()
	sess.State = model.StateAbandoned
	sess.Timing.EndedAt = &now
	monitoring.SessionsCompleted.WithLabelValues(string(sess.Type), string(model.StateAbandoned)).Inc()
	return sess
}

// SubmitAnswerParams 一次作答；判分由调用方完成，引擎只记账。
// Score 为 nil 时按对错取 1/0；TimeSpentMs 缺省时由引擎按时钟推算
type SubmitAnswerParams struct {
	SessionID   string
	QuestionID  string
	Response    json.RawMessage
	Correct     bool
	Score       *float64
	TimeSpentMs int64
}

// SubmitAnswer 记录作答。仅 in_progress 接受作答，题目不在会话内同样
// 返回 nil 空操作；重复提交覆盖旧记录。
// inline 会话把作答转发给连对追踪。自动完成的判定顺序固定：
// 先看连对完成，再看全部答完
func (s *QuizSessionService) SubmitAnswer(ctx context.Context, p SubmitAnswerParams) (*model.QuizSession, error) {
	s.mu.Lock()
	sess := s.sessions[p.SessionID]
	if sess == nil || sess.State != model.StateInProgress {
		s.mu.Unlock()
		return nil, nil
	}

	q := sess.QuestionByID(p.QuestionID)
	if q == nil {
		s.mu.Unlock()
		return nil, nil
	}

	now := s.clock.Now()

	// 未给分数时按对错取二值
	score := 0.0
	if p.Score != nil {
		score = *p.Score
	} else if p.Correct {
		score = 1
	}

	// 未给用时则按时钟推算：距上一条作答，首条距会话开始
	timeSpent := p.TimeSpentMs
	if timeSpent <= 0 {
		since := sess.Timing.StartedAt
		for i := range sess.Responses {
			if since == nil || sess.Responses[i].SubmittedAt.After(*since) {
				since = &sess.Responses[i].SubmittedAt
			}
		}
		if since != nil {
			timeSpent = now.Sub(*since).Milliseconds()
		}
	}

	q.Answered = true
	q.Correct = p.Correct
	q.Score = score
	q.TimeSpentMs = timeSpent
	q.Attempts++

	response := model.QuizResponse{
		QuestionID:  p.QuestionID,
		Response:    p.Response,
		Correct:     p.Correct,
		Score:       score,
		TimeSpentMs: timeSpent,
		SubmittedAt: now,
	}
	replaced := false
	for i := range sess.Responses {
		if sess.Responses[i].QuestionID == p.QuestionID {
			sess.Responses[i] = response
			replaced = true
			break
		}
	}
	if !replaced {
		sess.Responses = append(sess.Responses, response)
	}

	// 当前题答完就推进到下一道未答题
	if q.Index == sess.CurrentIndex {
		for i := sess.CurrentIndex + 1; i < len(sess.Questions); i++ {
			if !sess.Questions[i].Answered {
				sess.CurrentIndex = i
				break
			}
		}
	}
	s.mu.Unlock()

	var streak *model.StreakState
	if sess.Type == model.QuizInline {
		var err error
		streak, err = s.Streaks.RecordAnswer(ctx, sess.LearnerID, sess.TopicID, p.Correct)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if streak != nil {
			sess.StreakInfo = mirrorStreak(streak)
		}
		s.mu.Unlock()
	}

	timeExceeded := false
	if sess.Timing.TimeLimitSeconds > 0 && sess.Timing.StartedAt != nil {
		timeExceeded = now.Sub(*sess.Timing.StartedAt) > time.Duration(sess.Timing.TimeLimitSeconds)*time.Second
	}

	switch {
	case sess.Type == model.QuizInline && streak != nil && streak.IsComplete():
		if _, err := s.Complete(ctx, p.SessionID); err != nil {
			return nil, err
		}
	case sess.AllAnswered() || timeExceeded:
		if timeExceeded {
			s.mu.Lock()
			sess.Timing.TimeExceeded = true
			s.mu.Unlock()
		}
		if _, err := s.Complete(ctx, p.SessionID); err != nil {
			return nil, err
		}
	}

	return sess, nil
}

// Next 前进到下一题
func (s *QuizSessionService) Next(sessionID string) *model.QuizSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[sessionID]
	if sess == nil || sess.State != model.StateInProgress {
		return nil
	}
	if !sess.Config.AllowSkip && !sess.Questions[sess.CurrentIndex].Answered {
		return nil
	}
	// 已在最后一题，边界上的移动是空操作
	if sess.CurrentIndex >= len(sess.Questions)-1 {
		return nil
	}
	sess.CurrentIndex++
	return sess
}

// Previous 回看上一题；会话不允许回看时是空操作
func (s *QuizSessionService) Previous(sessionID string) *model.QuizSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[sessionID]
	if sess == nil || sess.State != model.StateInProgress || !sess.Config.AllowBackNavigation {
		return nil
	}
	if sess.CurrentIndex == 0 {
		return nil
	}
	sess.CurrentIndex--
	return sess
}

// UseHint 标记用过提示并返回该题的提示文本
func (s *QuizSessionService) UseHint(sessionID, questionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[sessionID]
	if sess == nil || sess.State != model.StateInProgress {
		return nil
	}
	q := sess.QuestionByID(questionID)
	if q == nil {
		return nil
	}
	q.HintUsed = true
	if q.Item.Hints == nil {
		// 无提示也要与"题目不存在"区分开
		return []string{}
	}
	return q.Item.Hints
}

// Complete in_progress → completed，completed 是过渡态，随即按
// score >= passingScore 落到 passed / failed。
// 完成时一次性计算结果快照，mastery 在此处扣配额并回写路径适配层
func (s *QuizSessionService) Complete(ctx context.Context, sessionID string) (*model.QuizResult, error) {
	s.mu.Lock()
	sess := s.sessions[sessionID]
	if sess == nil || sess.State != model.StateInProgress {
		s.mu.Unlock()
		return nil, nil
	}
	result := s.finishLocked(sess)
	s.mu.Unlock()

	return result, s.afterComplete(ctx, sess, result)
}

// ForceReasonTimeout 超时触发的强制结算原因
const ForceReasonTimeout = "timeout"

// ForceComplete 管理操作：把任意非终态会话按当前答题记录强制结算。
// reason 为超时时先标记 timing.timeExceeded 再结算
func (s *QuizSessionService) ForceComplete(ctx context.Context, sessionID, reason string) (*model.QuizResult, error) {
	s.mu.Lock()
	sess := s.sessions[sessionID]
	if sess == nil || sess.State.IsTerminal() {
		s.mu.Unlock()
		return nil, nil
	}
	if reason == ForceReasonTimeout {
		sess.Timing.TimeExceeded = true
	}
	result := s.finishLocked(sess)
	s.mu.Unlock()

	return result, s.afterComplete(ctx, sess, result)
}

// finishLocked 结算会话；调用方必须已持锁
func (s *QuizSessionService) finishLocked(sess *model.QuizSession) *model.QuizResult {
	now := s.clock.Now()
	sess.Timing.EndedAt = &now
	if sess.Timing.StartedAt != nil {
		sess.Timing.TotalTimeMs = now.Sub(*sess.Timing.StartedAt).Milliseconds()
	}

	result := ComputeResult(sess, now)

	// completed 只是过渡，所有类型都立即按通过线落到终态
	sess.State = model.StateCompleted
	if result.Passed {
		sess.State = model.StatePassed
	} else {
		sess.State = model.StateFailed
	}

	s.results[sess.ID] = result
	monitoring.SessionsCompleted.WithLabelValues(string(sess.Type), string(sess.State)).Inc()
	return result
}

// afterComplete 完成后的外围动作：事件广播、配额记账、路径回写
func (s *QuizSessionService) afterComplete(ctx context.Context, sess *model.QuizSession, result *model.QuizResult) error {
	s.Bus.Publish(event.TopicQuizCompleted, result)

	switch sess.Type {
	case model.QuizMastery:
		if _, err := s.Cooldown.RecordAttempt(ctx, sess.LearnerID, sess.TopicID, result.Score, result.Passed); err != nil {
			return err
		}
		if s.Progress != nil && sess.PathContext != nil {
			if err := s.Progress.RecordMasteryResult(ctx, sess.LearnerID, sess.PathContext, result); err != nil {
				return err
			}
		}
	case model.QuizPreAssessment:
		if s.Progress != nil && sess.PathContext != nil {
			if _, err := s.Progress.RecordPreAssessmentResult(ctx, sess.LearnerID, sess.PathContext.PathID, result); err != nil {
				return err
			}
		}
	}

	logger.Log.Info("quiz session finished",
		zap.String("session", sess.ID),
		zap.String("type", string(sess.Type)),
		zap.String("state", string(sess.State)),
		zap.Float64("score", result.Score))
	return nil
}

// ComputeResult 由答题记录一次性推导结果快照的纯函数；
// 相同的会话内容必然得到相同结果
func ComputeResult(sess *model.QuizSession, completedAt time.Time) *model.QuizResult {
	result := &model.QuizResult{
		SessionID:      sess.ID,
		HumanID:        sess.HumanID,
		LearnerID:      sess.LearnerID,
		Type:           sess.Type,
		TotalQuestions: len(sess.Questions),
		TotalResponses: len(sess.Responses),
		TopicBreakdown: make(map[string]model.TopicScore),
		CompletedAt:    completedAt,
	}

	timing := model.ResultTiming{}
	topicTotals := make(map[string]float64)
	for i := range sess.Responses {
		r := &sess.Responses[i]
		if r.Correct {
			result.CorrectCount++
		}

		timing.TotalTimeMs += r.TimeSpentMs
		timing.ResponseCount++
		if timing.FastestMs == 0 || r.TimeSpentMs < timing.FastestMs {
			timing.FastestMs = r.TimeSpentMs
		}
		if r.TimeSpentMs > timing.SlowestMs {
			timing.SlowestMs = r.TimeSpentMs
		}

		q := sess.QuestionByID(r.QuestionID)
		if q == nil {
			continue
		}
		topicID := q.Item.TopicID()
		ts := result.TopicBreakdown[topicID]
		ts.TopicID = topicID
		ts.Total++
		if r.Correct {
			ts.Correct++
		}
		topicTotals[topicID] += r.Score
		result.TopicBreakdown[topicID] = ts
	}
	if timing.ResponseCount > 0 {
		timing.AverageMs = timing.TotalTimeMs / int64(timing.ResponseCount)
		result.Score = float64(result.CorrectCount) / float64(timing.ResponseCount)
	}
	result.Timing = timing

	for topicID, ts := range result.TopicBreakdown {
		ts.Score = float64(ts.Correct) / float64(ts.Total)
		ts.AverageScore = topicTotals[topicID] / float64(ts.Total)
		result.TopicBreakdown[topicID] = ts
	}

	result.Passed = result.Score >= sess.Config.PassingScore

	if sess.Type == model.QuizInline && sess.StreakInfo != nil {
		result.Streak = &model.StreakOutcome{
			FinalStreak:  sess.StreakInfo.CurrentStreak,
			BestStreak:   sess.StreakInfo.BestStreak,
			TargetStreak: sess.StreakInfo.TargetStreak,
			Achieved:     sess.StreakInfo.Achieved,
		}
	}

	return result
}

func mirrorStreak(streak *model.StreakState) *model.SessionStreakInfo {
	if streak == nil {
		return nil
	}
	return &model.SessionStreakInfo{
		CurrentStreak: streak.CurrentStreak,
		TargetStreak:  streak.TargetStreak,
		BestStreak:    streak.BestStreak,
		Achieved:      streak.Achieved,
	}
}

// SweepExpired 回收终态超过保留时长的会话及其结果
func (s *QuizSessionService) SweepExpired() int {
	retention := time.Duration(s.Quiz.SessionRetentionHours) * time.Hour
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if !sess.State.IsTerminal() {
			continue
		}
		if sess.Timing.EndedAt == nil || now.Sub(*sess.Timing.EndedAt) < retention {
			continue
		}
		delete(s.sessions, id)
		delete(s.results, id)
		removed++
	}
	return removed
}

// StartRetentionLoop 启动后台回收循环，ctx 取消时退出
func (s *QuizSessionService) StartRetentionLoop(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.SweepExpired(); n > 0 {
					logger.Log.Info("expired quiz sessions swept", zap.Int("count", n))
				}
			}
		}
	}()
}
