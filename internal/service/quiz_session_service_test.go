package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"elearn_quiz_backend/internal/event"
	"elearn_quiz_backend/internal/model"
	"elearn_quiz_backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProgress struct {
	mastery []*model.QuizResult
	pre     []*model.QuizResult
}

func (s *stubProgress) RecordMasteryResult(_ context.Context, _ string, _ *model.PathContext, result *model.QuizResult) error {
	s.mastery = append(s.mastery, result)
	return nil
}

func (s *stubProgress) RecordPreAssessmentResult(_ context.Context, learnerID, pathID string, result *model.QuizResult) (*model.PreAssessmentOutcome, error) {
	s.pre = append(s.pre, result)
	return &model.PreAssessmentOutcome{PathID: pathID, LearnerID: learnerID}, nil
}

type sessionFixture struct {
	sessions *QuizSessionService
	cooldown *CooldownService
	streaks  *StreakService
	progress *stubProgress
	content  *stubContent
	clock    *fakeClock
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	clock := newFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	cfg := testQuizConfig()
	kv := store.NewMemoryKV()
	bus := event.NewBus(nil)
	content := newStubContent()
	content.put("pools/topic-a.json", testPoolJSON("topic-a", 4, model.BloomRemember))
	content.put("pools/topic-b.json", testPoolJSON("topic-b", 4, model.BloomApply))

	pools := NewPoolService(content, &stubCurriculum{path: testPath()}, cfg, clock, nil)
	streaks := NewStreakService(kv, bus, cfg, clock)
	cooldown := NewCooldownService(kv, cfg, clock)
	progress := &stubProgress{}
	sessions := NewQuizSessionService(pools, streaks, cooldown, progress, bus, cfg, clock)

	return &sessionFixture{
		sessions: sessions,
		cooldown: cooldown,
		streaks:  streaks,
		progress: progress,
		content:  content,
		clock:    clock,
	}
}

func (f *sessionFixture) practiceSession(t *testing.T, count int) *model.QuizSession {
	t.Helper()
	outcome, err := f.sessions.CreatePracticeSession(context.Background(), CreateSessionParams{
		LearnerID: "l1",
		PathID:    "path-1",
		SectionID: "sec-1",
		Count:     count,
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Session)
	return outcome.Session
}

func answerAll(t *testing.T, f *sessionFixture, sess *model.QuizSession, correct bool) {
	t.Helper()
	for i := range sess.Questions {
		score := 0.0
		if correct {
			score = 1.0
		}
		_, err := f.sessions.SubmitAnswer(context.Background(), SubmitAnswerParams{
			SessionID:   sess.ID,
			QuestionID:  sess.Questions[i].Item.ID,
			Response:    json.RawMessage(`"a"`),
			Correct:     correct,
			Score:       floatPtr(score),
			TimeSpentMs: 1000,
		})
		require.NoError(t, err)
	}
}

func TestSessionTransitionTable(t *testing.T) {
	f := newSessionFixture(t)

	tests := []struct {
		name string
		prep func(id string)
		op   func(id string) *model.QuizSession
		ok   bool
	}{
		{"start from not_started", func(string) {}, f.sessions.Start, true},
		{"pause from not_started", func(string) {}, f.sessions.Pause, false},
		{"resume from not_started", func(string) {}, f.sessions.Resume, false},
		{"abandon from not_started", func(string) {}, f.sessions.Abandon, false},
		{"start twice", func(id string) { f.sessions.Start(id) }, f.sessions.Start, false},
		{"pause from in_progress", func(id string) { f.sessions.Start(id) }, f.sessions.Pause, true},
		{"resume from paused", func(id string) { f.sessions.Start(id); f.sessions.Pause(id) }, f.sessions.Resume, true},
		{"abandon from paused", func(id string) { f.sessions.Start(id); f.sessions.Pause(id) }, f.sessions.Abandon, true},
		{"resume from abandoned", func(id string) { f.sessions.Start(id); f.sessions.Abandon(id) }, f.sessions.Resume, false},
		{"abandon twice", func(id string) { f.sessions.Start(id); f.sessions.Abandon(id) }, f.sessions.Abandon, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sess := f.practiceSession(t, 3)
			tc.prep(sess.ID)
			got := tc.op(sess.ID)
			if tc.ok {
				assert.NotNil(t, got)
			} else {
				assert.Nil(t, got, "illegal transition must be a no-op")
			}
		})
	}
}

func TestSessionOpsOnUnknownIDAreNil(t *testing.T) {
	f := newSessionFixture(t)

	assert.Nil(t, f.sessions.Start("nope"))
	assert.Nil(t, f.sessions.GetSession("nope"))
	result, err := f.sessions.Complete(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestSubmitAnswerReplacesResponse(t *testing.T) {
	f := newSessionFixture(t)
	sess := f.practiceSession(t, 3)
	f.sessions.Start(sess.ID)
	ctx := context.Background()

	qid := sess.Questions[0].Item.ID
	_, err := f.sessions.SubmitAnswer(ctx, SubmitAnswerParams{SessionID: sess.ID, QuestionID: qid, Correct: false, Score: floatPtr(0)})
	require.NoError(t, err)
	_, err = f.sessions.SubmitAnswer(ctx, SubmitAnswerParams{SessionID: sess.ID, QuestionID: qid, Correct: true, Score: floatPtr(1)})
	require.NoError(t, err)

	got := f.sessions.GetSession(sess.ID)
	require.Len(t, got.Responses, 1, "resubmission replaces, never appends")
	assert.True(t, got.Responses[0].Correct)
	assert.Equal(t, 2, got.QuestionByID(qid).Attempts)
}

func TestSubmitAnswerRejectedOutsideInProgress(t *testing.T) {
	f := newSessionFixture(t)
	sess := f.practiceSession(t, 3)
	ctx := context.Background()

	got, err := f.sessions.SubmitAnswer(ctx, SubmitAnswerParams{SessionID: sess.ID, QuestionID: sess.Questions[0].Item.ID})
	require.NoError(t, err)
	assert.Nil(t, got, "not_started sessions do not accept answers")
}

func TestSubmitAnswerUnknownQuestionIsNoop(t *testing.T) {
	f := newSessionFixture(t)
	sess := f.practiceSession(t, 3)
	f.sessions.Start(sess.ID)

	got, err := f.sessions.SubmitAnswer(context.Background(), SubmitAnswerParams{SessionID: sess.ID, QuestionID: "ghost"})
	require.NoError(t, err, "an unknown question id is not an error condition")
	assert.Nil(t, got)
	assert.Empty(t, f.sessions.GetSession(sess.ID).Responses)
}

func TestPracticeResolvesToPassed(t *testing.T) {
	f := newSessionFixture(t)
	sess := f.practiceSession(t, 3)
	f.sessions.Start(sess.ID)

	answerAll(t, f, sess, true)

	got := f.sessions.GetSession(sess.ID)
	assert.Equal(t, model.StatePassed, got.State, "completed is transient, every type resolves")
	result := f.sessions.GetResult(sess.ID)
	require.NotNil(t, result)
	assert.Equal(t, 1.0, result.Score)
}

func TestPracticeResolvesToFailed(t *testing.T) {
	f := newSessionFixture(t)
	sess := f.practiceSession(t, 3)
	f.sessions.Start(sess.ID)

	answerAll(t, f, sess, false)

	assert.Equal(t, model.StateFailed, f.sessions.GetSession(sess.ID).State)
}

func TestResolvedSessionIsFinal(t *testing.T) {
	f := newSessionFixture(t)
	sess := f.practiceSession(t, 3)
	f.sessions.Start(sess.ID)
	answerAll(t, f, sess, true)

	first := f.sessions.GetResult(sess.ID)
	require.NotNil(t, first)

	// 终态会话不可再结算也不可放弃，结果快照不会被覆盖
	again, err := f.sessions.ForceComplete(context.Background(), sess.ID, "")
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Nil(t, f.sessions.Abandon(sess.ID))
	assert.Same(t, first, f.sessions.GetResult(sess.ID))
}

func TestInlineStreakCompletionBeatsAllAnswered(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	outcome, err := f.sessions.CreateInlineSession(ctx, CreateSessionParams{
		LearnerID: "l1",
		TopicID:   "topic-a",
		Count:     4,
	})
	require.NoError(t, err)
	sess := outcome.Session
	require.NotNil(t, sess.StreakInfo)
	assert.Equal(t, 3, sess.StreakInfo.TargetStreak)
	f.sessions.Start(sess.ID)

	// Three correct answers reach the target with one question still unanswered.
	for i := 0; i < 3; i++ {
		_, err := f.sessions.SubmitAnswer(ctx, SubmitAnswerParams{
			SessionID:  sess.ID,
			QuestionID: sess.Questions[i].Item.ID,
			Correct:    true,
			Score:      floatPtr(1),
		})
		require.NoError(t, err)
	}

	got := f.sessions.GetSession(sess.ID)
	assert.Equal(t, model.StatePassed, got.State)
	result := f.sessions.GetResult(sess.ID)
	require.NotNil(t, result)
	require.NotNil(t, result.Streak)
	assert.True(t, result.Streak.Achieved)
	assert.Equal(t, 3, result.TotalResponses, "completion fires before the last question")
}

func TestMasterySessionPassUpdatesLedgerAndPath(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	outcome, err := f.sessions.CreateMasterySession(ctx, CreateSessionParams{
		LearnerID: "l1",
		PathID:    "path-1",
		SectionID: "sec-1",
		Count:     4,
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Session)
	require.NotNil(t, outcome.Session.AttemptInfo)
	assert.Equal(t, 1, outcome.Session.AttemptInfo.AttemptNumber)

	f.sessions.Start(outcome.Session.ID)
	answerAll(t, f, outcome.Session, true)

	got := f.sessions.GetSession(outcome.Session.ID)
	assert.Equal(t, model.StatePassed, got.State)

	record, err := f.cooldown.GetRecord(ctx, "l1", "sec-1")
	require.NoError(t, err)
	require.NotNil(t, record, "completion must hit the attempt ledger")
	assert.True(t, record.Mastered)
	assert.Equal(t, 1, record.AttemptsToday)

	require.Len(t, f.progress.mastery, 1)
	assert.True(t, f.progress.mastery[0].Passed)
}

func TestMasterySessionDeniedByLedger(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	// Mastering the section makes further sessions pointless.
	f.cooldown.RecordAttempt(ctx, "l1", "sec-1", 0.95, true)

	outcome, err := f.sessions.CreateMasterySession(ctx, CreateSessionParams{
		LearnerID: "l1",
		PathID:    "path-1",
		SectionID: "sec-1",
	})
	require.NoError(t, err)
	assert.Nil(t, outcome.Session)
	require.NotNil(t, outcome.Check)
	assert.Equal(t, model.DenialAlreadyMastered, outcome.Check.Reason)
}

func TestMasteryFailGoesToFailedState(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	outcome, err := f.sessions.CreateMasterySession(ctx, CreateSessionParams{
		LearnerID: "l1",
		PathID:    "path-1",
		SectionID: "sec-1",
		Count:     4,
	})
	require.NoError(t, err)
	f.sessions.Start(outcome.Session.ID)
	answerAll(t, f, outcome.Session, false)

	got := f.sessions.GetSession(outcome.Session.ID)
	assert.Equal(t, model.StateFailed, got.State)
	require.Len(t, f.progress.mastery, 1)
	assert.False(t, f.progress.mastery[0].Passed)
}

func TestPreAssessmentReportsToPathLayer(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	outcome, err := f.sessions.CreatePreAssessmentSession(ctx, CreateSessionParams{
		LearnerID: "l1",
		PathID:    "path-1",
		Count:     4,
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Session)
	f.sessions.Start(outcome.Session.ID)
	answerAll(t, f, outcome.Session, true)

	require.Len(t, f.progress.pre, 1)
}

func TestComputeResultIsDeterministic(t *testing.T) {
	f := newSessionFixture(t)
	sess := f.practiceSession(t, 4)
	f.sessions.Start(sess.ID)
	ctx := context.Background()

	for i, correct := range []bool{true, true, false} {
		score := 0.0
		if correct {
			score = 1.0
		}
		_, err := f.sessions.SubmitAnswer(ctx, SubmitAnswerParams{
			SessionID:   sess.ID,
			QuestionID:  sess.Questions[i].Item.ID,
			Correct:     correct,
			Score:       floatPtr(score),
			TimeSpentMs: int64(1000 * (i + 1)),
		})
		require.NoError(t, err)
	}

	at := f.clock.Now()
	first := ComputeResult(sess, at)
	second := ComputeResult(sess, at)
	assert.Equal(t, first, second)

	assert.InDelta(t, 2.0/3.0, first.Score, 1e-9)
	assert.Equal(t, 2, first.CorrectCount)
	assert.Equal(t, 3, first.TotalResponses)
	assert.Equal(t, 4, first.TotalQuestions)
	assert.Equal(t, int64(1000), first.Timing.FastestMs)
	assert.Equal(t, int64(3000), first.Timing.SlowestMs)
	assert.Equal(t, int64(2000), first.Timing.AverageMs)
}

func TestForceCompleteFromPaused(t *testing.T) {
	f := newSessionFixture(t)
	sess := f.practiceSession(t, 3)
	f.sessions.Start(sess.ID)
	f.sessions.Pause(sess.ID)

	result, err := f.sessions.ForceComplete(context.Background(), sess.ID, "stale")
	require.NoError(t, err)
	require.NotNil(t, result)
	// 无作答时得分为 0，结算后落到 failed
	assert.Equal(t, model.StateFailed, f.sessions.GetSession(sess.ID).State)

	// Terminal sessions cannot be force-completed again.
	again, err := f.sessions.ForceComplete(context.Background(), sess.ID, "stale")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestForceCompleteTimeoutMarksTiming(t *testing.T) {
	f := newSessionFixture(t)
	sess := f.practiceSession(t, 3)
	f.sessions.Start(sess.ID)

	result, err := f.sessions.ForceComplete(context.Background(), sess.ID, ForceReasonTimeout)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, f.sessions.GetSession(sess.ID).Timing.TimeExceeded)
}

func TestSubmitAnswerDefaultsScoreAndElapsed(t *testing.T) {
	f := newSessionFixture(t)
	sess := f.practiceSession(t, 3)
	f.sessions.Start(sess.ID)
	ctx := context.Background()

	// 首条作答：未给分数按对错取 1，未给用时按距会话开始推算
	f.clock.Advance(2 * time.Second)
	_, err := f.sessions.SubmitAnswer(ctx, SubmitAnswerParams{
		SessionID:  sess.ID,
		QuestionID: sess.Questions[0].Item.ID,
		Correct:    true,
	})
	require.NoError(t, err)

	got := f.sessions.GetSession(sess.ID)
	require.Len(t, got.Responses, 1)
	assert.Equal(t, 1.0, got.Responses[0].Score)
	assert.Equal(t, int64(2000), got.Responses[0].TimeSpentMs)

	// 第二条按距上一条作答推算；答错默认得 0 分
	f.clock.Advance(3 * time.Second)
	_, err = f.sessions.SubmitAnswer(ctx, SubmitAnswerParams{
		SessionID:  sess.ID,
		QuestionID: sess.Questions[1].Item.ID,
		Correct:    false,
	})
	require.NoError(t, err)

	got = f.sessions.GetSession(sess.ID)
	require.Len(t, got.Responses, 2)
	assert.Equal(t, 0.0, got.Responses[1].Score)
	assert.Equal(t, int64(3000), got.Responses[1].TimeSpentMs)

	// 显式给出的分数和用时原样记录
	_, err = f.sessions.SubmitAnswer(ctx, SubmitAnswerParams{
		SessionID:   sess.ID,
		QuestionID:  sess.Questions[2].Item.ID,
		Correct:     true,
		Score:       floatPtr(0.5),
		TimeSpentMs: 700,
	})
	require.NoError(t, err)
	got = f.sessions.GetSession(sess.ID)
	require.Len(t, got.Responses, 3)
	assert.Equal(t, 0.5, got.Responses[2].Score)
	assert.Equal(t, int64(700), got.Responses[2].TimeSpentMs)
}

func TestNavigationNilAtBoundary(t *testing.T) {
	f := newSessionFixture(t)
	sess := f.practiceSession(t, 3)
	f.sessions.Start(sess.ID)

	assert.Nil(t, f.sessions.Previous(sess.ID), "already at the first question")

	require.NotNil(t, f.sessions.Next(sess.ID))
	require.NotNil(t, f.sessions.Next(sess.ID))
	assert.Equal(t, 2, f.sessions.GetSession(sess.ID).CurrentIndex)
	assert.Nil(t, f.sessions.Next(sess.ID), "already at the last question")
}

func TestNavigationRespectsConfig(t *testing.T) {
	f := newSessionFixture(t)
	sess := f.practiceSession(t, 3)
	f.sessions.Start(sess.ID)

	// Practice allows skip and back navigation.
	got := f.sessions.Next(sess.ID)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.CurrentIndex)
	got = f.sessions.Previous(sess.ID)
	require.NotNil(t, got)
	assert.Equal(t, 0, got.CurrentIndex)

	// Mastery allows neither.
	outcome, err := f.sessions.CreateMasterySession(context.Background(), CreateSessionParams{
		LearnerID: "l2",
		PathID:    "path-1",
		SectionID: "sec-1",
		Count:     3,
	})
	require.NoError(t, err)
	f.sessions.Start(outcome.Session.ID)
	assert.Nil(t, f.sessions.Next(outcome.Session.ID), "skip disabled")
	assert.Nil(t, f.sessions.Previous(outcome.Session.ID), "back navigation disabled")
}

func TestUseHintMarksQuestion(t *testing.T) {
	f := newSessionFixture(t)
	sess := f.practiceSession(t, 3)
	f.sessions.Start(sess.ID)

	qid := sess.Questions[0].Item.ID
	hints := f.sessions.UseHint(sess.ID, qid)
	require.NotNil(t, hints)
	assert.True(t, f.sessions.GetSession(sess.ID).QuestionByID(qid).HintUsed)
}

func TestSweepExpiredRemovesOldTerminalSessions(t *testing.T) {
	f := newSessionFixture(t)
	sess := f.practiceSession(t, 3)
	f.sessions.Start(sess.ID)
	f.sessions.Abandon(sess.ID)

	live := f.practiceSession(t, 3)

	f.clock.Advance(25 * time.Hour)
	removed := f.sessions.SweepExpired()
	assert.Equal(t, 1, removed)
	assert.Nil(t, f.sessions.GetSession(sess.ID))
	assert.NotNil(t, f.sessions.GetSession(live.ID), "non-terminal sessions are kept")
}
