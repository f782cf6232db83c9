package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"elearn_quiz_backend/internal/config"
	"elearn_quiz_backend/internal/model"
)

// fakeClock lets tests drive time explicitly.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// stubContent serves pool payloads from a map keyed by content path.
type stubContent struct {
	mu       sync.Mutex
	payloads map[string]json.RawMessage
	loads    int
}

func newStubContent() *stubContent {
	return &stubContent{payloads: make(map[string]json.RawMessage)}
}

func (s *stubContent) GetContent(_ context.Context, path string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return s.payloads[path], nil
}

func (s *stubContent) put(path string, payload string) {
	s.mu.Lock()
	s.payloads[path] = json.RawMessage(payload)
	s.mu.Unlock()
}

func (s *stubContent) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// stubCurriculum serves a single fixed learning path.
type stubCurriculum struct {
	path *model.LearningPath
}

func (s *stubCurriculum) GetPath(_ context.Context, pathID string) (*model.LearningPath, error) {
	if s.path == nil || s.path.ID != pathID {
		return nil, nil
	}
	return s.path, nil
}

func floatPtr(v float64) *float64 { return &v }

func testQuizConfig() *config.QuizConfig {
	return &config.QuizConfig{
		PassingScore:           0.8,
		MaxAttemptsPerDay:      2,
		CooldownHours:          4,
		DailyResetHour:         0,
		MinMinutesBetween:      5,
		TargetStreak:           3,
		StreakOnIncorrect:      "reset",
		SkipThreshold:          0.85,
		PoolCacheTTLMinutes:    5,
		SessionRetentionHours:  24,
		MaxRecommendations:     10,
		StruggleScoreThreshold: 0.6,
		PracticeQuestionCount:  10,
		MasteryQuestionCount:   15,
		InlineQuestionCount:    8,
		PracticedTopicWeight:   2,
	}
}

func testQuestion(id, topicID string, bloom model.BloomLevel, difficulty string) model.QuestionItem {
	return model.QuestionItem{
		ID:      id,
		Purpose: model.PurposeMastery,
		Content: json.RawMessage(`{"prompt":"q"}`),
		Metadata: model.QuestionMetadata{
			AssessesContentID: topicID,
			BloomsLevel:       bloom,
			Difficulty:        difficulty,
		},
	}
}

// testPoolJSON builds a raw-array pool payload with n questions for a topic.
func testPoolJSON(topicID string, n int, bloom model.BloomLevel) string {
	items := make([]model.QuestionItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, testQuestion(fmt.Sprintf("%s-q%d", topicID, i), topicID, bloom, "easy"))
	}
	body, _ := json.Marshal(items)
	return string(body)
}

func testPath() *model.LearningPath {
	return &model.LearningPath{
		ID:    "path-1",
		Title: "Intro",
		Chapters: []model.PathChapter{{
			ID: "ch-1",
			Modules: []model.PathModule{{
				ID: "mod-1",
				Sections: []model.PathSection{
					{ID: "sec-1", TopicIDs: []string{"topic-a", "topic-b"}},
					{ID: "sec-2", TopicIDs: []string{"topic-c"}},
					{ID: "sec-3", TopicIDs: []string{"topic-d"}},
				},
			}},
		}},
	}
}
