package model

import "time"

// StreakHistoryLimit 最近答题历史的保留上限
const StreakHistoryLimit = 20

// StreakState 按主题维护的连对状态（学习者隐含在存储键中）；
// achieved 单调，一旦为 true 不再回退
// swagger:model StreakState
type StreakState struct {
	TopicID        string     `json:"topicId"`
	LearnerID      string     `json:"learnerId"`
	CurrentStreak  int        `json:"currentStreak"`
	TargetStreak   int        `json:"targetStreak"`
	MaxQuestions   int        `json:"maxQuestions"` // 0 表示不限
	TotalCorrect   int        `json:"totalCorrect"`
	TotalAttempted int        `json:"totalAttempted"`
	RecentAnswers  []bool     `json:"recentAnswers,omitempty"`
	BestStreak     int        `json:"bestStreak"`
	Achieved       bool       `json:"achieved"`
	AchievedAt     *time.Time `json:"achievedAt,omitempty"`
	StartedAt      time.Time  `json:"startedAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// IsComplete achieved 或达到题数上限即视为完成
func (s *StreakState) IsComplete() bool {
	if s.Achieved {
		return true
	}
	return s.MaxQuestions > 0 && s.TotalAttempted >= s.MaxQuestions
}

// StreakConfig 启动追踪时的配置
type StreakConfig struct {
	TargetStreak int `json:"targetStreak"`
	MaxQuestions int `json:"maxQuestions"`
}
