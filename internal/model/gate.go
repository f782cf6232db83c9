package model

import "time"

// GateReason 关卡锁定原因
type GateReason string

const (
	GateNotAttempted GateReason = "not_attempted"
	GateFailed       GateReason = "failed"
	GateMaxAttempts  GateReason = "max_attempts"
	GateInCooldown   GateReason = "in_cooldown"
)

// GateStatus 按 (路径, 小节, 学习者) 派生的关卡状态，非独立权威数据：
// 每次读取都基于 AttemptRecord 与本地缓存的跳级标记重新计算。
// 不变式：locked == false 必然意味着 mastered == true 或该小节被显式跳级解锁
// swagger:model GateStatus
type GateStatus struct {
	PathID            string     `json:"pathId"`
	SectionID         string     `json:"sectionId"`
	LearnerID         string     `json:"learnerId"`
	Locked            bool       `json:"locked"`
	Reason            GateReason `json:"reason,omitempty"`
	QuizAvailable     bool       `json:"quizAvailable"`
	CooldownEndsAt    *time.Time `json:"cooldownEndsAt,omitempty"`
	RemainingAttempts int        `json:"remainingAttempts"`
	BestScore         float64    `json:"bestScore"`
	Mastered          bool       `json:"mastered"`
	SkipUnlocked      bool       `json:"skipUnlocked"` // 跳级显式解锁标记
	Completed         bool       `json:"completed"`
	Skipped           bool       `json:"skipped"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// RecommendationReason 内容推荐原因
type RecommendationReason string

const (
	RecommendStruggledWithConcept RecommendationReason = "struggled_with_concept"
)

// Recommendation 内容推荐，按置信度降序保存
type Recommendation struct {
	TopicID    string               `json:"topicId"`
	Reason     RecommendationReason `json:"reason"`
	Confidence float64              `json:"confidence"` // 1 - score
	CreatedAt  time.Time            `json:"createdAt"`
}

// SectionSkipResult 预评估后单个小节的跳级判定
type SectionSkipResult struct {
	SectionID     string   `json:"sectionId"`
	TopicIDs      []string `json:"topicIds"`
	AverageScore  float64  `json:"averageScore"`
	RecommendSkip bool     `json:"recommendSkip"`
}

// PreAssessmentOutcome 预评估映射到课程小节后的整体结果
type PreAssessmentOutcome struct {
	PathID              string              `json:"pathId"`
	LearnerID           string              `json:"learnerId"`
	SkipThreshold       float64             `json:"skipThreshold"`
	Sections            []SectionSkipResult `json:"sections"`
	RecommendedStartID  string              `json:"recommendedStartId"`
	SkippedSectionCount int                 `json:"skippedSectionCount"`
	EvaluatedAt         time.Time           `json:"evaluatedAt"`
}
