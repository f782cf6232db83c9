package model

import "time"

// AttemptHistoryLimit 每条记录保留的历史上限
const AttemptHistoryLimit = 50

// AttemptHistoryEntry 单次 mastery 尝试的历史条目
type AttemptHistoryEntry struct {
	AttemptedAt time.Time `json:"attemptedAt"`
	Score       float64   `json:"score"`
	Passed      bool      `json:"passed"`
}

// AttemptRecord 按 (主题, 学习者) 维护的尝试配额记录；
// mastered 单调，一旦为 true 不再回退
// swagger:model AttemptRecord
type AttemptRecord struct {
	TopicID           string                `json:"topicId"`
	LearnerID         string                `json:"learnerId"`
	AttemptsToday     int                   `json:"attemptsToday"`
	MaxAttemptsPerDay int                   `json:"maxAttemptsPerDay"`
	ResetsAt          time.Time             `json:"resetsAt"`
	LastAttemptAt     *time.Time            `json:"lastAttemptAt,omitempty"`
	CooldownEndsAt    *time.Time            `json:"cooldownEndsAt,omitempty"`
	BestScore         float64               `json:"bestScore"`
	Mastered          bool                  `json:"mastered"`
	MasteredAt        *time.Time            `json:"masteredAt,omitempty"`
	History           []AttemptHistoryEntry `json:"history,omitempty"`
}

// Clone 深拷贝记录；History 独立，时间指针指向的值不可变可共享
func (r *AttemptRecord) Clone() *AttemptRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.History = append([]AttemptHistoryEntry(nil), r.History...)
	return &out
}

// DenialReason 尝试被拒绝的原因
type DenialReason string

const (
	DenialAlreadyMastered    DenialReason = "already_mastered"
	DenialMaxAttemptsReached DenialReason = "max_attempts_reached"
	DenialInCooldown         DenialReason = "in_cooldown"
	DenialTooSoon            DenialReason = "too_soon"
)

// AttemptCheck checkAttempt 的结构化结果；拒绝是正常业务结果而非错误
type AttemptCheck struct {
	Allowed           bool         `json:"allowed"`
	Reason            DenialReason `json:"reason,omitempty"`
	Message           string       `json:"message"`
	RemainingAttempts int          `json:"remainingAttempts"`
	ResetsAt          time.Time    `json:"resetsAt"`
	CooldownEndsAt    *time.Time   `json:"cooldownEndsAt,omitempty"`
}

// CooldownStatus 面向展示的只读投影
type CooldownStatus struct {
	TopicID           string     `json:"topicId"`
	InCooldown        bool       `json:"inCooldown"`
	CooldownEndsAt    *time.Time `json:"cooldownEndsAt,omitempty"`
	CooldownRemaining string     `json:"cooldownRemaining"` // 如 "2h 15m"，≤0 显示 "0m"
	AttemptsToday     int        `json:"attemptsToday"`
	RemainingAttempts int        `json:"remainingAttempts"`
	ResetsAt          time.Time  `json:"resetsAt"`
	BestScore         float64    `json:"bestScore"`
	Mastered          bool       `json:"mastered"`
}
