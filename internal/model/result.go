package model

import "time"

// TopicScore 单主题得分
type TopicScore struct {
	TopicID      string  `json:"topicId"`
	Correct      int     `json:"correct"`
	Total        int     `json:"total"`
	Score        float64 `json:"score"`
	AverageScore float64 `json:"averageScore"` // 按分值（支持小数分）计算的平均分
}

// ResultTiming 答题耗时汇总
type ResultTiming struct {
	TotalTimeMs   int64 `json:"totalTimeMs"`
	FastestMs     int64 `json:"fastestMs"`
	SlowestMs     int64 `json:"slowestMs"`
	AverageMs     int64 `json:"averageMs"`
	ResponseCount int   `json:"responseCount"`
}

// StreakOutcome inline 会话的连对结果
type StreakOutcome struct {
	FinalStreak  int  `json:"finalStreak"`
	BestStreak   int  `json:"bestStreak"`
	TargetStreak int  `json:"targetStreak"`
	Achieved     bool `json:"achieved"`
}

// QuizResult 会话完成时一次性计算的不可变快照；相同答题日志必然得到相同结果
// swagger:model QuizResult
type QuizResult struct {
	SessionID      string                `json:"sessionId"`
	HumanID        string                `json:"humanId"`
	LearnerID      string                `json:"learnerId"`
	Type           QuizType              `json:"type"`
	Score          float64               `json:"score"` // correctCount / totalResponses
	Passed         bool                  `json:"passed"`
	CorrectCount   int                   `json:"correctCount"`
	TotalQuestions int                   `json:"totalQuestions"`
	TotalResponses int                   `json:"totalResponses"`
	TopicBreakdown map[string]TopicScore `json:"topicBreakdown"`
	Timing         ResultTiming          `json:"timing"`
	Streak         *StreakOutcome        `json:"streak,omitempty"` // 仅 inline
	CompletedAt    time.Time             `json:"completedAt"`
}
