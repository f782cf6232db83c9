package model

import (
	"encoding/json"
	"time"
)

// QuizType 测验类型
type QuizType string

const (
	QuizPractice      QuizType = "practice"
	QuizMastery       QuizType = "mastery"
	QuizInline        QuizType = "inline"
	QuizPreAssessment QuizType = "pre-assessment"
)

// SessionState 测验会话状态机的状态
type SessionState string

const (
	StateNotStarted SessionState = "not_started"
	StateInProgress SessionState = "in_progress"
	StatePaused     SessionState = "paused"
	// completed 是结算过程中的过渡态，随即按通过线落到 passed / failed
	StateCompleted SessionState = "completed"
	StateAbandoned SessionState = "abandoned"
	StatePassed    SessionState = "passed"
	StateFailed    SessionState = "failed"
)

// IsTerminal 判断状态是否为终态
func (s SessionState) IsTerminal() bool {
	return s == StateAbandoned || s == StatePassed || s == StateFailed
}

// SessionQuestion 会话中的题目，包装不可变的 QuestionItem 并附带可变字段
type SessionQuestion struct {
	Item        QuestionItem `json:"item"`
	Index       int          `json:"index"` // 洗牌后的逻辑位置 0..n-1
	Answered    bool         `json:"answered"`
	Correct     bool         `json:"correct"`
	Score       float64      `json:"score"`
	TimeSpentMs int64        `json:"timeSpentMs"`
	HintUsed    bool         `json:"hintUsed"`
	Attempts    int          `json:"attempts"`
}

// QuizResponse 答题记录，每个题目ID最多一条（重复提交覆盖旧记录）
type QuizResponse struct {
	QuestionID  string          `json:"questionId"`
	Response    json.RawMessage `json:"response"`
	Correct     bool            `json:"correct"`
	Score       float64         `json:"score"`
	TimeSpentMs int64           `json:"timeSpentMs"`
	SubmittedAt time.Time       `json:"submittedAt"`
}

// SessionTiming 会话计时信息
type SessionTiming struct {
	CreatedAt        time.Time  `json:"createdAt"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
	TotalTimeMs      int64      `json:"totalTimeMs"`
	TimeLimitSeconds int        `json:"timeLimitSeconds"` // 0 表示不限时
	TimeExceeded     bool       `json:"timeExceeded"`
}

// SessionConfig 会话创建时固定的策略快照
type SessionConfig struct {
	PassingScore        float64 `json:"passingScore"`
	QuestionCount       int     `json:"questionCount"`
	RandomizeOrder      bool    `json:"randomizeOrder"`
	AllowBackNavigation bool    `json:"allowBackNavigation"`
	AllowSkip           bool    `json:"allowSkip"`
	TimeLimitSeconds    int     `json:"timeLimitSeconds"`
}

// PathContext 会话所处的课程位置
type PathContext struct {
	PathID    string `json:"pathId"`
	SectionID string `json:"sectionId"`
}

// SessionAttemptInfo 仅 mastery 会话携带的配额信息
type SessionAttemptInfo struct {
	AttemptNumber     int        `json:"attemptNumber"`
	RemainingAttempts int        `json:"remainingAttempts"`
	ResetsAt          *time.Time `json:"resetsAt,omitempty"`
}

// SessionStreakInfo 仅 inline 会话携带的连对镜像，语义与 StreakState 一致
type SessionStreakInfo struct {
	CurrentStreak int  `json:"currentStreak"`
	TargetStreak  int  `json:"targetStreak"`
	BestStreak    int  `json:"bestStreak"`
	Achieved      bool `json:"achieved"`
}

// QuizSession 测验会话，由会话状态机独占持有
// swagger:model QuizSession
type QuizSession struct {
	ID           string              `json:"id"`
	HumanID      string              `json:"humanId"`
	LearnerID    string              `json:"learnerId"`
	TopicID      string              `json:"topicId,omitempty"` // inline 会话的单主题
	Type         QuizType            `json:"type"`
	State        SessionState        `json:"state"`
	Questions    []SessionQuestion   `json:"questions"`
	CurrentIndex int                 `json:"currentIndex"`
	Responses    []QuizResponse      `json:"responses"`
	Timing       SessionTiming       `json:"timing"`
	PathContext  *PathContext        `json:"pathContext,omitempty"`
	AttemptInfo  *SessionAttemptInfo `json:"attemptInfo,omitempty"`
	StreakInfo   *SessionStreakInfo  `json:"streakInfo,omitempty"`
	Config       SessionConfig       `json:"config"`
}

// QuestionByID 按题目ID查找会话内题目，找不到返回 nil
func (s *QuizSession) QuestionByID(questionID string) *SessionQuestion {
	for i := range s.Questions {
		if s.Questions[i].Item.ID == questionID {
			return &s.Questions[i]
		}
	}
	return nil
}

// AllAnswered 判断会话内全部题目是否均已作答
func (s *QuizSession) AllAnswered() bool {
	if len(s.Questions) == 0 {
		return false
	}
	for i := range s.Questions {
		if !s.Questions[i].Answered {
			return false
		}
	}
	return true
}
