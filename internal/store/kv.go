package store

import (
	"context"
	"fmt"
)

// KV 持久化键值存储抽象；引擎内所有按键分区的状态
// （AttemptRecord、StreakState、GateStatus 等）都经由它读写。
// 键形如 {kind}:{learnerId}:{topicOrPath}
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

// AttemptKey mastery 尝试记录的存储键
func AttemptKey(learnerID, topicID string) string {
	return fmt.Sprintf("attempt:%s:%s", learnerID, topicID)
}

// StreakKey 连对状态的存储键
func StreakKey(learnerID, topicID string) string {
	return fmt.Sprintf("streak:%s:%s", learnerID, topicID)
}

// GateKey 关卡状态的存储键
func GateKey(learnerID, pathID, sectionID string) string {
	return fmt.Sprintf("gate:%s:%s:%s", learnerID, pathID, sectionID)
}

// RecommendationKey 内容推荐列表的存储键
func RecommendationKey(learnerID, pathID string) string {
	return fmt.Sprintf("recommend:%s:%s", learnerID, pathID)
}

// PreAssessmentKey 预评估结果的存储键
func PreAssessmentKey(learnerID, pathID string) string {
	return fmt.Sprintf("preassess:%s:%s", learnerID, pathID)
}
