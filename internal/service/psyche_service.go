package service

import (
	"encoding/json"

	"elearn_quiz_backend/internal/model"
)

// SubscaleAggregator discovery 题目答题后的维度聚合口。
// 引擎不解释维度含义，只把权重按选项转发给实现方
type SubscaleAggregator interface {
	Aggregate(session *model.QuizSession) map[string]map[string]float64
}

// InCoreAggregator 默认实现：直接在进程内累加选项权重。
// 返回 主题 → 维度 → 累计权重；无 discovery 作答时返回空表
type InCoreAggregator struct{}

func NewInCoreAggregator() *InCoreAggregator {
	return &InCoreAggregator{}
}

// discoveryResponse discovery 题目作答载荷的最小形态
type discoveryResponse struct {
	OptionID string `json:"optionId"`
}

func (a *InCoreAggregator) Aggregate(session *model.QuizSession) map[string]map[string]float64 {
	totals := make(map[string]map[string]float64)

	for i := range session.Responses {
		r := &session.Responses[i]
		q := session.QuestionByID(r.QuestionID)
		if q == nil || q.Item.Purpose != model.PurposeDiscovery || q.Item.SubscaleContributions == nil {
			continue
		}

		optionID := parseOptionID(r.Response)
		if optionID == "" {
			continue
		}

		for topicID, byOption := range q.Item.SubscaleContributions {
			weights, ok := byOption[optionID]
			if !ok {
				continue
			}
			if totals[topicID] == nil {
				totals[topicID] = make(map[string]float64)
			}
			for dimension, weight := range weights {
				totals[topicID][dimension] += weight
			}
		}
	}

	return totals
}

// parseOptionID 支持两种载荷：裸字符串选项ID，或 {"optionId": "..."}
func parseOptionID(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(payload, &plain); err == nil {
		return plain
	}

	var obj discoveryResponse
	if err := json.Unmarshal(payload, &obj); err == nil {
		return obj.OptionID
	}
	return ""
}
