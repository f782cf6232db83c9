package event

import (
	"encoding/json"
	"sync"

	"elearn_quiz_backend/pkg/logger"

	"go.uber.org/zap"
)

// Topic 引擎对外广播的事件主题
type Topic string

const (
	TopicQuizCompleted          Topic = "quiz.completed"
	TopicStreakAchieved         Topic = "streak.achieved"
	TopicGateChanged            Topic = "gate.changed"
	TopicRecommendationsChanged Topic = "recommendations.changed"
)

// Handler 事件回调，收到的是完全物化的 JSON 快照，
// 订阅方无法透过回调修改引擎内部状态
type Handler func(topic Topic, payload json.RawMessage)

// ExternalPublisher 可选的外部发布通道（如 AMQP），发布失败只记日志
type ExternalPublisher interface {
	Publish(eventType string, body []byte) error
}

// Bus 进程内观察者总线：订阅时立即送达该主题的当前值，
// 之后每次 Publish 都会送达；返回的函数用于显式退订
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	subs     map[Topic]map[int]Handler
	last     map[Topic]json.RawMessage
	external ExternalPublisher
}

func NewBus(external ExternalPublisher) *Bus {
	return &Bus{
		subs:     make(map[Topic]map[int]Handler),
		last:     make(map[Topic]json.RawMessage),
		external: external,
	}
}

// Publish 物化 payload 为 JSON 快照后广播；快照同时转发到外部通道
func (b *Bus) Publish(topic Topic, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Error("event payload marshal failed", zap.String("topic", string(topic)), zap.Error(err))
		return
	}

	b.mu.Lock()
	b.last[topic] = body
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(topic, body)
	}

	if b.external != nil {
		if err := b.external.Publish(string(topic), body); err != nil {
			logger.Log.Warn("external event publish failed", zap.String("topic", string(topic)), zap.Error(err))
		}
	}
}

// Subscribe 注册订阅；若该主题已有值则立即用当前值回调一次。
// 返回的函数退订并释放引用，防止泄漏
func (b *Bus) Subscribe(topic Topic, h Handler) func() {
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[topic][id] = h
	current, hasCurrent := b.last[topic]
	b.mu.Unlock()

	if hasCurrent {
		h(topic, current)
	}

	return func() {
		b.mu.Lock()
		delete(b.subs[topic], id)
		b.mu.Unlock()
	}
}
