package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	types  []string
	bodies [][]byte
	err    error
}

func (p *recordingPublisher) Publish(eventType string, body []byte) error {
	p.types = append(p.types, eventType)
	p.bodies = append(p.bodies, body)
	return p.err
}

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus(nil)

	var got []string
	bus.Subscribe(TopicQuizCompleted, func(_ Topic, payload json.RawMessage) {
		got = append(got, string(payload))
	})

	bus.Publish(TopicQuizCompleted, map[string]string{"sessionId": "QZ-1"})
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"sessionId":"QZ-1"}`, got[0])
}

func TestSubscribeReceivesCurrentValue(t *testing.T) {
	bus := NewBus(nil)
	bus.Publish(TopicStreakAchieved, map[string]int{"streak": 5})

	var got []string
	bus.Subscribe(TopicStreakAchieved, func(_ Topic, payload json.RawMessage) {
		got = append(got, string(payload))
	})

	// 订阅时立即补发当前值
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"streak":5}`, got[0])
}

func TestSubscribeNoCurrentValueNoCallback(t *testing.T) {
	bus := NewBus(nil)

	calls := 0
	bus.Subscribe(TopicGateChanged, func(Topic, json.RawMessage) { calls++ })
	assert.Equal(t, 0, calls)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(nil)

	calls := 0
	unsubscribe := bus.Subscribe(TopicGateChanged, func(Topic, json.RawMessage) { calls++ })

	bus.Publish(TopicGateChanged, "a")
	unsubscribe()
	bus.Publish(TopicGateChanged, "b")

	assert.Equal(t, 1, calls)
}

func TestTopicsAreIndependent(t *testing.T) {
	bus := NewBus(nil)

	calls := 0
	bus.Subscribe(TopicQuizCompleted, func(Topic, json.RawMessage) { calls++ })

	bus.Publish(TopicStreakAchieved, "x")
	assert.Equal(t, 0, calls)
}

func TestExternalPublisherReceivesSnapshots(t *testing.T) {
	external := &recordingPublisher{}
	bus := NewBus(external)

	bus.Publish(TopicRecommendationsChanged, []string{"topic-a"})

	require.Len(t, external.types, 1)
	assert.Equal(t, string(TopicRecommendationsChanged), external.types[0])
	assert.JSONEq(t, `["topic-a"]`, string(external.bodies[0]))
}

func TestExternalPublishFailureDoesNotBlockLocal(t *testing.T) {
	external := &recordingPublisher{err: assert.AnError}
	bus := NewBus(external)

	calls := 0
	bus.Subscribe(TopicQuizCompleted, func(Topic, json.RawMessage) { calls++ })

	bus.Publish(TopicQuizCompleted, "x")
	assert.Equal(t, 1, calls, "local delivery proceeds even when the external channel errors")
}
