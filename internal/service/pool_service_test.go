package service

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"elearn_quiz_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPoolFixture(t *testing.T) (*PoolService, *stubContent, *fakeClock) {
	t.Helper()
	clock := newFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	content := newStubContent()
	currics := &stubCurriculum{path: testPath()}
	svc := NewPoolService(content, currics, testQuizConfig(), clock, rand.New(rand.NewSource(42)))
	return svc, content, clock
}

func TestGetPoolParsesRawArray(t *testing.T) {
	svc, content, _ := newPoolFixture(t)
	content.put("pools/topic-a.json", testPoolJSON("topic-a", 3, model.BloomRemember))

	pool := svc.GetPool(context.Background(), "topic-a")
	require.NotNil(t, pool)
	assert.Equal(t, "topic-a", pool.TopicID)
	assert.Len(t, pool.Questions, 3)
}

func TestGetPoolParsesFullObject(t *testing.T) {
	svc, content, _ := newPoolFixture(t)
	content.put("pools/topic-a.json", `{"topicId":"topic-a","questions":[{"id":"q1","metadata":{"assessesContentId":"topic-a","bloomsLevel":"apply","difficulty":"hard"}}],"metadata":{"complete":true}}`)

	pool := svc.GetPool(context.Background(), "topic-a")
	require.NotNil(t, pool)
	assert.True(t, pool.Metadata.Complete)
	assert.Len(t, pool.Questions, 1)
}

func TestGetPoolMalformedPayloadIsAbsent(t *testing.T) {
	svc, content, _ := newPoolFixture(t)
	content.put("pools/topic-a.json", `{"unexpected":"shape"}`)

	assert.Nil(t, svc.GetPool(context.Background(), "topic-a"))
	assert.Nil(t, svc.GetPool(context.Background(), "topic-missing"))
}

func TestGetPoolCachesUntilTTL(t *testing.T) {
	svc, content, clock := newPoolFixture(t)
	ctx := context.Background()
	content.put("pools/topic-a.json", testPoolJSON("topic-a", 2, model.BloomRemember))

	svc.GetPool(ctx, "topic-a")
	svc.GetPool(ctx, "topic-a")
	assert.Equal(t, 1, content.loadCount(), "second read must hit the cache")

	clock.Advance(6 * time.Minute)
	svc.GetPool(ctx, "topic-a")
	assert.Equal(t, 2, content.loadCount(), "expired cache reloads from content")
}

func TestGetPoolInvalidateCache(t *testing.T) {
	svc, content, _ := newPoolFixture(t)
	ctx := context.Background()
	content.put("pools/topic-a.json", testPoolJSON("topic-a", 2, model.BloomRemember))

	svc.GetPool(ctx, "topic-a")
	svc.InvalidateCache("topic-a")
	svc.GetPool(ctx, "topic-a")
	assert.Equal(t, 2, content.loadCount())
}

func TestHierarchicalSourceStopsAtSectionInclusive(t *testing.T) {
	svc, _, _ := newPoolFixture(t)

	source := svc.GetHierarchicalSource(context.Background(), "path-1", "sec-2")
	assert.True(t, source.SectionFound)
	assert.Equal(t, []string{"topic-a", "topic-b", "topic-c"}, source.TopicIDs)
}

func TestHierarchicalSourceUnknownSectionFailsOpen(t *testing.T) {
	svc, _, _ := newPoolFixture(t)

	source := svc.GetHierarchicalSource(context.Background(), "path-1", "sec-nope")
	assert.False(t, source.SectionFound)
	assert.Equal(t, []string{"topic-a", "topic-b", "topic-c", "topic-d"}, source.TopicIDs)
}

func TestLoadPoolsMergesAndComputesStats(t *testing.T) {
	svc, content, _ := newPoolFixture(t)
	ctx := context.Background()
	content.put("pools/topic-a.json", testPoolJSON("topic-a", 2, model.BloomRemember))
	content.put("pools/topic-b.json", testPoolJSON("topic-b", 3, model.BloomApply))
	// topic-c has no pool; the union simply skips it

	source := svc.GetHierarchicalSource(ctx, "path-1", "sec-2")
	svc.LoadPools(ctx, source)

	require.NotNil(t, source.CombinedPool)
	assert.Len(t, source.CombinedPool.Questions, 5)
	require.NotNil(t, source.Stats)
	assert.Equal(t, 5, source.Stats.Total)
	assert.Equal(t, 2, source.Stats.ByBloom[model.BloomRemember])
	assert.Equal(t, 3, source.Stats.ByBloom[model.BloomApply])
	assert.Equal(t, 2, source.Stats.ByTopic["topic-a"])
}

func TestSelectFiltersAndTruncates(t *testing.T) {
	svc, _, _ := newPoolFixture(t)
	pool := &model.QuestionPool{Questions: []model.QuestionItem{
		testQuestion("q1", "topic-a", model.BloomRemember, "easy"),
		testQuestion("q2", "topic-a", model.BloomApply, "hard"),
		testQuestion("q3", "topic-b", model.BloomRemember, "easy"),
		testQuestion("q4", "topic-b", model.BloomAnalyze, "medium"),
	}}

	result := svc.Select(pool, SelectOptions{
		Count:       2,
		BloomLevels: []model.BloomLevel{model.BloomRemember},
	})
	require.True(t, result.SelectionComplete)
	assert.Len(t, result.Questions, 2)
	for _, q := range result.Questions {
		assert.Equal(t, model.BloomRemember, q.Metadata.BloomsLevel)
	}
}

func TestSelectShortfallDegradesWithNote(t *testing.T) {
	svc, _, _ := newPoolFixture(t)
	pool := &model.QuestionPool{Questions: []model.QuestionItem{
		testQuestion("q1", "topic-a", model.BloomRemember, "easy"),
	}}

	result := svc.Select(pool, SelectOptions{Count: 5})
	assert.False(t, result.SelectionComplete)
	assert.Len(t, result.Questions, 1)
	assert.NotEmpty(t, result.Note)

	empty := svc.Select(nil, SelectOptions{Count: 3})
	assert.False(t, empty.SelectionComplete)
	assert.Empty(t, empty.Questions)
}

func TestSelectExcludeIDs(t *testing.T) {
	svc, _, _ := newPoolFixture(t)
	pool := &model.QuestionPool{Questions: []model.QuestionItem{
		testQuestion("q1", "topic-a", model.BloomRemember, "easy"),
		testQuestion("q2", "topic-a", model.BloomRemember, "easy"),
	}}

	result := svc.Select(pool, SelectOptions{Count: 2, ExcludeIDs: []string{"q1"}})
	require.Len(t, result.Questions, 1)
	assert.Equal(t, "q2", result.Questions[0].ID)
}

func TestSelectNeverDuplicatesDespiteWeights(t *testing.T) {
	svc, _, _ := newPoolFixture(t)
	pool := &model.QuestionPool{Questions: []model.QuestionItem{
		testQuestion("q1", "topic-a", model.BloomApply, "easy"),
		testQuestion("q2", "topic-b", model.BloomApply, "easy"),
		testQuestion("q3", "topic-b", model.BloomApply, "easy"),
	}}

	result := svc.Select(pool, SelectOptions{
		Count:        3,
		TopicWeights: map[string]int{"topic-a": 5},
		Randomize:    true,
	})
	require.Len(t, result.Questions, 3)
	seen := map[string]bool{}
	for _, q := range result.Questions {
		assert.False(t, seen[q.ID], "question %s selected twice", q.ID)
		seen[q.ID] = true
	}
}

func TestSelectVarietyInterleavesTopics(t *testing.T) {
	svc, _, _ := newPoolFixture(t)
	pool := &model.QuestionPool{Questions: []model.QuestionItem{
		testQuestion("a1", "topic-a", model.BloomRemember, "easy"),
		testQuestion("a2", "topic-a", model.BloomRemember, "easy"),
		testQuestion("b1", "topic-b", model.BloomRemember, "easy"),
		testQuestion("b2", "topic-b", model.BloomRemember, "easy"),
	}}

	result := svc.Select(pool, SelectOptions{Count: 4, EnsureVariety: true})
	require.Len(t, result.Questions, 4)
	first := result.Questions[0]
	second := result.Questions[1]
	assert.NotEqual(t, first.TopicID(), second.TopicID(), "adjacent questions should alternate topics")
}

func TestSelectDeterministicWithSeededRNG(t *testing.T) {
	pool := &model.QuestionPool{Questions: []model.QuestionItem{
		testQuestion("q1", "topic-a", model.BloomRemember, "easy"),
		testQuestion("q2", "topic-a", model.BloomRemember, "easy"),
		testQuestion("q3", "topic-a", model.BloomRemember, "easy"),
		testQuestion("q4", "topic-a", model.BloomRemember, "easy"),
	}}

	pick := func() []string {
		clock := newFakeClock(time.Now())
		svc := NewPoolService(newStubContent(), &stubCurriculum{}, testQuizConfig(), clock, rand.New(rand.NewSource(7)))
		result := svc.Select(pool, SelectOptions{Count: 4, Randomize: true})
		ids := make([]string, 0, len(result.Questions))
		for _, q := range result.Questions {
			ids = append(ids, q.ID)
		}
		return ids
	}

	assert.Equal(t, pick(), pick(), "same seed must give the same order")
}

func TestSelectInlineSingleTopicOnly(t *testing.T) {
	svc, _, _ := newPoolFixture(t)
	pool := &model.QuestionPool{Questions: []model.QuestionItem{
		testQuestion("q1", "topic-a", model.BloomRemember, "easy"),
		testQuestion("q2", "topic-b", model.BloomRemember, "easy"),
		testQuestion("q3", "topic-a", model.BloomAnalyze, "easy"),
	}}

	result := svc.SelectInline(pool, 5, "topic-a")
	require.Len(t, result.Questions, 1, "analyze level and foreign topics filtered out")
	assert.Equal(t, "q1", result.Questions[0].ID)
}
