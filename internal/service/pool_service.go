package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"elearn_quiz_backend/internal/config"
	"elearn_quiz_backend/internal/model"
	"elearn_quiz_backend/internal/util"
	"elearn_quiz_backend/pkg/logger"

	"go.uber.org/zap"
)

// poolPathFmt 题库在内容协作方中的路径约定
const poolPathFmt = "pools/%s.json"

type poolCacheEntry struct {
	pool     *model.QuestionPool
	cachedAt time.Time
}

// SelectOptions 选题管道的过滤与采样参数，按固定顺序应用：
// 认知层级 → 难度 → 标签 → 排除ID → 加权过采样 → 洗牌 → 主题交错 → 截断
type SelectOptions struct {
	Count         int
	BloomLevels   []model.BloomLevel
	Difficulties  []string
	Tags          []string
	ExcludeIDs    []string
	TopicID       string         // 限定单主题（inline）
	TopicWeights  map[string]int // 主题 → 过采样倍数
	Randomize     bool
	EnsureVariety bool
}

// SelectionResult 选题结果；候选不足不报错，只降级并标记不完整
type SelectionResult struct {
	Questions         []model.QuestionItem `json:"questions"`
	Requested         int                  `json:"requested"`
	SelectionComplete bool                 `json:"selectionComplete"`
	Note              string               `json:"note,omitempty"`
}

// PoolService 题库存储：按主题加载并缓存题库，聚合层级题源，执行选题管道
type PoolService struct {
	Content  ContentProvider
	Currics  CurriculumProvider
	Quiz     *config.QuizConfig
	clock    util.Clock
	cacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]poolCacheEntry
	rng   *rand.Rand
}

func NewPoolService(content ContentProvider, currics CurriculumProvider, quizCfg *config.QuizConfig, clock util.Clock, rng *rand.Rand) *PoolService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &PoolService{
		Content:  content,
		Currics:  currics,
		Quiz:     quizCfg,
		clock:    clock,
		cacheTTL: time.Duration(quizCfg.PoolCacheTTLMinutes) * time.Minute,
		cache:    make(map[string]poolCacheEntry),
		rng:      rng,
	}
}

// GetPool 返回主题题库；缓存未过期直接命中，否则回源内容协作方。
// 加载失败或载荷畸形都返回 nil——空题库是合法的稳态，不是错误
func (s *PoolService) GetPool(ctx context.Context, topicID string) *model.QuestionPool {
	now := s.clock.Now()

	s.mu.Lock()
	if entry, ok := s.cache[topicID]; ok && now.Sub(entry.cachedAt) < s.cacheTTL {
		s.mu.Unlock()
		return entry.pool
	}
	s.mu.Unlock()

	payload, err := s.Content.GetContent(ctx, fmt.Sprintf(poolPathFmt, topicID))
	if err != nil || payload == nil {
		return nil
	}

	pool := parsePool(payload, topicID, now)
	if pool == nil {
		logger.Log.Warn("malformed question pool treated as absent", zap.String("topic", topicID))
		return nil
	}

	s.mu.Lock()
	s.cache[topicID] = poolCacheEntry{pool: pool, cachedAt: now}
	s.mu.Unlock()

	return pool
}

// InvalidateCache 再导入后使指定主题的缓存失效
func (s *PoolService) InvalidateCache(topicID string) {
	s.mu.Lock()
	delete(s.cache, topicID)
	s.mu.Unlock()
}

// parsePool 接受两种形态：QuestionItem 裸数组，或完整 QuestionPool 对象；
// 其余形态一律视为无题库
func parsePool(payload json.RawMessage, topicID string, now time.Time) *model.QuestionPool {
	var items []model.QuestionItem
	if err := json.Unmarshal(payload, &items); err == nil {
		return &model.QuestionPool{
			TopicID:   topicID,
			Questions: items,
			LoadedAt:  now,
		}
	}

	var pool model.QuestionPool
	if err := json.Unmarshal(payload, &pool); err == nil && pool.Questions != nil {
		if pool.TopicID == "" {
			pool.TopicID = topicID
		}
		pool.LoadedAt = now
		return &pool
	}

	return nil
}

// GetHierarchicalSource 自顶向下遍历课程树，收集到目标小节（含）为止的主题ID。
// 找不到目标小节时返回已遍历的全部主题——宁多勿少
func (s *PoolService) GetHierarchicalSource(ctx context.Context, pathID, sectionID string) *model.HierarchicalSource {
	source := &model.HierarchicalSource{
		PathID:    pathID,
		SectionID: sectionID,
	}

	path, err := s.Currics.GetPath(ctx, pathID)
	if err != nil || path == nil {
		return source
	}

	seen := make(map[string]bool)
	for _, section := range path.Sections() {
		for _, topicID := range section.TopicIDs {
			if !seen[topicID] {
				seen[topicID] = true
				source.TopicIDs = append(source.TopicIDs, topicID)
			}
		}
		if section.ID == sectionID {
			source.SectionFound = true
			break
		}
	}

	return source
}

// LoadPools 并行解析题源中的全部主题题库，合并为 CombinedPool 并重算聚合统计
func (s *PoolService) LoadPools(ctx context.Context, source *model.HierarchicalSource) *model.HierarchicalSource {
	var wg sync.WaitGroup
	var mu sync.Mutex
	pools := make(map[string]*model.QuestionPool, len(source.TopicIDs))

	for _, topicID := range source.TopicIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			pool := s.GetPool(ctx, id)
			if pool == nil {
				return
			}
			mu.Lock()
			pools[id] = pool
			mu.Unlock()
		}(topicID)
	}
	wg.Wait()

	combined := &model.QuestionPool{
		TopicID:  source.PathID + "/" + source.SectionID,
		LoadedAt: s.clock.Now(),
	}
	// 按题源内主题顺序合并，保证结果可复现
	for _, topicID := range source.TopicIDs {
		if pool, ok := pools[topicID]; ok {
			combined.Questions = append(combined.Questions, pool.Questions...)
		}
	}

	source.CombinedPool = combined
	source.Stats = computeStats(combined)
	return source
}

func computeStats(pool *model.QuestionPool) *model.PoolStats {
	stats := &model.PoolStats{
		Total:        len(pool.Questions),
		ByBloom:      make(map[model.BloomLevel]int),
		ByDifficulty: make(map[string]int),
		ByTopic:      make(map[string]int),
	}
	for i := range pool.Questions {
		q := &pool.Questions[i]
		stats.ByBloom[q.Metadata.BloomsLevel]++
		stats.ByDifficulty[q.Metadata.Difficulty]++
		stats.ByTopic[q.TopicID()]++
	}
	return stats
}

// Select 选题管道。过滤、采样从不报错：候选不足时返回能给的全部并标记不完整
func (s *PoolService) Select(pool *model.QuestionPool, opts SelectOptions) *SelectionResult {
	result := &SelectionResult{Requested: opts.Count}
	if pool == nil || len(pool.Questions) == 0 {
		result.Note = fmt.Sprintf("requested %d, no candidates available", opts.Count)
		return result
	}

	candidates := filterQuestions(pool.Questions, opts)

	// 加权过采样：属于加权主题的题目在采样空间中逻辑复制 weight 次，
	// 提高被抽中的概率；最终结果按首次出现去重，不会出现重复题目
	sampled := candidates
	if len(opts.TopicWeights) > 0 {
		sampled = make([]model.QuestionItem, 0, len(candidates))
		for _, q := range candidates {
			weight := opts.TopicWeights[q.TopicID()]
			if weight < 1 {
				weight = 1
			}
			for i := 0; i < weight; i++ {
				sampled = append(sampled, q)
			}
		}
	}

	if opts.Randomize {
		s.shuffle(sampled)
	}

	if opts.EnsureVariety {
		sampled = interleaveByTopic(sampled)
	}

	// 截断到请求数量，同一题目只取首次出现
	picked := make([]model.QuestionItem, 0, opts.Count)
	seen := make(map[string]bool, opts.Count)
	for _, q := range sampled {
		if seen[q.ID] {
			continue
		}
		seen[q.ID] = true
		picked = append(picked, q)
		if len(picked) == opts.Count {
			break
		}
	}

	result.Questions = picked
	result.SelectionComplete = len(picked) == opts.Count
	if !result.SelectionComplete {
		result.Note = fmt.Sprintf("requested %d, only %d candidates after filters", opts.Count, len(picked))
	}
	return result
}

// filterQuestions 按固定顺序应用过滤器：认知层级 → 难度 → 标签 → 排除ID
func filterQuestions(questions []model.QuestionItem, opts SelectOptions) []model.QuestionItem {
	bloomSet := make(map[model.BloomLevel]bool, len(opts.BloomLevels))
	for _, b := range opts.BloomLevels {
		bloomSet[b] = true
	}
	diffSet := make(map[string]bool, len(opts.Difficulties))
	for _, d := range opts.Difficulties {
		diffSet[d] = true
	}
	tagSet := make(map[string]bool, len(opts.Tags))
	for _, t := range opts.Tags {
		tagSet[t] = true
	}
	excludeSet := make(map[string]bool, len(opts.ExcludeIDs))
	for _, id := range opts.ExcludeIDs {
		excludeSet[id] = true
	}

	filtered := make([]model.QuestionItem, 0, len(questions))
	for _, q := range questions {
		if len(bloomSet) > 0 && !bloomSet[q.Metadata.BloomsLevel] {
			continue
		}
		if len(diffSet) > 0 && !diffSet[q.Metadata.Difficulty] {
			continue
		}
		if len(tagSet) > 0 && !hasAnyTag(q.Metadata.Tags, tagSet) {
			continue
		}
		if excludeSet[q.ID] {
			continue
		}
		if opts.TopicID != "" && q.TopicID() != opts.TopicID {
			continue
		}
		filtered = append(filtered, q)
	}
	return filtered
}

func hasAnyTag(tags []string, wanted map[string]bool) bool {
	for _, t := range tags {
		if wanted[t] {
			return true
		}
	}
	return false
}

// shuffle 无偏 Fisher–Yates 洗牌；RNG 可注入，测试中可用固定种子复现
func (s *PoolService) shuffle(questions []model.QuestionItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(questions) - 1; i > 0; i-- {
		j := s.rng.Intn(i + 1)
		questions[i], questions[j] = questions[j], questions[i]
	}
}

// interleaveByTopic 按主题轮转交错，使相邻题目尽量不同主题
func interleaveByTopic(questions []model.QuestionItem) []model.QuestionItem {
	if len(questions) < 2 {
		return questions
	}

	var order []string
	groups := make(map[string][]model.QuestionItem)
	for _, q := range questions {
		topic := q.TopicID()
		if _, ok := groups[topic]; !ok {
			order = append(order, topic)
		}
		groups[topic] = append(groups[topic], q)
	}

	interleaved := make([]model.QuestionItem, 0, len(questions))
	for len(interleaved) < len(questions) {
		for _, topic := range order {
			if len(groups[topic]) == 0 {
				continue
			}
			interleaved = append(interleaved, groups[topic][0])
			groups[topic] = groups[topic][1:]
		}
	}
	return interleaved
}

// SelectPractice practice 预设：remember/understand/apply，洗牌 + 主题交错
func (s *PoolService) SelectPractice(pool *model.QuestionPool, count int, excludeIDs []string) *SelectionResult {
	return s.Select(pool, SelectOptions{
		Count:         count,
		BloomLevels:   []model.BloomLevel{model.BloomRemember, model.BloomUnderstand, model.BloomApply},
		ExcludeIDs:    excludeIDs,
		Randomize:     true,
		EnsureVariety: true,
	})
}

// SelectMastery mastery 预设：understand/apply/analyze，对学习者已练习过的主题 2 倍过采样
func (s *PoolService) SelectMastery(pool *model.QuestionPool, count int, excludeIDs []string, practicedTopics []string) *SelectionResult {
	weights := make(map[string]int, len(practicedTopics))
	for _, topicID := range practicedTopics {
		weights[topicID] = s.Quiz.PracticedTopicWeight
	}
	return s.Select(pool, SelectOptions{
		Count:         count,
		BloomLevels:   []model.BloomLevel{model.BloomUnderstand, model.BloomApply, model.BloomAnalyze},
		ExcludeIDs:    excludeIDs,
		TopicWeights:  weights,
		Randomize:     true,
		EnsureVariety: true,
	})
}

// SelectInline inline 预设：remember/understand，仅限单主题
func (s *PoolService) SelectInline(pool *model.QuestionPool, count int, topicID string) *SelectionResult {
	return s.Select(pool, SelectOptions{
		Count:       count,
		BloomLevels: []model.BloomLevel{model.BloomRemember, model.BloomUnderstand},
		TopicID:     topicID,
		Randomize:   true,
	})
}
