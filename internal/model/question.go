package model

import (
	"encoding/json"
	"time"
)

// QuestionPurpose 题目用途
type QuestionPurpose string

const (
	PurposeMastery    QuestionPurpose = "mastery"
	PurposeDiscovery  QuestionPurpose = "discovery"
	PurposeReflection QuestionPurpose = "reflection"
	PurposeInvitation QuestionPurpose = "invitation"
)

// BloomLevel 认知层级（布鲁姆分类）
type BloomLevel string

const (
	BloomRemember   BloomLevel = "remember"
	BloomUnderstand BloomLevel = "understand"
	BloomApply      BloomLevel = "apply"
	BloomAnalyze    BloomLevel = "analyze"
	BloomEvaluate   BloomLevel = "evaluate"
	BloomCreate     BloomLevel = "create"
)

// QuestionMetadata 题目元数据
type QuestionMetadata struct {
	AssessesContentID string     `json:"assessesContentId"` // 所考察的主题ID
	BloomsLevel       BloomLevel `json:"bloomsLevel"`
	Difficulty        string     `json:"difficulty"` // easy / medium / hard
	Tags              []string   `json:"tags,omitempty"`
}

// SubscaleContributions 主题→选项→维度→权重，仅 discovery 题目使用，引擎不解释其内容
type SubscaleContributions map[string]map[string]map[string]float64

// QuestionItem 可测评的最小单元，创建后不可变，由题库存储持有
// swagger:model QuestionItem
type QuestionItem struct {
	ID                    string                `json:"id"`
	Purpose               QuestionPurpose       `json:"purpose"`
	Content               json.RawMessage       `json:"content"` // 渲染载荷，引擎视为不透明
	Hints                 []string              `json:"hints,omitempty"`
	SubscaleContributions SubscaleContributions `json:"subscaleContributions,omitempty"`
	Metadata              QuestionMetadata      `json:"metadata"`
}

// TopicID 返回题目考察的主题ID
func (q *QuestionItem) TopicID() string {
	return q.Metadata.AssessesContentID
}

// PoolMetadata 题库目标分布与完整性标记
type PoolMetadata struct {
	TargetByBloom      map[BloomLevel]int `json:"targetByBloom,omitempty"`
	TargetByDifficulty map[string]int     `json:"targetByDifficulty,omitempty"`
	Complete           bool               `json:"complete"`
}

// QuestionPool 单个主题的全部题目，整体替换，引擎内部从不局部修改
// swagger:model QuestionPool
type QuestionPool struct {
	TopicID   string         `json:"topicId"`
	Questions []QuestionItem `json:"questions"`
	Metadata  PoolMetadata   `json:"metadata"`
	LoadedAt  time.Time      `json:"loadedAt"`
}

// PoolStats 聚合统计
type PoolStats struct {
	Total        int                `json:"total"`
	ByBloom      map[BloomLevel]int `json:"byBloom"`
	ByDifficulty map[string]int     `json:"byDifficulty"`
	ByTopic      map[string]int     `json:"byTopic"`
}

// HierarchicalSource 派生的临时视图：从课程路径某节点到目标小节（含）可达的主题集合
type HierarchicalSource struct {
	PathID       string        `json:"pathId"`
	SectionID    string        `json:"sectionId"`
	SectionFound bool          `json:"sectionFound"`
	TopicIDs     []string      `json:"topicIds"`
	CombinedPool *QuestionPool `json:"combinedPool,omitempty"`
	Stats        *PoolStats    `json:"stats,omitempty"`
}
