package model

import "encoding/json"

// PathSection 课程小节，携带其考察的主题ID列表
type PathSection struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	TopicIDs []string `json:"topicIds"`
}

// PathModule 课程模块
type PathModule struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Sections []PathSection `json:"sections"`
}

// PathChapter 课程章节
type PathChapter struct {
	ID      string       `json:"id"`
	Title   string       `json:"title"`
	Modules []PathModule `json:"modules"`
}

// LearningPath 只读的课程树：章节 → 模块 → 小节
// swagger:model LearningPath
type LearningPath struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Chapters []PathChapter `json:"chapters"`
}

// Sections 按文档顺序展开全部小节
func (p *LearningPath) Sections() []PathSection {
	var sections []PathSection
	for _, ch := range p.Chapters {
		for _, m := range ch.Modules {
			sections = append(sections, m.Sections...)
		}
	}
	return sections
}

// ContentEntry 内容协作方在数据库中的存储行：path → JSON 载荷
type ContentEntry struct {
	BaseModel
	Path    string          `gorm:"size:255;uniqueIndex;not null" json:"path"`
	Payload json.RawMessage `gorm:"type:longtext" json:"payload"`
}

func (ContentEntry) TableName() string {
	return "content_entries"
}

// CurriculumEntry 课程树存储行：pathId → LearningPath JSON
type CurriculumEntry struct {
	BaseModel
	PathID  string          `gorm:"size:64;uniqueIndex;not null" json:"pathId"`
	Payload json.RawMessage `gorm:"type:longtext" json:"payload"`
}

func (CurriculumEntry) TableName() string {
	return "curriculum_entries"
}

// KVEntry 通用键值存储行，键形如 {kind}:{learnerId}:{topicOrPath}
type KVEntry struct {
	Key       string `gorm:"primaryKey;size:255" json:"key"`
	Value     string `gorm:"type:longtext" json:"value"`
	UpdatedAt int64  `gorm:"autoUpdateTime:milli" json:"updatedAt"`
}

func (KVEntry) TableName() string {
	return "kv_entries"
}
