package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	AMQP      AMQPConfig      `mapstructure:"amqp"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Quiz      QuizConfig      `mapstructure:"quiz"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type RedisConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type AMQPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"` // db / minio
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// QuizConfig 测验引擎的策略默认值，可按请求覆盖
type QuizConfig struct {
	PassingScore           float64 `mapstructure:"passing_score"`            // mastery 通过线
	MaxAttemptsPerDay      int     `mapstructure:"max_attempts_per_day"`     // 每日 mastery 尝试上限
	CooldownHours          int     `mapstructure:"cooldown_hours"`           // 两次尝试之间的冷却小时数
	DailyResetHour         int     `mapstructure:"daily_reset_hour"`         // 每日配额重置的整点（本地时间）
	MinMinutesBetween      int     `mapstructure:"min_minutes_between"`      // 冷却之外的最小间隔分钟数
	TargetStreak           int     `mapstructure:"target_streak"`            // inline 连对目标
	StreakMaxQuestions     int     `mapstructure:"streak_max_questions"`     // inline 最多题数，0 不限
	StreakOnIncorrect      string  `mapstructure:"streak_on_incorrect"`      // reset / freeze
	SkipThreshold          float64 `mapstructure:"skip_threshold"`           // 跳级判定阈值
	PoolCacheTTLMinutes    int     `mapstructure:"pool_cache_ttl_minutes"`   // 题库缓存有效期
	SessionRetentionHours  int     `mapstructure:"session_retention_hours"`  // 终态会话保留时长
	MaxRecommendations     int     `mapstructure:"max_recommendations"`      // 推荐列表上限
	StruggleScoreThreshold float64 `mapstructure:"struggle_score_threshold"` // 低于该分的主题生成推荐
	PracticeQuestionCount  int     `mapstructure:"practice_question_count"`  // practice 默认题数
	MasteryQuestionCount   int     `mapstructure:"mastery_question_count"`   // mastery 默认题数
	InlineQuestionCount    int     `mapstructure:"inline_question_count"`    // inline 默认题数
	PracticedTopicWeight   int     `mapstructure:"practiced_topic_weight"`   // mastery 对已练习主题的过采样倍数
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("QUIZ_ENGINE")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.enabled", "REDIS_ENABLED")
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// AMQP
	viper.BindEnv("amqp.enabled", "AMQP_ENABLED")
	viper.BindEnv("amqp.url", "AMQP_URL")
	viper.BindEnv("amqp.exchange", "AMQP_EXCHANGE")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Storage / MinIO
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	applyQuizDefaults(&cfg.Quiz)

	return &cfg, nil
}

// applyQuizDefaults 补齐引擎策略的参考默认值
func applyQuizDefaults(q *QuizConfig) {
	if q.PassingScore <= 0 {
		q.PassingScore = 0.8
	}
	if q.MaxAttemptsPerDay <= 0 {
		q.MaxAttemptsPerDay = 2
	}
	if q.DailyResetHour < 0 || q.DailyResetHour > 23 {
		q.DailyResetHour = 0
	}
	if q.CooldownHours <= 0 {
		q.CooldownHours = 4
	}
	if q.MinMinutesBetween <= 0 {
		q.MinMinutesBetween = 5
	}
	if q.TargetStreak <= 0 {
		q.TargetStreak = 5
	}
	if q.StreakOnIncorrect != "freeze" {
		q.StreakOnIncorrect = "reset"
	}
	if q.SkipThreshold <= 0 {
		q.SkipThreshold = 0.85
	}
	if q.PoolCacheTTLMinutes <= 0 {
		q.PoolCacheTTLMinutes = 5
	}
	if q.SessionRetentionHours <= 0 {
		q.SessionRetentionHours = 24
	}
	if q.MaxRecommendations <= 0 {
		q.MaxRecommendations = 10
	}
	if q.StruggleScoreThreshold <= 0 {
		q.StruggleScoreThreshold = 0.6
	}
	if q.PracticeQuestionCount <= 0 {
		q.PracticeQuestionCount = 10
	}
	if q.MasteryQuestionCount <= 0 {
		q.MasteryQuestionCount = 15
	}
	if q.InlineQuestionCount <= 0 {
		q.InlineQuestionCount = 8
	}
	if q.PracticedTopicWeight <= 0 {
		q.PracticedTopicWeight = 2
	}
}
