package app

import (
	"context"
	"elearn_quiz_backend/internal/config"
	"elearn_quiz_backend/internal/controller"
	"elearn_quiz_backend/internal/event"
	"elearn_quiz_backend/internal/repository"
	"elearn_quiz_backend/internal/service"
	"elearn_quiz_backend/internal/store"
	"elearn_quiz_backend/internal/util"
	"elearn_quiz_backend/pkg/database"
	"elearn_quiz_backend/pkg/logger"
	"elearn_quiz_backend/pkg/monitoring"
	"elearn_quiz_backend/pkg/security"
	"elearn_quiz_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	publisher       *event.AMQPPublisher
	cancelTasks     context.CancelFunc
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user       *repository.UserRepository
	content    *repository.ContentRepository
	curriculum *repository.CurriculumRepository
}

type services struct {
	auth       *service.AuthService
	content    *service.ContentService
	curriculum *service.CurriculumService
	pools      *service.PoolService
	streaks    *service.StreakService
	cooldown   *service.CooldownService
	sessions   *service.QuizSessionService
	adaptation *service.PathAdaptationService
	aggregator service.SubscaleAggregator
	bus        *event.Bus
}

type controllers struct {
	auth     *controller.AuthController
	quiz     *controller.QuizController
	streak   *controller.StreakController
	cooldown *controller.CooldownController
	path     *controller.PathController
	content  *controller.ContentController
	health   *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig 热更新测验策略；服务持有的是 Quiz 配置指针，原地替换即生效
func (a *App) ApplyConfig(cfg *config.Config) {
	a.Config.Quiz = cfg.Quiz
	a.Config.CORS = cfg.CORS
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
	logger.Log.Info("config reloaded",
		zap.Float64("passing_score", cfg.Quiz.PassingScore),
		zap.Int("max_attempts_per_day", cfg.Quiz.MaxAttemptsPerDay))
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		content:    repository.NewContentRepository(db),
		curriculum: repository.NewCurriculumRepository(db),
	}
}

// initKV 引擎状态的键值存储：数据库为权威层，Redis 可用时叠加为读缓存
func (a *App) initKV(db *gorm.DB, rdb *redis.Client) store.KV {
	durable := store.NewGormKV(db)
	if rdb == nil {
		return durable
	}
	return store.NewLayeredKV(store.NewRedisKV(rdb, "quiz"), durable)
}

func (a *App) initServices(repos *repositories, cfg *config.Config, kv store.KV) (*services, error) {
	s := &services{}
	clock := util.NewRealClock()

	// 可选的 AMQP 外部事件通道，连接失败只降级为进程内广播
	var external event.ExternalPublisher
	if cfg.AMQP.Enabled {
		pub, err := event.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Log.Warn("AMQP publisher unavailable, events stay in-process", zap.Error(err))
		} else {
			a.publisher = pub
			external = pub
		}
	}
	s.bus = event.NewBus(external)

	content, err := service.NewContentService(repos.content, &cfg.Storage)
	if err != nil {
		return nil, err
	}
	s.content = content
	s.curriculum = service.NewCurriculumService(repos.curriculum)

	s.auth = service.NewAuthService(repos.user, &cfg.JWT)
	s.pools = service.NewPoolService(s.content, s.curriculum, &cfg.Quiz, clock, nil)
	s.streaks = service.NewStreakService(kv, s.bus, &cfg.Quiz, clock)
	s.cooldown = service.NewCooldownService(kv, &cfg.Quiz, clock)
	s.adaptation = service.NewPathAdaptationService(kv, s.cooldown, s.curriculum, s.bus, &cfg.Quiz, clock)
	s.sessions = service.NewQuizSessionService(s.pools, s.streaks, s.cooldown, s.adaptation, s.bus, &cfg.Quiz, clock)
	s.aggregator = service.NewInCoreAggregator()

	return s, nil
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:     controller.NewAuthController(s.auth),
		quiz:     controller.NewQuizController(s.sessions, s.aggregator),
		streak:   controller.NewStreakController(s.streaks),
		cooldown: controller.NewCooldownController(s.cooldown),
		path:     controller.NewPathController(s.adaptation, s.curriculum),
		content:  controller.NewContentController(s.content, s.curriculum, s.pools),
		health:   controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 100000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg.Server.Mode)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
			log.Fatalf("Failed to initialize redis: %v", err)
		}
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	kv := app.initKV(db, rdb)
	services, err := app.initServices(repos, cfg, kv)
	if err != nil {
		logger.Log.Fatal("Failed to initialize services", zap.Error(err))
		log.Fatalf("Failed to initialize services: %v", err)
	}
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	gin.SetMode(ginMode(cfg.Server.Mode))
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("quiz-engine", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	// 终态会话的后台回收
	tasksCtx, cancel := context.WithCancel(context.Background())
	app.cancelTasks = cancel
	services.sessions.StartRetentionLoop(tasksCtx)

	return app
}

func ginMode(mode string) string {
	switch mode {
	case "release":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	if a.cancelTasks != nil {
		a.cancelTasks()
	}
	if a.publisher != nil {
		a.publisher.Close()
	}

	// 关闭服务
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
