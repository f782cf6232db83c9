package app

import (
	"elearn_quiz_backend/docs"
	"elearn_quiz_backend/internal/config"
	"elearn_quiz_backend/internal/middleware"
	"elearn_quiz_backend/internal/model"

	"elearn_quiz_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		a.registerLearnerRoutes(authGroup, c)
		a.registerStaffRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}
}

func (a *App) registerLearnerRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.GetProfile)

	// 测验会话
	quiz := rg.Group("/quiz/sessions")
	{
		quiz.POST("", c.quiz.CreateSession)
		quiz.GET("", c.quiz.ListSessions)
		quiz.GET("/:id", c.quiz.GetSession)
		quiz.POST("/:id/start", c.quiz.StartSession)
		quiz.POST("/:id/pause", c.quiz.PauseSession)
		quiz.POST("/:id/resume", c.quiz.ResumeSession)
		quiz.POST("/:id/abandon", c.quiz.AbandonSession)
		quiz.POST("/:id/answers", c.quiz.SubmitAnswer)
		quiz.POST("/:id/next", c.quiz.NextQuestion)
		quiz.POST("/:id/previous", c.quiz.PreviousQuestion)
		quiz.GET("/:id/hint", c.quiz.UseHint)
		quiz.POST("/:id/complete", c.quiz.CompleteSession)
		quiz.GET("/:id/result", c.quiz.GetResult)
		quiz.GET("/:id/subscales", c.quiz.GetSubscales)
	}

	// 连对追踪
	streaks := rg.Group("/streaks")
	{
		streaks.POST("", c.streak.StartStreak)
		streaks.GET("/:topicId", c.streak.GetStreak)
		streaks.POST("/:topicId/answers", c.streak.RecordAnswer)
	}

	// 尝试配额
	attempts := rg.Group("/attempts")
	{
		attempts.GET("/status", c.cooldown.GetCooldownStatuses)
		attempts.GET("/:topicId", c.cooldown.GetAttemptRecord)
		attempts.GET("/:topicId/check", c.cooldown.CheckAttempt)
		attempts.GET("/:topicId/status", c.cooldown.GetCooldownStatus)
	}

	// 路径适配
	paths := rg.Group("/paths")
	{
		paths.GET("/:pathId", c.path.GetPath)
		paths.GET("/:pathId/gates", c.path.GetGateStatuses)
		paths.GET("/:pathId/sections/:sectionId/gate", c.path.GetGateStatus)
		paths.GET("/:pathId/recommendations", c.path.GetRecommendations)
		paths.GET("/:pathId/pre-assessment", c.path.GetPreAssessment)
	}

	// 题库只读
	pools := rg.Group("/pools")
	{
		pools.GET("/:topicId", c.content.GetPool)
		pools.GET("/source/:pathId/:sectionId", c.content.GetSourceStats)
	}
}

// registerStaffRoutes teacher/admin 的内容管理与状态重置入口
func (a *App) registerStaffRoutes(rg *gin.RouterGroup, c *controllers) {
	staff := rg.Group("/admin")
	staff.Use(middleware.RequireRole(model.Teacher, model.Admin))
	{
		staff.PUT("/pools/:topicId", c.content.ImportPool)
		staff.DELETE("/pools/:topicId", c.content.DeletePool)
		staff.PUT("/paths/:pathId", c.content.ImportCurriculum)
		staff.DELETE("/paths/:pathId", c.content.DeleteCurriculum)

		staff.DELETE("/streaks/:topicId", c.streak.ResetStreak)
		staff.DELETE("/attempts/:topicId", c.cooldown.ResetAttempts)
		staff.DELETE("/paths/:pathId/recommendations", c.path.ClearRecommendations)
		staff.DELETE("/paths/:pathId/skip-ahead", c.path.ClearSkipAhead)

		staff.POST("/quiz/sessions/:id/force-complete", c.quiz.ForceCompleteSession)
	}
}
