package controller

import (
	"elearn_quiz_backend/internal/middleware"
	"elearn_quiz_backend/internal/model"
	"elearn_quiz_backend/internal/service"
	"elearn_quiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type StreakController struct {
	Streaks *service.StreakService
}

func NewStreakController(streaks *service.StreakService) *StreakController {
	return &StreakController{Streaks: streaks}
}

// StartStreakRequest 启动连对追踪请求；省略的字段取策略默认值
// swagger:model StartStreakRequest
type StartStreakRequest struct {
	TopicID      string `json:"topicId" binding:"required"`
	TargetStreak int    `json:"targetStreak"`
	MaxQuestions int    `json:"maxQuestions"`
}

// StartStreak godoc
// @Summary 启动连对追踪
// @Description 对 (学习者, 主题) 开始追踪；已有未完成的追踪时幂等返回现有状态
// @Tags 连对
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body StartStreakRequest true "追踪配置"
// @Success 200 {object} util.Response{data=model.StreakState} "成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Router /api/streaks [post]
func (c *StreakController) StartStreak(ctx *gin.Context) {
	var req StartStreakRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	state, err := c.Streaks.Start(ctx.Request.Context(), claims.LearnerID, req.TopicID, &model.StreakConfig{
		TargetStreak: req.TargetStreak,
		MaxQuestions: req.MaxQuestions,
	})
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, state)
}

// RecordStreakAnswerRequest 直接记录一次作答（不经由会话）
type RecordStreakAnswerRequest struct {
	Correct bool `json:"correct"`
}

// RecordAnswer godoc
// @Summary 记录一次连对作答
// @Description 未开始追踪的主题返回 409；已完成的追踪不再累计
// @Tags 连对
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   topicId path string true "主题ID"
// @Param   body body RecordStreakAnswerRequest true "作答正误"
// @Success 200 {object} util.Response{data=model.StreakState} "成功"
// @Failure 409 {object} util.Response "追踪未开始"
// @Router /api/streaks/{topicId}/answers [post]
func (c *StreakController) RecordAnswer(ctx *gin.Context) {
	var req RecordStreakAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	state, err := c.Streaks.RecordAnswer(ctx.Request.Context(), claims.LearnerID, ctx.Param("topicId"), req.Correct)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if state == nil {
		util.Conflict(ctx, util.ErrStreakNotStarted.Error())
		return
	}
	util.Success(ctx, state)
}

// GetStreak godoc
// @Summary 查询连对状态
// @Tags 连对
// @Produce  json
// @Security ApiKeyAuth
// @Param   topicId path string true "主题ID"
// @Param   learnerId query string false "代查的学习者ID（仅 teacher/admin）"
// @Success 200 {object} util.Response{data=model.StreakState} "成功"
// @Failure 404 {object} util.Response "追踪不存在"
// @Router /api/streaks/{topicId} [get]
func (c *StreakController) GetStreak(ctx *gin.Context) {
	learnerID, ok := middleware.LearnerScope(ctx, ctx.Query("learnerId"))
	if !ok {
		return
	}

	state, err := c.Streaks.GetStreak(ctx.Request.Context(), learnerID, ctx.Param("topicId"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if state == nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, state)
}

// ResetStreak godoc
// @Summary 重置连对追踪
// @Description 管理操作：将 (学习者, 主题) 的计数和历史归零，保留目标和最佳纪录
// @Tags 连对
// @Produce  json
// @Security ApiKeyAuth
// @Param   topicId path string true "主题ID"
// @Param   learnerId query string true "学习者ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/admin/streaks/{topicId} [delete]
func (c *StreakController) ResetStreak(ctx *gin.Context) {
	learnerID := ctx.Query("learnerId")
	if learnerID == "" {
		util.BadRequest(ctx, "learnerId is required")
		return
	}
	if err := c.Streaks.Reset(ctx.Request.Context(), learnerID, ctx.Param("topicId")); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
