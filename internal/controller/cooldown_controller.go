package controller

import (
	"elearn_quiz_backend/internal/middleware"
	"elearn_quiz_backend/internal/service"
	"elearn_quiz_backend/internal/util"
	"strings"

	"github.com/gin-gonic/gin"
)

type CooldownController struct {
	Cooldown *service.CooldownService
}

func NewCooldownController(cooldown *service.CooldownService) *CooldownController {
	return &CooldownController{Cooldown: cooldown}
}

// CheckAttempt godoc
// @Summary 判定能否发起 mastery 尝试
// @Description 判定优先级固定：已掌握 → 日配额 → 冷却 → 最小间隔 → 放行；拒绝是业务结果不是错误
// @Tags 尝试配额
// @Produce  json
// @Security ApiKeyAuth
// @Param   topicId path string true "主题或小节ID"
// @Param   learnerId query string false "代查的学习者ID（仅 teacher/admin）"
// @Success 200 {object} util.Response{data=model.AttemptCheck} "成功"
// @Router /api/attempts/{topicId}/check [get]
func (c *CooldownController) CheckAttempt(ctx *gin.Context) {
	learnerID, ok := middleware.LearnerScope(ctx, ctx.Query("learnerId"))
	if !ok {
		return
	}

	check, err := c.Cooldown.CheckAttempt(ctx.Request.Context(), learnerID, ctx.Param("topicId"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, check)
}

// GetCooldownStatus godoc
// @Summary 查询冷却状态
// @Tags 尝试配额
// @Produce  json
// @Security ApiKeyAuth
// @Param   topicId path string true "主题或小节ID"
// @Param   learnerId query string false "代查的学习者ID（仅 teacher/admin）"
// @Success 200 {object} util.Response{data=model.CooldownStatus} "成功"
// @Router /api/attempts/{topicId}/status [get]
func (c *CooldownController) GetCooldownStatus(ctx *gin.Context) {
	learnerID, ok := middleware.LearnerScope(ctx, ctx.Query("learnerId"))
	if !ok {
		return
	}

	status, err := c.Cooldown.GetCooldownStatus(ctx.Request.Context(), learnerID, ctx.Param("topicId"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// GetCooldownStatuses godoc
// @Summary 批量查询冷却状态
// @Description 路径页一次取整个小节列表的状态；topicIds 逗号分隔
// @Tags 尝试配额
// @Produce  json
// @Security ApiKeyAuth
// @Param   topicIds query string true "逗号分隔的主题或小节ID"
// @Param   learnerId query string false "代查的学习者ID（仅 teacher/admin）"
// @Success 200 {object} util.Response{data=map[string]model.CooldownStatus} "成功"
// @Router /api/attempts/status [get]
func (c *CooldownController) GetCooldownStatuses(ctx *gin.Context) {
	learnerID, ok := middleware.LearnerScope(ctx, ctx.Query("learnerId"))
	if !ok {
		return
	}

	raw := ctx.Query("topicIds")
	if raw == "" {
		util.BadRequest(ctx, "topicIds is required")
		return
	}

	statuses, err := c.Cooldown.GetCooldownStatuses(ctx.Request.Context(), learnerID, strings.Split(raw, ","))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, statuses)
}

// GetAttemptRecord godoc
// @Summary 查询原始账本记录
// @Tags 尝试配额
// @Produce  json
// @Security ApiKeyAuth
// @Param   topicId path string true "主题或小节ID"
// @Param   learnerId query string false "代查的学习者ID（仅 teacher/admin）"
// @Success 200 {object} util.Response{data=model.AttemptRecord} "成功"
// @Failure 404 {object} util.Response "尚无记录"
// @Router /api/attempts/{topicId} [get]
func (c *CooldownController) GetAttemptRecord(ctx *gin.Context) {
	learnerID, ok := middleware.LearnerScope(ctx, ctx.Query("learnerId"))
	if !ok {
		return
	}

	record, err := c.Cooldown.GetRecord(ctx.Request.Context(), learnerID, ctx.Param("topicId"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if record == nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, record)
}

// ResetAttempts godoc
// @Summary 重置尝试账本
// @Description 管理操作：清除 (学习者, 主题) 的账本记录，配额、冷却、掌握标记一并清除
// @Tags 尝试配额
// @Produce  json
// @Security ApiKeyAuth
// @Param   topicId path string true "主题或小节ID"
// @Param   learnerId query string true "学习者ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/admin/attempts/{topicId} [delete]
func (c *CooldownController) ResetAttempts(ctx *gin.Context) {
	learnerID := ctx.Query("learnerId")
	if learnerID == "" {
		util.BadRequest(ctx, "learnerId is required")
		return
	}
	if err := c.Cooldown.ResetAttempts(ctx.Request.Context(), learnerID, ctx.Param("topicId")); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
