package controller

import (
	"elearn_quiz_backend/internal/middleware"
	"elearn_quiz_backend/internal/service"
	"elearn_quiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type PathController struct {
	Adaptation *service.PathAdaptationService
	Currics    *service.CurriculumService
}

func NewPathController(adaptation *service.PathAdaptationService, currics *service.CurriculumService) *PathController {
	return &PathController{Adaptation: adaptation, Currics: currics}
}

// GetPath godoc
// @Summary 查询课程树
// @Tags 路径适配
// @Produce  json
// @Security ApiKeyAuth
// @Param   pathId path string true "路径ID"
// @Success 200 {object} util.Response{data=model.LearningPath} "成功"
// @Failure 404 {object} util.Response "路径不存在"
// @Router /api/paths/{pathId} [get]
func (c *PathController) GetPath(ctx *gin.Context) {
	path, err := c.Currics.GetPath(ctx.Request.Context(), ctx.Param("pathId"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if path == nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, path)
}

// GetGateStatus godoc
// @Summary 查询小节关卡
// @Description 关卡每次读取都基于配额账本与跳级标记重新派生
// @Tags 路径适配
// @Produce  json
// @Security ApiKeyAuth
// @Param   pathId path string true "路径ID"
// @Param   sectionId path string true "小节ID"
// @Param   learnerId query string false "代查的学习者ID（仅 teacher/admin）"
// @Success 200 {object} util.Response{data=model.GateStatus} "成功"
// @Router /api/paths/{pathId}/sections/{sectionId}/gate [get]
func (c *PathController) GetGateStatus(ctx *gin.Context) {
	learnerID, ok := middleware.LearnerScope(ctx, ctx.Query("learnerId"))
	if !ok {
		return
	}

	gate, err := c.Adaptation.GetGateStatus(ctx.Request.Context(), learnerID, ctx.Param("pathId"), ctx.Param("sectionId"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gate)
}

// GetGateStatuses godoc
// @Summary 批量查询整条路径的关卡
// @Tags 路径适配
// @Produce  json
// @Security ApiKeyAuth
// @Param   pathId path string true "路径ID"
// @Param   learnerId query string false "代查的学习者ID（仅 teacher/admin）"
// @Success 200 {object} util.Response{data=[]model.GateStatus} "成功"
// @Failure 404 {object} util.Response "路径不存在"
// @Router /api/paths/{pathId}/gates [get]
func (c *PathController) GetGateStatuses(ctx *gin.Context) {
	learnerID, ok := middleware.LearnerScope(ctx, ctx.Query("learnerId"))
	if !ok {
		return
	}

	gates, err := c.Adaptation.GetGateStatuses(ctx.Request.Context(), learnerID, ctx.Param("pathId"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if gates == nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, gates)
}

// GetRecommendations godoc
// @Summary 查询内容推荐
// @Description mastery 未通过时按低分主题生成，按置信度降序
// @Tags 路径适配
// @Produce  json
// @Security ApiKeyAuth
// @Param   pathId path string true "路径ID"
// @Param   learnerId query string false "代查的学习者ID（仅 teacher/admin）"
// @Success 200 {object} util.Response{data=[]model.Recommendation} "成功"
// @Router /api/paths/{pathId}/recommendations [get]
func (c *PathController) GetRecommendations(ctx *gin.Context) {
	learnerID, ok := middleware.LearnerScope(ctx, ctx.Query("learnerId"))
	if !ok {
		return
	}

	recs, err := c.Adaptation.GetRecommendations(ctx.Request.Context(), learnerID, ctx.Param("pathId"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, recs)
}

// ClearRecommendations godoc
// @Summary 清空内容推荐
// @Description 管理操作
// @Tags 路径适配
// @Produce  json
// @Security ApiKeyAuth
// @Param   pathId path string true "路径ID"
// @Param   learnerId query string true "学习者ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/admin/paths/{pathId}/recommendations [delete]
func (c *PathController) ClearRecommendations(ctx *gin.Context) {
	learnerID := ctx.Query("learnerId")
	if learnerID == "" {
		util.BadRequest(ctx, "learnerId is required")
		return
	}
	if err := c.Adaptation.ClearRecommendations(ctx.Request.Context(), learnerID, ctx.Param("pathId")); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// GetPreAssessment godoc
// @Summary 查询预评估结果
// @Tags 路径适配
// @Produce  json
// @Security ApiKeyAuth
// @Param   pathId path string true "路径ID"
// @Param   learnerId query string false "代查的学习者ID（仅 teacher/admin）"
// @Success 200 {object} util.Response{data=model.PreAssessmentOutcome} "成功"
// @Failure 404 {object} util.Response "尚无预评估记录"
// @Router /api/paths/{pathId}/pre-assessment [get]
func (c *PathController) GetPreAssessment(ctx *gin.Context) {
	learnerID, ok := middleware.LearnerScope(ctx, ctx.Query("learnerId"))
	if !ok {
		return
	}

	outcome, err := c.Adaptation.GetPreAssessment(ctx.Request.Context(), learnerID, ctx.Param("pathId"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if outcome == nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, outcome)
}

// ClearSkipAhead godoc
// @Summary 撤销跳级解锁
// @Description 管理操作：清除整条路径上的跳级标记与预评估记录
// @Tags 路径适配
// @Produce  json
// @Security ApiKeyAuth
// @Param   pathId path string true "路径ID"
// @Param   learnerId query string true "学习者ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/admin/paths/{pathId}/skip-ahead [delete]
func (c *PathController) ClearSkipAhead(ctx *gin.Context) {
	learnerID := ctx.Query("learnerId")
	if learnerID == "" {
		util.BadRequest(ctx, "learnerId is required")
		return
	}
	if err := c.Adaptation.ClearSkipAhead(ctx.Request.Context(), learnerID, ctx.Param("pathId")); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
