package controller

import (
	"elearn_quiz_backend/internal/service"
	"elearn_quiz_backend/internal/util"
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"
)

// ContentController 题库与课程树的管理入口（teacher/admin）
type ContentController struct {
	Content *service.ContentService
	Currics *service.CurriculumService
	Pools   *service.PoolService
}

func NewContentController(content *service.ContentService, currics *service.CurriculumService, pools *service.PoolService) *ContentController {
	return &ContentController{Content: content, Currics: currics, Pools: pools}
}

// GetPool godoc
// @Summary 查询主题题库
// @Tags 内容管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   topicId path string true "主题ID"
// @Success 200 {object} util.Response{data=model.QuestionPool} "成功"
// @Failure 404 {object} util.Response "题库不存在"
// @Router /api/pools/{topicId} [get]
func (c *ContentController) GetPool(ctx *gin.Context) {
	pool := c.Pools.GetPool(ctx.Request.Context(), ctx.Param("topicId"))
	if pool == nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, pool)
}

// GetSourceStats godoc
// @Summary 查询层级题源及其统计
// @Description 自顶向下收集到目标小节（含）为止的主题并合并题库；找不到小节时宁多勿少返回全部
// @Tags 内容管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   pathId path string true "路径ID"
// @Param   sectionId path string true "小节ID"
// @Success 200 {object} util.Response{data=model.HierarchicalSource} "成功"
// @Router /api/pools/source/{pathId}/{sectionId} [get]
func (c *ContentController) GetSourceStats(ctx *gin.Context) {
	source := c.Pools.GetHierarchicalSource(ctx.Request.Context(), ctx.Param("pathId"), ctx.Param("sectionId"))
	c.Pools.LoadPools(ctx.Request.Context(), source)
	util.Success(ctx, source)
}

// ImportPool godoc
// @Summary 导入主题题库
// @Description 整体替换该主题的题库并使缓存失效；载荷是 QuestionItem 数组或完整 QuestionPool 对象
// @Tags 内容管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   topicId path string true "主题ID"
// @Param   body body object true "题库载荷"
// @Success 200 {object} util.Response "成功"
// @Failure 400 {object} util.Response "载荷不是合法 JSON"
// @Router /api/admin/pools/{topicId} [put]
func (c *ContentController) ImportPool(ctx *gin.Context) {
	var payload json.RawMessage
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	topicID := ctx.Param("topicId")
	path := fmt.Sprintf("pools/%s.json", topicID)
	if err := c.Content.PutContent(ctx.Request.Context(), path, payload); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	c.Pools.InvalidateCache(topicID)
	util.Success(ctx, nil)
}

// DeletePool godoc
// @Summary 删除主题题库
// @Tags 内容管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   topicId path string true "主题ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/admin/pools/{topicId} [delete]
func (c *ContentController) DeletePool(ctx *gin.Context) {
	topicID := ctx.Param("topicId")
	path := fmt.Sprintf("pools/%s.json", topicID)
	if err := c.Content.RemoveContent(ctx.Request.Context(), path); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	c.Pools.InvalidateCache(topicID)
	util.Success(ctx, nil)
}

// ImportCurriculum godoc
// @Summary 导入课程树
// @Description 整体替换 pathId 对应的课程树
// @Tags 内容管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   pathId path string true "路径ID"
// @Param   body body model.LearningPath true "课程树载荷"
// @Success 200 {object} util.Response "成功"
// @Failure 400 {object} util.Response "载荷不是合法 JSON"
// @Router /api/admin/paths/{pathId} [put]
func (c *ContentController) ImportCurriculum(ctx *gin.Context) {
	var payload json.RawMessage
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := c.Currics.PutPath(ctx.Request.Context(), ctx.Param("pathId"), payload); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// DeleteCurriculum godoc
// @Summary 删除课程树
// @Tags 内容管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   pathId path string true "路径ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/admin/paths/{pathId} [delete]
func (c *ContentController) DeleteCurriculum(ctx *gin.Context) {
	if err := c.Currics.DeletePath(ctx.Request.Context(), ctx.Param("pathId")); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
