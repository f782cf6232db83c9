package controller

import (
	"elearn_quiz_backend/internal/middleware"
	"elearn_quiz_backend/internal/model"
	"elearn_quiz_backend/internal/service"
	"elearn_quiz_backend/internal/util"
	"encoding/json"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	Sessions   *service.QuizSessionService
	Aggregator service.SubscaleAggregator
}

func NewQuizController(sessions *service.QuizSessionService, aggregator service.SubscaleAggregator) *QuizController {
	return &QuizController{Sessions: sessions, Aggregator: aggregator}
}

// CreateSessionRequest 创建会话请求
// swagger:model CreateSessionRequest
type CreateSessionRequest struct {
	Type            string   `json:"type" binding:"required,oneof=practice mastery inline pre-assessment"`
	PathID          string   `json:"pathId"`
	SectionID       string   `json:"sectionId"`
	TopicID         string   `json:"topicId"`
	Count           int      `json:"count"`
	ExcludeIDs      []string `json:"excludeIds"`
	PracticedTopics []string `json:"practicedTopics"`
}

// CreateSession godoc
// @Summary 创建测验会话
// @Description 按类型创建会话；mastery 受配额账本约束，被拒时 session 为空、check 给出结构化原因
// @Tags 测验会话
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body CreateSessionRequest true "会话参数"
// @Success 201 {object} util.Response{data=service.CreateSessionOutcome} "创建成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Router /api/quiz/sessions [post]
func (c *QuizController) CreateSession(ctx *gin.Context) {
	var req CreateSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	params := service.CreateSessionParams{
		LearnerID:       claims.LearnerID,
		PathID:          req.PathID,
		SectionID:       req.SectionID,
		TopicID:         req.TopicID,
		Count:           req.Count,
		ExcludeIDs:      req.ExcludeIDs,
		PracticedTopics: req.PracticedTopics,
	}

	var outcome *service.CreateSessionOutcome
	var err error
	switch model.QuizType(req.Type) {
	case model.QuizPractice:
		outcome, err = c.Sessions.CreatePracticeSession(ctx.Request.Context(), params)
	case model.QuizMastery:
		outcome, err = c.Sessions.CreateMasterySession(ctx.Request.Context(), params)
	case model.QuizInline:
		if req.TopicID == "" {
			util.BadRequest(ctx, "topicId is required for inline sessions")
			return
		}
		outcome, err = c.Sessions.CreateInlineSession(ctx.Request.Context(), params)
	case model.QuizPreAssessment:
		outcome, err = c.Sessions.CreatePreAssessmentSession(ctx.Request.Context(), params)
	}
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, outcome)
}

// ownedSession 取会话并校验归属；学习者只能访问自己的会话
func (c *QuizController) ownedSession(ctx *gin.Context) *model.QuizSession {
	sess := c.Sessions.GetSession(ctx.Param("id"))
	if sess == nil {
		util.NotFound(ctx)
		return nil
	}
	if _, ok := middleware.LearnerScope(ctx, sess.LearnerID); !ok {
		return nil
	}
	return sess
}

// GetSession godoc
// @Summary 查询会话
// @Tags 测验会话
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.QuizSession} "成功"
// @Failure 404 {object} util.Response "会话不存在"
// @Router /api/quiz/sessions/{id} [get]
func (c *QuizController) GetSession(ctx *gin.Context) {
	if sess := c.ownedSession(ctx); sess != nil {
		util.Success(ctx, sess)
	}
}

// ListSessions godoc
// @Summary 列出当前学习者的会话
// @Tags 测验会话
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.QuizSession} "成功"
// @Router /api/quiz/sessions [get]
func (c *QuizController) ListSessions(ctx *gin.Context) {
	learnerID, ok := middleware.LearnerScope(ctx, ctx.Query("learnerId"))
	if !ok {
		return
	}
	util.Success(ctx, c.Sessions.ListSessions(learnerID))
}

// transition 状态迁移端点的公共骨架：非法迁移统一 409
func (c *QuizController) transition(ctx *gin.Context, op func(string) *model.QuizSession) {
	sess := c.ownedSession(ctx)
	if sess == nil {
		return
	}
	updated := op(sess.ID)
	if updated == nil {
		util.Conflict(ctx, "transition not allowed from state "+string(sess.State))
		return
	}
	util.Success(ctx, updated)
}

// StartSession godoc
// @Summary 开始会话
// @Description not_started → in_progress；其余状态返回 409
// @Tags 测验会话
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.QuizSession} "成功"
// @Failure 409 {object} util.Response "非法状态迁移"
// @Router /api/quiz/sessions/{id}/start [post]
func (c *QuizController) StartSession(ctx *gin.Context) {
	c.transition(ctx, c.Sessions.Start)
}

// PauseSession godoc
// @Summary 暂停会话
// @Tags 测验会话
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.QuizSession} "成功"
// @Failure 409 {object} util.Response "非法状态迁移"
// @Router /api/quiz/sessions/{id}/pause [post]
func (c *QuizController) PauseSession(ctx *gin.Context) {
	c.transition(ctx, c.Sessions.Pause)
}

// ResumeSession godoc
// @Summary 恢复会话
// @Tags 测验会话
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.QuizSession} "成功"
// @Failure 409 {object} util.Response "非法状态迁移"
// @Router /api/quiz/sessions/{id}/resume [post]
func (c *QuizController) ResumeSession(ctx *gin.Context) {
	c.transition(ctx, c.Sessions.Resume)
}

// AbandonSession godoc
// @Summary 放弃会话
// @Tags 测验会话
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.QuizSession} "成功"
// @Failure 409 {object} util.Response "非法状态迁移"
// @Router /api/quiz/sessions/{id}/abandon [post]
func (c *QuizController) AbandonSession(ctx *gin.Context) {
	c.transition(ctx, c.Sessions.Abandon)
}

// NextQuestion godoc
// @Summary 前进到下一题
// @Tags 测验会话
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.QuizSession} "成功"
// @Failure 409 {object} util.Response "当前不允许前进"
// @Router /api/quiz/sessions/{id}/next [post]
func (c *QuizController) NextQuestion(ctx *gin.Context) {
	c.transition(ctx, c.Sessions.Next)
}

// PreviousQuestion godoc
// @Summary 回看上一题
// @Tags 测验会话
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.QuizSession} "成功"
// @Failure 409 {object} util.Response "会话不允许回看"
// @Router /api/quiz/sessions/{id}/previous [post]
func (c *QuizController) PreviousQuestion(ctx *gin.Context) {
	c.transition(ctx, c.Sessions.Previous)
}

// SubmitAnswerRequest 作答请求；判分由前端/判分服务完成。
// score 缺省时引擎按对错取 1/0，timeSpentMs 缺省时引擎按时钟推算
// swagger:model SubmitAnswerRequest
type SubmitAnswerRequest struct {
	QuestionID  string          `json:"questionId" binding:"required"`
	Response    json.RawMessage `json:"response"`
	Correct     bool            `json:"correct"`
	Score       *float64        `json:"score"`
	TimeSpentMs int64           `json:"timeSpentMs"`
}

// SubmitAnswer godoc
// @Summary 提交作答
// @Description 记录一次作答；重复提交覆盖旧记录。inline 会话同步推进连对追踪，连对达成或全部答完会自动结算
// @Tags 测验会话
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Param   body body SubmitAnswerRequest true "作答内容"
// @Success 200 {object} util.Response{data=model.QuizSession} "成功"
// @Failure 409 {object} util.Response "会话不在进行中或题目不属于该会话"
// @Router /api/quiz/sessions/{id}/answers [post]
func (c *QuizController) SubmitAnswer(ctx *gin.Context) {
	var req SubmitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sess := c.ownedSession(ctx)
	if sess == nil {
		return
	}

	updated, err := c.Sessions.SubmitAnswer(ctx.Request.Context(), service.SubmitAnswerParams{
		SessionID:   sess.ID,
		QuestionID:  req.QuestionID,
		Response:    req.Response,
		Correct:     req.Correct,
		Score:       req.Score,
		TimeSpentMs: req.TimeSpentMs,
	})
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if updated == nil {
		util.Conflict(ctx, "session not in progress or question not in session")
		return
	}

	util.Success(ctx, updated)
}

// UseHint godoc
// @Summary 使用提示
// @Tags 测验会话
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Param   questionId query string true "题目ID"
// @Success 200 {object} util.Response{data=[]string} "提示文本"
// @Failure 404 {object} util.Response "会话或题目不存在"
// @Router /api/quiz/sessions/{id}/hint [get]
func (c *QuizController) UseHint(ctx *gin.Context) {
	sess := c.ownedSession(ctx)
	if sess == nil {
		return
	}
	hints := c.Sessions.UseHint(sess.ID, ctx.Query("questionId"))
	if hints == nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, hints)
}

// CompleteSession godoc
// @Summary 结算会话
// @Description in_progress → completed，随即按通过线落到 passed / failed
// @Tags 测验会话
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.QuizResult} "成功"
// @Failure 409 {object} util.Response "非法状态迁移"
// @Router /api/quiz/sessions/{id}/complete [post]
func (c *QuizController) CompleteSession(ctx *gin.Context) {
	sess := c.ownedSession(ctx)
	if sess == nil {
		return
	}
	result, err := c.Sessions.Complete(ctx.Request.Context(), sess.ID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if result == nil {
		util.Conflict(ctx, "session is not in progress")
		return
	}
	util.Success(ctx, result)
}

// ForceCompleteSession godoc
// @Summary 强制结算会话
// @Description 管理操作：任意非终态会话按当前答题记录强制结算；reason=timeout 时会先标记超时
// @Tags 测验会话
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Param   reason query string false "结算原因，如 timeout"
// @Success 200 {object} util.Response{data=model.QuizResult} "成功"
// @Failure 409 {object} util.Response "会话已处于终态"
// @Router /api/quiz/sessions/{id}/force-complete [post]
func (c *QuizController) ForceCompleteSession(ctx *gin.Context) {
	result, err := c.Sessions.ForceComplete(ctx.Request.Context(), ctx.Param("id"), ctx.Query("reason"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if result == nil {
		util.Conflict(ctx, "session is terminal or does not exist")
		return
	}
	util.Success(ctx, result)
}

// GetResult godoc
// @Summary 查询会话结果
// @Tags 测验会话
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.QuizResult} "成功"
// @Failure 404 {object} util.Response "结果不存在"
// @Router /api/quiz/sessions/{id}/result [get]
func (c *QuizController) GetResult(ctx *gin.Context) {
	sess := c.ownedSession(ctx)
	if sess == nil {
		return
	}
	result := c.Sessions.GetResult(sess.ID)
	if result == nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, result)
}

// GetSubscales godoc
// @Summary 查询 discovery 维度聚合
// @Description 对会话内 discovery 题目的作答按选项权重聚合，返回 主题 → 维度 → 累计权重
// @Tags 测验会话
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=object} "成功"
// @Router /api/quiz/sessions/{id}/subscales [get]
func (c *QuizController) GetSubscales(ctx *gin.Context) {
	sess := c.ownedSession(ctx)
	if sess == nil {
		return
	}
	util.Success(ctx, c.Aggregator.Aggregate(sess))
}
