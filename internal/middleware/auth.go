package middleware

import (
	"strings"

	"elearn_quiz_backend/internal/model"
	"elearn_quiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// JWTAuth 解析 Authorization: Bearer <token> 并把 Claims 放进上下文
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(parts[1], secret)
		if err != nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		c.Set("user", claims)
		c.Next()
	}
}

// RequireRole 角色门：仅放行指定角色
func RequireRole(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := util.GetUserFromContext(c)
		if claims == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}
		for _, role := range roles {
			if claims.Role == role {
				c.Next()
				return
			}
		}
		util.Forbidden(c)
		c.Abort()
	}
}

// LearnerScope 学习者只能操作自己的数据；teacher/admin 可代查任意 learnerId。
// 返回本次请求生效的 learnerId
func LearnerScope(c *gin.Context, requested string) (string, bool) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return "", false
	}
	if requested == "" || requested == claims.LearnerID {
		return claims.LearnerID, true
	}
	if claims.Role == model.Teacher || claims.Role == model.Admin {
		return requested, true
	}
	util.Forbidden(c)
	return "", false
}
