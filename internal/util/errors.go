package util

import "errors"

var (
	ErrUserNotFound      = errors.New("用户不存在")
	ErrEmailRegistered   = errors.New("该邮箱已被注册")
	ErrInvalidPassword   = errors.New("密码错误")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrSessionNotFound   = errors.New("session not found")
	ErrPathNotFound      = errors.New("learning path not found")
	ErrAttemptNotAllowed = errors.New("mastery attempt not allowed")
	ErrStreakNotStarted  = errors.New("streak tracking not started")
)
