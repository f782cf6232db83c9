package util

import "time"

// Clock 统一的时钟抽象；冷却/重置等时间策略全部经由它读取当前时间，
// 测试中可注入假时钟推进时间而无需真实等待
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// NewRealClock 返回使用系统时间的时钟
func NewRealClock() Clock { return realClock{} }
