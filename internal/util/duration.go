package util

import (
	"fmt"
	"time"
)

// FormatRemaining 把剩余时长格式化为 "2h 15m" 这样的展示文本；
// 不足一分钟向上取整为 1m，小于等于 0 统一显示 "0m"
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0m"
	}

	minutes := int((d + time.Minute - 1) / time.Minute)
	hours := minutes / 60
	minutes = minutes % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
