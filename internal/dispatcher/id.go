package dispatcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDFunc 生成记录 ID
type IDFunc func(scope string, now time.Time) string

// NewID 格式: {scope}_{unix 毫秒}_{随机后缀}
// 相同内容、相同时刻的两次调用也会得到不同 ID
func NewID(scope string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	if scope == "" {
		return fmt.Sprintf("%d_%s", now.UnixMilli(), suffix)
	}
	return fmt.Sprintf("%s_%d_%s", scope, now.UnixMilli(), suffix)
}
