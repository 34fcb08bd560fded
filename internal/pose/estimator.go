package pose

import (
	"context"
	"errors"
	"wisefido-motion/internal/models"
)

var (
	// ErrUnavailable 本次无法得到估计（帧未就绪 / 推理瞬时失败），tick 直接跳过
	ErrUnavailable = errors.New("pose estimate unavailable")
	// ErrModelNotLoaded 姿态模型未加载，调度器无法启动
	ErrModelNotLoaded = errors.New("pose model not loaded")
)

// Estimator 外部姿态估计能力（进程启动时构造一次并注入）
type Estimator interface {
	// Loaded 模型是否已就绪
	Loaded() bool
	// Detect 对一帧做姿态估计；不可用时返回 ErrUnavailable
	Detect(ctx context.Context, frame *models.Frame) (*models.PoseEstimate, error)
}

// FrameSource 视频帧来源
type FrameSource interface {
	// NextFrame 返回当前可读的帧；帧未就绪时返回 ErrUnavailable
	NextFrame(ctx context.Context) (*models.Frame, error)
}
