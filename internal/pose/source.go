package pose

import (
	"context"
	"errors"
	"fmt"
	"time"
	"wisefido-motion/internal/models"

	"go.uber.org/zap"
)

// Source 姿态来源适配器：包装注入的 Estimator，保证调用有超时、输出格式固定
type Source struct {
	estimator Estimator
	timeout   time.Duration
	logger    *zap.Logger
}

// NewSource 创建姿态来源适配器
func NewSource(estimator Estimator, timeout time.Duration, logger *zap.Logger) *Source {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Source{
		estimator: estimator,
		timeout:   timeout,
		logger:    logger,
	}
}

// Loaded 模型是否已加载
func (s *Source) Loaded() bool {
	return s.estimator != nil && s.estimator.Loaded()
}

// Detect 对一帧执行姿态估计
// 返回的关键点数组长度固定为 17（缺失点置信度为 0）；任何失败都归为 ErrUnavailable
func (s *Source) Detect(ctx context.Context, frame *models.Frame) (*models.PoseEstimate, error) {
	if !s.Loaded() {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, ErrModelNotLoaded)
	}
	if frame == nil {
		return nil, fmt.Errorf("%w: frame not ready", ErrUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		pose *models.PoseEstimate
		err  error
	}
	done := make(chan result, 1)
	go func() {
		p, err := s.estimator.Detect(ctx, frame)
		done <- result{pose: p, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case r := <-done:
		if r.err != nil {
			if !errors.Is(r.err, ErrUnavailable) {
				s.logger.Debug("Pose estimator failed",
					zap.String("frame_id", frame.ID),
					zap.Error(r.err),
				)
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, r.err)
		}
		if r.pose == nil {
			return nil, fmt.Errorf("%w: empty estimate", ErrUnavailable)
		}
		return normalize(r.pose, frame), nil
	}
}

// normalize 按词表顺序输出 17 个关键点，补齐帧尺寸
func normalize(p *models.PoseEstimate, frame *models.Frame) *models.PoseEstimate {
	out := &models.PoseEstimate{
		FrameID:     p.FrameID,
		FrameWidth:  p.FrameWidth,
		FrameHeight: p.FrameHeight,
		DetectedAt:  p.DetectedAt,
		Keypoints:   make([]models.Keypoint, models.KeypointCount),
	}
	if out.FrameID == "" {
		out.FrameID = frame.ID
	}
	if out.FrameWidth <= 0 {
		out.FrameWidth = frame.Width
	}
	if out.FrameHeight <= 0 {
		out.FrameHeight = frame.Height
	}
	if out.DetectedAt.IsZero() {
		out.DetectedAt = time.Now()
	}

	for i, name := range models.KeypointVocabulary {
		kp, ok := p.Keypoint(name)
		if !ok {
			kp = models.Keypoint{Name: name}
		}
		kp.Confidence = clamp01(kp.Confidence)
		out.Keypoints[i] = kp
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
