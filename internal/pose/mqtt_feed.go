package pose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"wisefido-motion/internal/models"

	mqttcommon "wisefido-motion/common/mqtt"

	"go.uber.org/zap"
)

// Subscriber MQTT 订阅能力（common/mqtt.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// PoseMessage 推理 worker 发布的关键点消息
// 主题格式: pose/{subject_id}/keypoints
type PoseMessage struct {
	SubjectID   string            `json:"subject_id"`
	FrameID     string            `json:"frame_id"`
	FrameWidth  int               `json:"frame_width"`
	FrameHeight int               `json:"frame_height"`
	Timestamp   int64             `json:"timestamp"` // Unix 毫秒
	Keypoints   []models.Keypoint `json:"keypoints"`
}

// MQTTFeed 基于 MQTT 的姿态估计器：外部推理 worker 发布关键点，本地缓存每个 subject 的最新结果
// 同时实现 Estimator 与 FrameSource
type MQTTFeed struct {
	subscriber  Subscriber
	topic       string
	subjectID   string
	maxAge      time.Duration
	frameWidth  int
	frameHeight int
	logger      *zap.Logger

	subscribed atomic.Bool

	mu       sync.Mutex
	latest   *models.PoseEstimate
	consumed string // 最近一次被 Detect 取走的 frame_id
	now      func() time.Time
}

// NewMQTTFeed 创建 MQTT 姿态来源
func NewMQTTFeed(subscriber Subscriber, topic, subjectID string, maxAge time.Duration, frameWidth, frameHeight int, logger *zap.Logger) *MQTTFeed {
	return &MQTTFeed{
		subscriber:  subscriber,
		topic:       topic,
		subjectID:   subjectID,
		maxAge:      maxAge,
		frameWidth:  frameWidth,
		frameHeight: frameHeight,
		logger:      logger,
		now:         time.Now,
	}
}

// Start 订阅关键点主题
func (f *MQTTFeed) Start(qos byte) error {
	if err := f.subscriber.Subscribe(f.topic, qos, f.handleMessage); err != nil {
		return fmt.Errorf("%w: %v", ErrModelNotLoaded, err)
	}
	f.subscribed.Store(true)

	f.logger.Info("Pose feed subscribed",
		zap.String("topic", f.topic),
		zap.String("subject_id", f.subjectID),
	)
	return nil
}

// Stop 取消订阅
func (f *MQTTFeed) Stop() {
	if !f.subscribed.Swap(false) {
		return
	}
	if err := f.subscriber.Unsubscribe(f.topic); err != nil {
		f.logger.Warn("Failed to unsubscribe pose feed", zap.Error(err))
	}
}

// Loaded 订阅成功即视为模型就绪
func (f *MQTTFeed) Loaded() bool {
	return f.subscribed.Load()
}

// handleMessage 处理推理 worker 的关键点消息
func (f *MQTTFeed) handleMessage(topic string, payload []byte) error {
	var msg PoseMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal pose message: %w", err)
	}

	subjectID := msg.SubjectID
	if subjectID == "" {
		// 从主题中提取 subject_id
		parts := strings.Split(topic, "/")
		if len(parts) >= 3 {
			subjectID = parts[1]
		}
	}
	if f.subjectID != "" && subjectID != f.subjectID {
		return nil
	}

	estimate := &models.PoseEstimate{
		FrameID:     msg.FrameID,
		FrameWidth:  msg.FrameWidth,
		FrameHeight: msg.FrameHeight,
		Keypoints:   msg.Keypoints,
		DetectedAt:  f.now(),
	}
	if msg.Timestamp > 0 {
		estimate.DetectedAt = time.UnixMilli(msg.Timestamp)
	}
	if estimate.FrameWidth <= 0 {
		estimate.FrameWidth = f.frameWidth
	}
	if estimate.FrameHeight <= 0 {
		estimate.FrameHeight = f.frameHeight
	}
	if estimate.FrameID == "" {
		estimate.FrameID = fmt.Sprintf("%s-%d", subjectID, estimate.DetectedAt.UnixMilli())
	}

	f.mu.Lock()
	f.latest = estimate
	f.mu.Unlock()
	return nil
}

// NextFrame 返回最新估计对应的帧句柄
func (f *MQTTFeed) NextFrame(_ context.Context) (*models.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.latest == nil || f.latest.FrameID == f.consumed {
		return nil, fmt.Errorf("%w: no new frame", ErrUnavailable)
	}
	if f.maxAge > 0 && f.now().Sub(f.latest.DetectedAt) > f.maxAge {
		return nil, fmt.Errorf("%w: latest frame is stale", ErrUnavailable)
	}
	return &models.Frame{
		ID:         f.latest.FrameID,
		SubjectID:  f.subjectID,
		Width:      f.latest.FrameWidth,
		Height:     f.latest.FrameHeight,
		CapturedAt: f.latest.DetectedAt,
	}, nil
}

// Detect 返回该帧的关键点估计（每帧只返回一次）
func (f *MQTTFeed) Detect(ctx context.Context, frame *models.Frame) (*models.PoseEstimate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.latest == nil || f.latest.FrameID != frame.ID {
		return nil, fmt.Errorf("%w: frame %s superseded", ErrUnavailable, frame.ID)
	}
	f.consumed = frame.ID

	p := *f.latest
	p.Keypoints = append([]models.Keypoint(nil), f.latest.Keypoints...)
	return &p, nil
}
