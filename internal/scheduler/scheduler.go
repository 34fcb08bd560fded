package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"wisefido-motion/internal/detector"
	"wisefido-motion/internal/models"
	"wisefido-motion/internal/motion"
	"wisefido-motion/internal/pose"

	"go.uber.org/zap"
)

var (
	// ErrMotionTrackingDisabled 运动追踪关闭时不能启动
	ErrMotionTrackingDisabled = errors.New("motion tracking is disabled")
	// ErrAlreadyRunning 调度器已在运行
	ErrAlreadyRunning = errors.New("scheduler already running")
)

const dispatchTimeout = 5 * time.Second

// PoseDetector 姿态检测能力（pose.Source 实现）
type PoseDetector interface {
	Loaded() bool
	Detect(ctx context.Context, frame *models.Frame) (*models.PoseEstimate, error)
}

// AlertSink 报警写入（dispatcher.Dispatcher 实现）
type AlertSink interface {
	CreateAlert(ctx context.Context, subjectID string, c models.AlertCandidate) (*models.AlertEvent, error)
}

// SettingsProvider 每个 tick 读取最新检测配置（config.DetectionSettings 实现）
type SettingsProvider interface {
	Get() models.DetectionConfig
}

// Deps 调度器依赖
type Deps struct {
	Frames      pose.FrameSource
	Detector    PoseDetector
	Calculator  *motion.Calculator
	Machine     *detector.Machine
	Alerts      AlertSink
	Settings    SettingsProvider
	SubjectID   string
	HistorySize int
}

// Scheduler 采样调度器：按配置间隔驱动 帧 → 姿态 → 运动样本 → 状态机 → 报警
//
// 同一时刻最多一个检测在途；Stop 之后到达的检测结果按 generation 丢弃
type Scheduler struct {
	deps    Deps
	history *motion.History
	metrics *Metrics
	logger  *zap.Logger

	inFlight   atomic.Bool
	generation atomic.Uint64

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	prev       *motion.State
	status     models.DetectionStatus
	lastSample *models.MotionSample
}

// New 创建调度器
func New(deps Deps, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		deps:    deps,
		history: motion.NewHistory(deps.HistorySize),
		metrics: &Metrics{},
		logger:  logger,
		status:  models.StatusNormal,
	}
}

// Start Idle → Running；模型未加载或运动追踪关闭时返回错误
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if s.deps.Detector == nil || !s.deps.Detector.Loaded() {
		return pose.ErrModelNotLoaded
	}
	cfg := s.deps.Settings.Get()
	if !cfg.EnableMotionTracking {
		return ErrMotionTrackingDisabled
	}

	gen := s.generation.Add(1)
	s.prev = nil
	s.status = models.StatusNormal
	s.lastSample = nil
	s.history.Reset()
	s.deps.Machine.Reset()
	s.metrics.reset(time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, gen, s.done)

	s.logger.Info("Sampling scheduler started",
		zap.String("subject_id", s.deps.SubjectID),
		zap.Int("sampling_interval_ms", cfg.SamplingIntervalMs),
		zap.Uint64("generation", gen),
	)
	return nil
}

// Stop Running → Idle；返回后不会再触发 tick，也不会再应用任何检测结果
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	gen := s.generation.Add(1)
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.logger.Info("Sampling scheduler stopped",
		zap.String("subject_id", s.deps.SubjectID),
		zap.Uint64("generation", gen),
	)
}

// Running 是否在运行
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	interval := intervalOf(s.deps.Settings.Get())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cfg := s.deps.Settings.Get()
			if next := intervalOf(cfg); next != interval {
				interval = next
				ticker.Reset(interval)
			}
			s.fire(ctx, gen, cfg)
		}
	}
}

// fire 处理一次计时器触发
func (s *Scheduler) fire(ctx context.Context, gen uint64, cfg models.DetectionConfig) {
	s.metrics.update(func(m *Stats) {
		m.TicksFired++
		m.LastTickAt = time.Now()
	})

	if !cfg.EnableMotionTracking {
		s.metrics.update(func(m *Stats) { m.TicksDisabled++ })
		return
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.metrics.update(func(m *Stats) { m.TicksSkippedBusy++ })
		return
	}

	go func() {
		defer s.inFlight.Store(false)
		s.tick(ctx, gen)
	}()
}

// tick 单次 帧 → 姿态 → 样本 → 状态 → 报警；错误只影响本次 tick
func (s *Scheduler) tick(ctx context.Context, gen uint64) {
	frame, err := s.deps.Frames.NextFrame(ctx)
	if err != nil {
		s.metrics.update(func(m *Stats) { m.Unavailable++ })
		return
	}

	started := time.Now()
	estimate, err := s.deps.Detector.Detect(ctx, frame)
	elapsed := time.Since(started)
	if err != nil {
		if s.generation.Load() != gen {
			s.metrics.update(func(m *Stats) { m.LateDiscarded++ })
			return
		}
		s.metrics.update(func(m *Stats) { m.Unavailable++ })
		s.logger.Debug("Pose detection unavailable",
			zap.String("frame_id", frame.ID),
			zap.Error(err),
		)
		return
	}

	candidates, ok := s.apply(gen, estimate, elapsed)
	if !ok || len(candidates) == 0 {
		return
	}
	s.dispatch(ctx, gen, candidates)
}

// apply 在锁内确认 generation 后更新状态；过期结果直接丢弃
func (s *Scheduler) apply(gen uint64, estimate *models.PoseEstimate, elapsed time.Duration) ([]models.AlertCandidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.generation.Load() != gen {
		s.metrics.update(func(m *Stats) { m.LateDiscarded++ })
		s.logger.Debug("Discarding detection result from stopped run",
			zap.String("frame_id", estimate.FrameID),
			zap.Uint64("generation", gen),
		)
		return nil, false
	}

	// 配置在 tick 内重新读取
	cfg := s.deps.Settings.Get()

	sample, ok := s.deps.Calculator.Compute(estimate, s.prev)
	if !ok {
		s.metrics.update(func(m *Stats) { m.SamplesSkipped++ })
		return nil, false
	}

	status, candidates := s.deps.Machine.Evaluate(sample, cfg)
	s.prev = motion.Next(estimate, sample)
	s.status = status
	s.lastSample = &sample
	s.history.Push(sample.NormalizedMotionValue)
	s.metrics.update(func(m *Stats) {
		m.SamplesProcessed++
		m.TotalDetectTime += elapsed
	})

	if status != models.StatusNormal {
		s.logger.Debug("Detection status",
			zap.String("subject_id", s.deps.SubjectID),
			zap.String("status", string(status)),
			zap.Float64("motion", sample.NormalizedMotionValue),
			zap.Float64("vertical_distribution", sample.VerticalDistribution),
		)
	}
	return candidates, true
}

// dispatch 写入报警；失败只记录日志
func (s *Scheduler) dispatch(ctx context.Context, gen uint64, candidates []models.AlertCandidate) {
	// 结果已在停止前应用，写入不随调度器取消
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()

	for _, c := range candidates {
		if _, err := s.deps.Alerts.CreateAlert(dctx, s.deps.SubjectID, c); err != nil {
			s.metrics.update(func(m *Stats) { m.AlertsFailed++ })
			s.logger.Warn("Alert dispatch failed, continuing detection",
				zap.String("subject_id", s.deps.SubjectID),
				zap.String("type", c.Type),
				zap.Uint64("generation", gen),
				zap.Error(err),
			)
			continue
		}
		s.metrics.update(func(m *Stats) { m.AlertsDispatched++ })
	}
}

// View 实时状态视图
type View struct {
	Status        models.DetectionStatus `json:"status"`
	Label         string                 `json:"label"`
	Streaming     bool                   `json:"streaming"`
	Processing    bool                   `json:"processing"`
	ModelLoaded   bool                   `json:"model_loaded"`
	MotionHistory []float64              `json:"motion_history"`
	LastSample    *models.MotionSample   `json:"last_sample,omitempty"`
	Stats         Stats                  `json:"stats"`
}

// Snapshot 当前状态
func (s *Scheduler) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Status:        s.status,
		Label:         s.status.Label(),
		Streaming:     s.running,
		Processing:    s.inFlight.Load(),
		ModelLoaded:   s.deps.Detector != nil && s.deps.Detector.Loaded(),
		MotionHistory: s.history.Values(),
		Stats:         s.metrics.GetSnapshot(),
	}
	if s.lastSample != nil {
		sample := *s.lastSample
		v.LastSample = &sample
	}
	return v
}

// Status 当前检测状态
func (s *Scheduler) Status() models.DetectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Stats 指标快照
func (s *Scheduler) Stats() Stats {
	return s.metrics.GetSnapshot()
}

func intervalOf(cfg models.DetectionConfig) time.Duration {
	if cfg.SamplingIntervalMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(cfg.SamplingIntervalMs) * time.Millisecond
}
