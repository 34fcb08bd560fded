package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wisefido-motion/internal/detector"
	"wisefido-motion/internal/models"
	"wisefido-motion/internal/motion"
	"wisefido-motion/internal/pose"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFrames struct {
	n   atomic.Int64
	err error
}

func (f *fakeFrames) NextFrame(context.Context) (*models.Frame, error) {
	if f.err != nil {
		return nil, f.err
	}
	n := f.n.Add(1)
	return &models.Frame{ID: fmt.Sprintf("frame-%d", n), Width: 640, Height: 480}, nil
}

type fakeDetector struct {
	loaded  bool
	pose    *models.PoseEstimate
	err     error
	release chan struct{} // 非 nil 时阻塞到关闭（忽略 ctx，模拟迟到结果）
	started chan struct{}
	calls   atomic.Int64
}

func (d *fakeDetector) Loaded() bool { return d.loaded }

func (d *fakeDetector) Detect(ctx context.Context, frame *models.Frame) (*models.PoseEstimate, error) {
	d.calls.Add(1)
	if d.started != nil {
		select {
		case d.started <- struct{}{}:
		default:
		}
	}
	if d.release != nil {
		<-d.release
	}
	if d.err != nil {
		return nil, d.err
	}
	p := *d.pose
	p.FrameID = frame.ID
	return &p, nil
}

type fakeSink struct {
	mu         sync.Mutex
	candidates []models.AlertCandidate
	err        error
}

func (s *fakeSink) CreateAlert(_ context.Context, subjectID string, c models.AlertCandidate) (*models.AlertEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, c)
	if s.err != nil {
		return nil, s.err
	}
	return &models.AlertEvent{ID: "alert", SubjectID: subjectID, Type: c.Type}, nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.candidates)
}

type fakeSettings struct {
	mu  sync.Mutex
	cfg models.DetectionConfig
}

func (f *fakeSettings) Get() models.DetectionConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fakeSettings) set(fn func(c *models.DetectionConfig)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.cfg)
}

// lyingPose 关键点纵向分布很小（垂直分布 < 0.3）
func lyingPose() *models.PoseEstimate {
	p := &models.PoseEstimate{FrameWidth: 640, FrameHeight: 480}
	for i, name := range models.KeypointVocabulary {
		p.Keypoints = append(p.Keypoints, models.Keypoint{
			Name:       name,
			Position:   models.Position{X: float64(100 + i*20), Y: 400 + float64(i%3)},
			Confidence: 0.9,
		})
	}
	return p
}

func invisiblePose() *models.PoseEstimate {
	p := lyingPose()
	for i := range p.Keypoints {
		p.Keypoints[i].Confidence = 0.1
	}
	return p
}

type fixture struct {
	frames   *fakeFrames
	detector *fakeDetector
	sink     *fakeSink
	settings *fakeSettings
	sched    *Scheduler
}

func newFixture(t *testing.T, motionValue float64) *fixture {
	f := &fixture{
		frames:   &fakeFrames{},
		detector: &fakeDetector{loaded: true, pose: lyingPose()},
		sink:     &fakeSink{},
		settings: &fakeSettings{cfg: models.DetectionConfig{
			Sensitivity:          50,
			EnableFallDetection:  true,
			EnableMotionTracking: true,
			SamplingIntervalMs:   5,
		}},
	}
	calc := motion.NewCalculator(func(*motion.State, *models.PoseEstimate) float64 { return motionValue })
	f.sched = New(Deps{
		Frames:      f.frames,
		Detector:    f.detector,
		Calculator:  calc,
		Machine:     detector.NewMachine(1),
		Alerts:      f.sink,
		Settings:    f.settings,
		SubjectID:   "subject-1",
		HistorySize: 20,
	}, zap.NewNop())
	t.Cleanup(f.sched.Stop)
	return f
}

func TestStart_ModelNotLoaded(t *testing.T) {
	f := newFixture(t, 0)
	f.detector.loaded = false

	err := f.sched.Start()
	assert.True(t, errors.Is(err, pose.ErrModelNotLoaded))
	assert.False(t, f.sched.Running())
}

func TestStart_MotionTrackingDisabled(t *testing.T) {
	f := newFixture(t, 0)
	f.settings.set(func(c *models.DetectionConfig) { c.EnableMotionTracking = false })

	err := f.sched.Start()
	assert.True(t, errors.Is(err, ErrMotionTrackingDisabled))
	assert.False(t, f.sched.Running())
}

func TestStart_AlreadyRunning(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.sched.Start())
	assert.True(t, errors.Is(f.sched.Start(), ErrAlreadyRunning))

	f.sched.Stop()
	assert.False(t, f.sched.Running())
	// Stop 幂等
	f.sched.Stop()
}

func TestRun_FallDetectedAndDispatched(t *testing.T) {
	f := newFixture(t, 0.8)
	require.NoError(t, f.sched.Start())

	require.Eventually(t, func() bool { return f.sink.count() > 0 }, 2*time.Second, 5*time.Millisecond)
	f.sched.Stop()

	assert.Equal(t, models.StatusAlert, f.sched.Status())
	f.sink.mu.Lock()
	assert.Equal(t, models.AlertTypeFallDetected, f.sink.candidates[0].Type)
	assert.Equal(t, models.SeverityCritical, f.sink.candidates[0].Severity)
	f.sink.mu.Unlock()

	view := f.sched.Snapshot()
	assert.Equal(t, "Potential Fall Detected", view.Label)
	assert.False(t, view.Streaming)
	assert.NotEmpty(t, view.MotionHistory)
	require.NotNil(t, view.LastSample)
	assert.Less(t, view.LastSample.VerticalDistribution, 0.3)
	assert.Greater(t, view.Stats.AlertsDispatched, int64(0))
}

func TestRun_FallDetectionToggledOffFallsThroughToWarning(t *testing.T) {
	f := newFixture(t, 0.8)
	f.settings.set(func(c *models.DetectionConfig) { c.EnableFallDetection = false })
	require.NoError(t, f.sched.Start())

	require.Eventually(t, func() bool {
		return f.sched.Stats().SamplesProcessed >= 3
	}, 2*time.Second, 5*time.Millisecond)
	f.sched.Stop()

	assert.Equal(t, models.StatusWarning, f.sched.Status())
	assert.Equal(t, 0, f.sink.count(), "0.8 does not exceed the motion candidate threshold")
}

func TestRun_DispatchFailureDoesNotStopDetection(t *testing.T) {
	f := newFixture(t, 0.8)
	f.sink.err = errors.New("store offline")
	require.NoError(t, f.sched.Start())

	require.Eventually(t, func() bool {
		return f.sched.Stats().AlertsFailed >= 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, f.sched.Running())
}

func TestRun_SkipTicksNeverChangeStatus(t *testing.T) {
	f := newFixture(t, 0.95)
	f.detector.pose = invisiblePose()
	require.NoError(t, f.sched.Start())

	require.Eventually(t, func() bool {
		return f.sched.Stats().SamplesSkipped >= 5
	}, 2*time.Second, 5*time.Millisecond)
	f.sched.Stop()

	assert.Equal(t, models.StatusNormal, f.sched.Status())
	assert.Equal(t, 0, f.sink.count())
	assert.Empty(t, f.sched.Snapshot().MotionHistory)
}

func TestRun_UnavailableFramesAreSkipped(t *testing.T) {
	f := newFixture(t, 0.95)
	f.frames.err = pose.ErrUnavailable
	require.NoError(t, f.sched.Start())

	require.Eventually(t, func() bool {
		return f.sched.Stats().Unavailable >= 3
	}, 2*time.Second, 5*time.Millisecond)
	f.sched.Stop()

	assert.Equal(t, int64(0), f.detector.calls.Load())
	assert.Equal(t, models.StatusNormal, f.sched.Status())
}

func TestRun_AtMostOneDetectionInFlight(t *testing.T) {
	f := newFixture(t, 0.8)
	f.detector.release = make(chan struct{})
	f.detector.started = make(chan struct{}, 1)
	defer close(f.detector.release)

	require.NoError(t, f.sched.Start())
	<-f.detector.started

	require.Eventually(t, func() bool {
		return f.sched.Stats().TicksSkippedBusy >= 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), f.detector.calls.Load())
	assert.True(t, f.sched.Snapshot().Processing)
}

func TestStop_LateResultIsDiscarded(t *testing.T) {
	f := newFixture(t, 0.8)
	f.detector.release = make(chan struct{})
	f.detector.started = make(chan struct{}, 1)

	require.NoError(t, f.sched.Start())
	<-f.detector.started

	f.sched.Stop()
	ticks := f.sched.Stats().TicksFired

	// 停止后检测结果才到达
	close(f.detector.release)
	require.Eventually(t, func() bool {
		return f.sched.Stats().LateDiscarded == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, models.StatusNormal, f.sched.Status())
	assert.Equal(t, 0, f.sink.count())
	assert.Nil(t, f.sched.Snapshot().LastSample)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, ticks, f.sched.Stats().TicksFired, "no ticks fire after stop")
}

func TestStart_AfterStopBeginsNewRun(t *testing.T) {
	f := newFixture(t, 0.8)
	require.NoError(t, f.sched.Start())
	require.Eventually(t, func() bool { return f.sink.count() > 0 }, 2*time.Second, 5*time.Millisecond)
	f.sched.Stop()

	require.NoError(t, f.sched.Start())
	view := f.sched.Snapshot()
	assert.True(t, view.Streaming)
	assert.Equal(t, models.StatusNormal, view.Status)
}
