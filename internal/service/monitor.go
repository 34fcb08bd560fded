package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"wisefido-motion/internal/models"
	"wisefido-motion/internal/scheduler"
	"wisefido-motion/internal/session"

	"go.uber.org/zap"
)

// Sampler 调度器控制（scheduler.Scheduler 实现）
type Sampler interface {
	Start() error
	Stop()
	Running() bool
	Snapshot() scheduler.View
}

// Sessions 会话管理（session.Manager 实现）
type Sessions interface {
	StartSession(ctx context.Context, subjectID string) (*models.StreamSession, error)
	EndSession(ctx context.Context, sessionID string) error
	ActiveSession(ctx context.Context, subjectID string) (*models.StreamSession, error)
}

// MonitorService 协调调度器与会话：开始监控 = 启动调度 + 开会话；停止监控 = 先停调度 + 结束会话
type MonitorService struct {
	sampler   Sampler
	sessions  Sessions
	subjectID string
	logger    *zap.Logger

	mu        sync.Mutex
	sessionID string
}

// NewMonitorService 创建监控服务
func NewMonitorService(sampler Sampler, sessions Sessions, subjectID string, logger *zap.Logger) *MonitorService {
	return &MonitorService{
		sampler:   sampler,
		sessions:  sessions,
		subjectID: subjectID,
		logger:    logger,
	}
}

// StartMonitoring 启动调度器后创建会话；会话创建失败时回滚调度器
func (s *MonitorService) StartMonitoring(ctx context.Context) (*models.StreamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	startedHere := true
	if err := s.sampler.Start(); err != nil {
		startedHere = false
		if !errors.Is(err, scheduler.ErrAlreadyRunning) {
			return nil, fmt.Errorf("failed to start scheduler: %w", err)
		}
		// 已在监控：返回当前会话
		if active, aerr := s.sessions.ActiveSession(ctx, s.subjectID); aerr == nil && active != nil {
			s.sessionID = active.ID
			return active, nil
		}
	}

	sess, err := s.sessions.StartSession(ctx, s.subjectID)
	if err != nil {
		// 只回滚本次启动的调度器
		if startedHere {
			s.sampler.Stop()
		}
		if sess != nil {
			// 会话已写入但通知被拒绝，尽力关闭
			if endErr := s.sessions.EndSession(ctx, sess.ID); endErr != nil {
				s.logger.Warn("Failed to roll back stream session",
					zap.String("session_id", sess.ID),
					zap.Error(endErr),
				)
			}
		}
		s.logger.Error("Failed to start monitoring",
			zap.String("subject_id", s.subjectID),
			zap.Error(err),
		)
		return nil, err
	}

	s.sessionID = sess.ID
	s.logger.Info("Monitoring started",
		zap.String("subject_id", s.subjectID),
		zap.String("session_id", sess.ID),
	)
	return sess, nil
}

// StopMonitoring 先停止调度器（之后不再有 tick），再结束会话
func (s *MonitorService) StopMonitoring(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sampler.Stop()

	sessionID := s.sessionID
	if sessionID == "" {
		active, err := s.sessions.ActiveSession(ctx, s.subjectID)
		if err != nil {
			return fmt.Errorf("failed to look up active session: %w", err)
		}
		if active == nil {
			return nil
		}
		sessionID = active.ID
	}

	if err := s.sessions.EndSession(ctx, sessionID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			s.sessionID = ""
			return nil
		}
		return err
	}
	s.sessionID = ""

	s.logger.Info("Monitoring stopped",
		zap.String("subject_id", s.subjectID),
		zap.String("session_id", sessionID),
	)
	return nil
}

// Shutdown 进程退出时尽力关闭会话（异常终止）
func (s *MonitorService) Shutdown(ctx context.Context) {
	if err := s.StopMonitoring(ctx); err != nil {
		s.logger.Warn("Failed to close session on shutdown", zap.Error(err))
	}
}

// StatusView 状态输出
type StatusView struct {
	scheduler.View
	SubjectID string `json:"subject_id"`
	SessionID string `json:"session_id,omitempty"`
}

// Status 当前检测状态与会话
func (s *MonitorService) Status() StatusView {
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()

	return StatusView{
		View:      s.sampler.Snapshot(),
		SubjectID: s.subjectID,
		SessionID: sessionID,
	}
}

// ActiveSession 当前活跃会话
func (s *MonitorService) ActiveSession(ctx context.Context) (*models.StreamSession, error) {
	return s.sessions.ActiveSession(ctx, s.subjectID)
}
