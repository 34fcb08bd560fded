package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wisefido-motion/internal/dispatcher"
	"wisefido-motion/internal/models"
	"wisefido-motion/internal/store"

	"go.uber.org/zap"
)

// ErrSessionNotFound 会话不存在
var ErrSessionNotFound = errors.New("stream session not found")

// Notifier 会话开始/结束时的报警与系统通知（dispatcher.Dispatcher 实现）
type Notifier interface {
	CreateAlert(ctx context.Context, subjectID string, c models.AlertCandidate) (*models.AlertEvent, error)
	CreateSystemNotification(ctx context.Context, c models.AlertCandidate) (*models.SystemNotification, error)
}

// Manager 会话生命周期管理
// 每个 subject 单写者：创建前先检查活跃会话视图，再以 create-if-absent 写入
type Manager struct {
	store    store.Store
	notifier Notifier
	logger   *zap.Logger
	newID    dispatcher.IDFunc
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager 创建会话管理器
func NewManager(st store.Store, notifier Notifier, logger *zap.Logger) *Manager {
	return &Manager{
		store:    st,
		notifier: notifier,
		logger:   logger,
		newID:    dispatcher.NewID,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lock(subjectID string) func() {
	m.mu.Lock()
	l, ok := m.locks[subjectID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[subjectID] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// StartSession 开始监控会话；已有活跃会话时直接返回该会话
// 会话已写入但开始通知因权限失败时，同时返回会话与错误
func (m *Manager) StartSession(ctx context.Context, subjectID string) (*models.StreamSession, error) {
	unlock := m.lock(subjectID)
	defer unlock()

	existing, err := m.ActiveSession(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active session: %w", err)
	}
	if existing != nil {
		m.logger.Info("Active session already exists, reusing",
			zap.String("subject_id", subjectID),
			zap.String("session_id", existing.ID),
		)
		return existing, nil
	}

	now := m.now()
	session := &models.StreamSession{
		ID:        m.newID(subjectID, now),
		SubjectID: subjectID,
		StartTime: now,
		Active:    true,
	}

	created, err := m.store.PutIfAbsent(ctx, models.CollectionStreamSessions, session.ID, session)
	if err != nil {
		m.logger.Error("Failed to create stream session",
			zap.String("subject_id", subjectID),
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to create stream session: %w", err)
	}
	if !created {
		// 重试命中已写入的记录，以存储中的为准
		var stored models.StreamSession
		if err := m.store.Get(ctx, models.CollectionStreamSessions, session.ID, &stored); err != nil {
			return nil, fmt.Errorf("failed to load stream session: %w", err)
		}
		return &stored, nil
	}

	m.logger.Info("Stream session started",
		zap.String("subject_id", subjectID),
		zap.String("session_id", session.ID),
	)

	if err := m.announce(ctx, subjectID, startedCandidate()); err != nil {
		return session, err
	}
	return session, nil
}

// EndSession 结束会话（写入 endTime、active=false）；已结束的会话直接返回
func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	session, err := m.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}

	unlock := m.lock(session.SubjectID)
	defer unlock()

	// 等锁期间可能已被其他调用结束，以锁内读取的为准
	session, err = m.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Active {
		return nil
	}

	endTime := m.now()
	if err := m.store.Update(ctx, models.CollectionStreamSessions, sessionID, map[string]any{
		"endTime": endTime,
		"active":  false,
	}); err != nil {
		m.logger.Error("Failed to end stream session",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
		}
		return fmt.Errorf("failed to end stream session: %w", err)
	}

	m.logger.Info("Stream session ended",
		zap.String("subject_id", session.SubjectID),
		zap.String("session_id", sessionID),
		zap.Duration("duration", endTime.Sub(session.StartTime)),
	)

	return m.announce(ctx, session.SubjectID, endedCandidate())
}

func (m *Manager) loadSession(ctx context.Context, sessionID string) (*models.StreamSession, error) {
	var session models.StreamSession
	if err := m.store.Get(ctx, models.CollectionStreamSessions, sessionID, &session); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("failed to load stream session: %w", err)
	}
	return &session, nil
}

// ActiveSession 当前活跃会话；多个活跃会话时取 ID 最小者，没有时返回 nil
func (m *Manager) ActiveSession(ctx context.Context, subjectID string) (*models.StreamSession, error) {
	records, err := m.store.List(ctx, activeQuery(subjectID))
	if err != nil {
		return nil, err
	}
	return firstSession(records)
}

// WatchActiveSession 订阅活跃会话视图；只在活跃会话变化时推送（nil 表示没有活跃会话）
func (m *Manager) WatchActiveSession(ctx context.Context, subjectID string) (<-chan *models.StreamSession, error) {
	snapshots, err := m.store.Subscribe(ctx, activeQuery(subjectID))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe active session: %w", err)
	}

	out := make(chan *models.StreamSession, 1)
	go func() {
		defer close(out)

		first := true
		lastID := ""
		for records := range snapshots {
			session, err := firstSession(records)
			if err != nil {
				m.logger.Warn("Failed to decode active session", zap.Error(err))
				continue
			}
			id := ""
			if session != nil {
				id = session.ID
			}
			if !first && id == lastID {
				continue
			}
			first = false
			lastID = id

			select {
			case out <- session:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// announce 发送报警与系统通知；只有权限错误会返回
func (m *Manager) announce(ctx context.Context, subjectID string, c models.AlertCandidate) error {
	var permErr error

	if _, err := m.notifier.CreateAlert(ctx, subjectID, c); err != nil {
		m.logger.Warn("Failed to create session alert",
			zap.String("subject_id", subjectID),
			zap.String("type", c.Type),
			zap.Error(err),
		)
		if store.IsPermissionDenied(err) {
			permErr = err
		}
	}
	if _, err := m.notifier.CreateSystemNotification(ctx, c); err != nil {
		m.logger.Warn("Failed to create session notification",
			zap.String("type", c.Type),
			zap.Error(err),
		)
		if permErr == nil && store.IsPermissionDenied(err) {
			permErr = err
		}
	}
	return permErr
}

func activeQuery(subjectID string) store.Query {
	return store.Query{
		Collection: models.CollectionStreamSessions,
		Where: map[string]any{
			"subjectId": subjectID,
			"active":    true,
		},
	}
}

// firstSession 记录按 ID 升序，取第一个
func firstSession(records []store.Record) (*models.StreamSession, error) {
	if len(records) == 0 {
		return nil, nil
	}
	var s models.StreamSession
	if err := records[0].Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func startedCandidate() models.AlertCandidate {
	return models.AlertCandidate{
		Type:     models.AlertTypeStreamStarted,
		Severity: models.SeverityInfo,
		Title:    "Monitoring Started",
		Message:  "Live motion monitoring has started.",
	}
}

func endedCandidate() models.AlertCandidate {
	return models.AlertCandidate{
		Type:     models.AlertTypeStreamEnded,
		Severity: models.SeverityInfo,
		Title:    "Monitoring Stopped",
		Message:  "Live motion monitoring has stopped.",
	}
}
