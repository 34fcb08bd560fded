package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wisefido-motion/internal/models"
	"wisefido-motion/internal/store"

	"go.uber.org/zap"
)

// DefaultRecentLimit 最近报警默认条数
const DefaultRecentLimit = 20

// Dispatcher 报警分发器：为候选生成唯一 ID 并以 create-if-absent 写入存储
type Dispatcher struct {
	store      store.Store
	observerID string
	publishers []Publisher
	logger     *zap.Logger
	newID      IDFunc
	now        func() time.Time
}

// NewDispatcher 创建分发器；observerID 为本进程的观察者身份
func NewDispatcher(st store.Store, observerID string, logger *zap.Logger, publishers ...Publisher) *Dispatcher {
	return &Dispatcher{
		store:      st,
		observerID: observerID,
		publishers: publishers,
		logger:     logger,
		newID:      NewID,
		now:        time.Now,
	}
}

// ObserverID 本进程观察者身份
func (d *Dispatcher) ObserverID() string {
	return d.observerID
}

// CreateAlert 持久化一条个人报警
// 写入失败会记录日志并返回错误，检测流水线忽略该错误继续运行
func (d *Dispatcher) CreateAlert(ctx context.Context, subjectID string, c models.AlertCandidate) (*models.AlertEvent, error) {
	now := d.now()
	alert := &models.AlertEvent{
		ID:        d.newID(subjectID, now),
		SubjectID: subjectID,
		Type:      c.Type,
		Severity:  c.Severity,
		Title:     c.Title,
		Message:   c.Message,
		Timestamp: now,
		Read:      false,
	}

	created, err := d.store.PutIfAbsent(ctx, models.CollectionAlerts, alert.ID, alert)
	if err != nil {
		d.logger.Error("Failed to create alert",
			zap.String("subject_id", subjectID),
			zap.String("alert_id", alert.ID),
			zap.String("type", c.Type),
			zap.Error(err),
		)
		return alert, fmt.Errorf("failed to create alert: %w", err)
	}
	if !created {
		// 同 ID 已存在：是本次写入的重试结果，不覆盖
		d.logger.Debug("Alert already exists",
			zap.String("alert_id", alert.ID),
		)
		return alert, nil
	}

	d.logger.Info("Alert created",
		zap.String("subject_id", subjectID),
		zap.String("alert_id", alert.ID),
		zap.String("type", alert.Type),
		zap.String("severity", string(alert.Severity)),
	)

	for _, p := range d.publishers {
		if err := p.PublishAlert(ctx, alert); err != nil {
			d.logger.Warn("Failed to publish alert",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}
	}
	return alert, nil
}

// CreateSystemNotification 创建全局广播通知，创建者自身视为已处理
func (d *Dispatcher) CreateSystemNotification(ctx context.Context, c models.AlertCandidate) (*models.SystemNotification, error) {
	now := d.now()
	n := &models.SystemNotification{
		ID:          d.newID("system", now),
		Type:        c.Type,
		Severity:    c.Severity,
		Title:       c.Title,
		Message:     c.Message,
		Timestamp:   now,
		CreatedBy:   d.observerID,
		ProcessedBy: []string{d.observerID},
	}

	if _, err := d.store.PutIfAbsent(ctx, models.CollectionSystemNotifications, n.ID, n); err != nil {
		d.logger.Error("Failed to create system notification",
			zap.String("notification_id", n.ID),
			zap.String("type", c.Type),
			zap.Error(err),
		)
		return n, fmt.Errorf("failed to create system notification: %w", err)
	}

	for _, p := range d.publishers {
		if err := p.PublishNotification(ctx, n); err != nil {
			d.logger.Warn("Failed to publish system notification",
				zap.String("notification_id", n.ID),
				zap.Error(err),
			)
		}
	}
	return n, nil
}

// MarkRead 标记已读；报警不存在时只记录日志
func (d *Dispatcher) MarkRead(ctx context.Context, alertID string) error {
	err := d.store.Update(ctx, models.CollectionAlerts, alertID, map[string]any{"read": true})
	if errors.Is(err, store.ErrNotFound) {
		d.logger.Warn("Alert to mark as read not found",
			zap.String("alert_id", alertID),
		)
		return nil
	}
	if err != nil {
		d.logger.Error("Failed to mark alert as read",
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to mark alert %s as read: %w", alertID, err)
	}
	return nil
}

// TestNotification 创建测试报警，用于验证报警链路
func (d *Dispatcher) TestNotification(ctx context.Context, subjectID string) (*models.AlertEvent, error) {
	return d.CreateAlert(ctx, subjectID, models.AlertCandidate{
		Type:     models.AlertTypeTest,
		Severity: models.SeverityInfo,
		Title:    "Test Notification",
		Message:  "This is a test notification to verify that alerts are working correctly.",
	})
}

// RecentAlerts 最近的个人报警（新到旧）
func (d *Dispatcher) RecentAlerts(ctx context.Context, subjectID string, limit int) ([]models.AlertEvent, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return d.listAlerts(ctx, subjectID, limit)
}

func (d *Dispatcher) listAlerts(ctx context.Context, subjectID string, limit int) ([]models.AlertEvent, error) {
	records, err := d.store.List(ctx, AlertsQuery(subjectID, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return DecodeAlerts(records)
}

// Notifications 最近的系统通知（新到旧）
func (d *Dispatcher) Notifications(ctx context.Context, limit int) ([]models.SystemNotification, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	records, err := d.store.List(ctx, NotificationsQuery(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return DecodeNotifications(records)
}

// Summary 报警概要
type Summary struct {
	Total          int `json:"total"`
	Unread         int `json:"unread"`
	Last24hWarning int `json:"last_24h_warning"`
	Last24hCritical int `json:"last_24h_critical"`
}

// Summary 统计未读数与最近 24 小时内的 warning/critical 报警数
func (d *Dispatcher) Summary(ctx context.Context, subjectID string) (*Summary, error) {
	alerts, err := d.listAlerts(ctx, subjectID, 0)
	if err != nil {
		return nil, err
	}

	since := d.now().Add(-24 * time.Hour)
	s := &Summary{Total: len(alerts)}
	for _, a := range alerts {
		if !a.Read {
			s.Unread++
		}
		if a.Timestamp.Before(since) {
			continue
		}
		switch a.Severity {
		case models.SeverityWarning:
			s.Last24hWarning++
		case models.SeverityCritical:
			s.Last24hCritical++
		}
	}
	return s, nil
}

// AlertsQuery 某个 subject 的报警（新到旧）
func AlertsQuery(subjectID string, limit int) store.Query {
	return store.Query{
		Collection: models.CollectionAlerts,
		Where:      map[string]any{"subjectId": subjectID},
		OrderBy:    "timestamp",
		Desc:       true,
		Limit:      limit,
	}
}

// NotificationsQuery 系统通知（新到旧）
func NotificationsQuery(limit int) store.Query {
	return store.Query{
		Collection: models.CollectionSystemNotifications,
		OrderBy:    "timestamp",
		Desc:       true,
		Limit:      limit,
	}
}

// DecodeAlerts 反序列化报警记录
func DecodeAlerts(records []store.Record) ([]models.AlertEvent, error) {
	alerts := make([]models.AlertEvent, 0, len(records))
	for _, r := range records {
		var a models.AlertEvent
		if err := r.Decode(&a); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// DecodeNotifications 反序列化系统通知记录
func DecodeNotifications(records []store.Record) ([]models.SystemNotification, error) {
	out := make([]models.SystemNotification, 0, len(records))
	for _, r := range records {
		var n models.SystemNotification
		if err := r.Decode(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
