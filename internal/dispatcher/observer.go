package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"wisefido-motion/internal/models"
	"wisefido-motion/internal/store"

	"go.uber.org/zap"
)

// Observer 订阅系统通知，把未处理过的通知转为本观察者的个人报警
//
// processedBy 的更新基于服务端最新副本做读改写；多个观察者并发时最后写入者生效，
// 每个观察者的报警由自己生成的 ID 保证幂等
type Observer struct {
	dispatcher *Dispatcher
	store      store.Store
	observerID string
	logger     *zap.Logger
}

// NewObserver 创建观察者
func NewObserver(d *Dispatcher, st store.Store, logger *zap.Logger) *Observer {
	return &Observer{
		dispatcher: d,
		store:      st,
		observerID: d.ObserverID(),
		logger:     logger,
	}
}

// Run 订阅系统通知直到 ctx 结束
func (o *Observer) Run(ctx context.Context) error {
	snapshots, err := o.store.Subscribe(ctx, NotificationsQuery(0))
	if err != nil {
		return fmt.Errorf("failed to subscribe system notifications: %w", err)
	}

	o.logger.Info("System notification observer started",
		zap.String("observer_id", o.observerID),
	)

	for records := range snapshots {
		notifications, err := DecodeNotifications(records)
		if err != nil {
			o.logger.Warn("Failed to decode system notifications", zap.Error(err))
			continue
		}
		for i := range notifications {
			if notifications[i].IsProcessedBy(o.observerID) {
				continue
			}
			if err := o.Process(ctx, notifications[i].ID); err != nil {
				o.logger.Warn("Failed to process system notification",
					zap.String("notification_id", notifications[i].ID),
					zap.Error(err),
				)
			}
		}
	}
	return ctx.Err()
}

// Process 处理一条系统通知（以服务端副本为准）
func (o *Observer) Process(ctx context.Context, notificationID string) error {
	var current models.SystemNotification
	if err := o.store.Get(ctx, models.CollectionSystemNotifications, notificationID, &current); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load system notification: %w", err)
	}
	if current.IsProcessedBy(o.observerID) {
		return nil
	}

	if _, err := o.dispatcher.CreateAlert(ctx, o.observerID, current.Candidate()); err != nil {
		return err
	}

	processedBy := append(current.ProcessedBy, o.observerID)
	if err := o.store.Update(ctx, models.CollectionSystemNotifications, notificationID, map[string]any{
		"processedBy": processedBy,
	}); err != nil {
		return fmt.Errorf("failed to update processedBy: %w", err)
	}

	o.logger.Debug("System notification converted to personal alert",
		zap.String("notification_id", notificationID),
		zap.String("observer_id", o.observerID),
	)
	return nil
}
