package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"wisefido-motion/internal/dispatcher"
	"wisefido-motion/internal/models"
	"wisefido-motion/internal/pose"
	"wisefido-motion/internal/scheduler"
	"wisefido-motion/internal/service"
	"wisefido-motion/internal/store"

	"go.uber.org/zap"
)

// Settings 运行时检测配置（config.DetectionSettings 实现）
type Settings interface {
	Get() models.DetectionConfig
	Update(next models.DetectionConfig) (models.DetectionConfig, error)
}

// Monitor 监控控制（service.MonitorService 实现）
type Monitor interface {
	StartMonitoring(ctx context.Context) (*models.StreamSession, error)
	StopMonitoring(ctx context.Context) error
	Status() service.StatusView
	ActiveSession(ctx context.Context) (*models.StreamSession, error)
}

// Alerts 报警读写（dispatcher.Dispatcher 实现）
type Alerts interface {
	RecentAlerts(ctx context.Context, subjectID string, limit int) ([]models.AlertEvent, error)
	Notifications(ctx context.Context, limit int) ([]models.SystemNotification, error)
	Summary(ctx context.Context, subjectID string) (*dispatcher.Summary, error)
	MarkRead(ctx context.Context, alertID string) error
	TestNotification(ctx context.Context, subjectID string) (*models.AlertEvent, error)
}

// 导出上限
const exportLimit = 10000

// MotionHandler 运动检测运营接口
type MotionHandler struct {
	settings  Settings
	monitor   Monitor
	alerts    Alerts
	subjectID string
	logger    *zap.Logger
}

func NewMotionHandler(settings Settings, monitor Monitor, alerts Alerts, subjectID string, logger *zap.Logger) *MotionHandler {
	return &MotionHandler{
		settings:  settings,
		monitor:   monitor,
		alerts:    alerts,
		subjectID: subjectID,
		logger:    logger,
	}
}

// GetConfig 当前检测配置
func (h *MotionHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.settings.Get()))
}

// UpdateConfig 修改检测配置；未提供的字段保持原值
func (h *MotionHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	next := h.settings.Get()
	if err := readBodyJSON(r, maxBodyBytes, &next); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	cfg, err := h.settings.Update(next)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	h.logger.Info("Detection config updated",
		zap.Float64("sensitivity", cfg.Sensitivity),
		zap.Bool("enable_fall_detection", cfg.EnableFallDetection),
		zap.Bool("enable_motion_tracking", cfg.EnableMotionTracking),
		zap.Int("sampling_interval_ms", cfg.SamplingIntervalMs),
	)
	writeJSON(w, http.StatusOK, Ok(cfg))
}

// GetStatus 实时检测状态
func (h *MotionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.monitor.Status()))
}

// StartMonitoring 开始监控
func (h *MotionHandler) StartMonitoring(w http.ResponseWriter, r *http.Request) {
	sess, err := h.monitor.StartMonitoring(r.Context())
	if err != nil {
		h.logger.Error("StartMonitoring failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(describeError("failed to start monitoring", err)))
		return
	}
	writeJSON(w, http.StatusOK, Ok(sess))
}

// StopMonitoring 停止监控
func (h *MotionHandler) StopMonitoring(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.StopMonitoring(r.Context()); err != nil {
		h.logger.Error("StopMonitoring failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(describeError("failed to stop monitoring", err)))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}

// GetActiveSession 当前活跃会话（无则 result 为 null）
func (h *MotionHandler) GetActiveSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.monitor.ActiveSession(r.Context())
	if err != nil {
		h.logger.Error("ActiveSession failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(describeError("failed to get active session", err)))
		return
	}
	writeJSON(w, http.StatusOK, Ok(sess))
}

// ListAlerts 最近的个人报警
func (h *MotionHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, dispatcher.DefaultRecentLimit)
	alerts, err := h.alerts.RecentAlerts(r.Context(), h.subjectID, limit)
	if err != nil {
		h.logger.Error("RecentAlerts failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(describeError("failed to list alerts", err)))
		return
	}
	writeJSON(w, http.StatusOK, Ok(NewPage(alerts)))
}

// GetSummary 报警概要
func (h *MotionHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.alerts.Summary(r.Context(), h.subjectID)
	if err != nil {
		h.logger.Error("Summary failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(describeError("failed to summarize alerts", err)))
		return
	}
	writeJSON(w, http.StatusOK, Ok(summary))
}

// MarkRead 标记已读
func (h *MotionHandler) MarkRead(w http.ResponseWriter, r *http.Request, alertID string) {
	if err := h.alerts.MarkRead(r.Context(), alertID); err != nil {
		writeJSON(w, http.StatusOK, Fail(describeError("failed to mark alert as read", err)))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}

// SendTestAlert 发送测试报警
func (h *MotionHandler) SendTestAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.TestNotification(r.Context(), h.subjectID)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(describeError("failed to send test alert", err)))
		return
	}
	writeJSON(w, http.StatusOK, Ok(alert))
}

// ExportAlerts 导出报警记录（xlsx）
func (h *MotionHandler) ExportAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.RecentAlerts(r.Context(), h.subjectID, exportLimit)
	if err != nil {
		h.logger.Error("RecentAlerts failed for export", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(describeError("failed to list alerts", err)))
		return
	}

	excelData, err := GenerateAlertExport(alerts)
	if err != nil {
		h.logger.Error("GenerateAlertExport failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("failed to generate export: %v", err)))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=motion-alerts-export.xlsx")
	w.WriteHeader(http.StatusOK)
	w.Write(excelData)
}

// ListNotifications 系统通知
func (h *MotionHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, dispatcher.DefaultRecentLimit)
	items, err := h.alerts.Notifications(r.Context(), limit)
	if err != nil {
		h.logger.Error("Notifications failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(describeError("failed to list notifications", err)))
		return
	}
	writeJSON(w, http.StatusOK, Ok(NewPage(items)))
}

// describeError 把已知错误转成运营人员可读的消息
func describeError(action string, err error) string {
	switch {
	case errors.Is(err, store.ErrPermissionDenied):
		return "permission denied: " + action
	case errors.Is(err, pose.ErrModelNotLoaded):
		return action + ": pose model not loaded"
	case errors.Is(err, scheduler.ErrMotionTrackingDisabled):
		return action + ": motion tracking is disabled"
	default:
		return fmt.Sprintf("%s: %v", action, err)
	}
}
