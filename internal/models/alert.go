package models

import "time"

// Severity 报警级别
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertType 报警类型
const (
	AlertTypeFallDetected   = "fall_detected"
	AlertTypeMotionDetected = "motion_detected"
	AlertTypeStreamStarted  = "stream_started"
	AlertTypeStreamEnded    = "stream_ended"
	AlertTypeTest           = "test"
)

// 存储集合名称
const (
	CollectionAlerts              = "alerts"
	CollectionSystemNotifications = "systemNotifications"
	CollectionStreamSessions      = "streamSessions"
)

// AlertCandidate 状态机产出、尚未持久化的报警候选
type AlertCandidate struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
}

// AlertEvent 个人报警事件（只追加，只允许 markRead 修改）
type AlertEvent struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subjectId"`
	Type      string    `json:"type"`
	Severity  Severity  `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// SystemNotification 全局广播通知
type SystemNotification struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	CreatedBy   string    `json:"createdBy"`
	ProcessedBy []string  `json:"processedBy"`
}

// IsProcessedBy 观察者是否已处理过该通知
func (n *SystemNotification) IsProcessedBy(observerID string) bool {
	for _, id := range n.ProcessedBy {
		if id == observerID {
			return true
		}
	}
	return false
}

// Candidate 还原为报警候选
func (n *SystemNotification) Candidate() AlertCandidate {
	return AlertCandidate{
		Type:     n.Type,
		Severity: n.Severity,
		Title:    n.Title,
		Message:  n.Message,
	}
}
