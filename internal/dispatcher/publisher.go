package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-motion/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Publisher 报警落库后的外部投递（通知传输协作方）
type Publisher interface {
	PublishAlert(ctx context.Context, alert *models.AlertEvent) error
	PublishNotification(ctx context.Context, n *models.SystemNotification) error
}

// MQTTClient MQTT 发布能力（common/mqtt.Client 实现）
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTPublisher 将报警发布到 MQTT
// 主题: {prefix}{subject_id}，系统通知: {prefix}system
type MQTTPublisher struct {
	client MQTTClient
	prefix string
	qos    byte
	logger *zap.Logger
}

// NewMQTTPublisher 创建 MQTT 发布器
func NewMQTTPublisher(client MQTTClient, prefix string, qos byte, logger *zap.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		prefix: prefix,
		qos:    qos,
		logger: logger,
	}
}

// PublishAlert 发布个人报警
func (p *MQTTPublisher) PublishAlert(_ context.Context, alert *models.AlertEvent) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	topic := p.prefix + alert.SubjectID
	if err := p.client.Publish(topic, p.qos, false, payload); err != nil {
		return fmt.Errorf("failed to publish alert to %s: %w", topic, err)
	}

	p.logger.Debug("Alert published to MQTT",
		zap.String("topic", topic),
		zap.String("alert_id", alert.ID),
	)
	return nil
}

// PublishNotification 发布系统通知
func (p *MQTTPublisher) PublishNotification(_ context.Context, n *models.SystemNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	topic := p.prefix + "system"
	if err := p.client.Publish(topic, p.qos, false, payload); err != nil {
		return fmt.Errorf("failed to publish notification to %s: %w", topic, err)
	}
	return nil
}

// WebhookEvent Webhook 请求体
type WebhookEvent struct {
	Kind         string                     `json:"kind"` // alert | notification
	Alert        *models.AlertEvent         `json:"alert,omitempty"`
	Notification *models.SystemNotification `json:"notification,omitempty"`
}

// WebhookPublisher 将报警 POST 到外部端点
type WebhookPublisher struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewWebhookPublisher 创建 Webhook 发布器
func NewWebhookPublisher(url string, logger *zap.Logger) *WebhookPublisher {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookPublisher{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// PublishAlert 投递个人报警
func (p *WebhookPublisher) PublishAlert(ctx context.Context, alert *models.AlertEvent) error {
	return p.post(ctx, WebhookEvent{Kind: "alert", Alert: alert})
}

// PublishNotification 投递系统通知
func (p *WebhookPublisher) PublishNotification(ctx context.Context, n *models.SystemNotification) error {
	return p.post(ctx, WebhookEvent{Kind: "notification", Notification: n})
}

func (p *WebhookPublisher) post(ctx context.Context, event WebhookEvent) error {
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetBody(event).
		Post(p.url)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	if resp.IsError() {
		p.logger.Warn("Webhook returned error status",
			zap.String("url", p.url),
			zap.Int("status_code", resp.StatusCode()),
		)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}
