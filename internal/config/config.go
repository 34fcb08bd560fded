package config

import (
	"os"
	"strconv"
	"time"
	"wisefido-motion/common/config"
)

// Config 运动检测服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 本进程身份（被监护人 / 观察者）
	SubjectID  string
	ObserverID string

	Store struct {
		Backend string // redis | postgres | memory
		// Redis 键前缀，如 "motion:"
		KeyPrefix string
	}

	// 检测默认值（运行时可通过 API 修改）
	Detection struct {
		Sensitivity          float64
		EnableFallDetection  bool
		EnableMotionTracking bool
		SamplingIntervalMs   int
		DetectionTimeoutMs   int // 单次姿态检测超时
		DebounceTicks        int // 状态去抖（1 = 不去抖）
	}

	Motion struct {
		EWMAAlpha         float64 // 位移指数加权系数
		DisplacementScale float64 // 归一化位移达到该值时运动值为 1
		HistorySize       int     // 运动历史长度
	}

	Pose struct {
		Topic       string        // 推理 worker 发布关键点的主题，如 "pose/+/keypoints"
		MaxAge      time.Duration // 超过该时长的估计视为不可用
		FrameWidth  int
		FrameHeight int
	}

	Notify struct {
		AlertTopicPrefix string // 报警发布主题前缀，如 "motion/alerts/"
		WebhookURL       string
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-motion")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.SubjectID = getEnv("SUBJECT_ID", "")
	cfg.ObserverID = getEnv("OBSERVER_ID", cfg.SubjectID)

	cfg.Store.Backend = getEnv("STORE_BACKEND", "redis")
	cfg.Store.KeyPrefix = getEnv("STORE_KEY_PREFIX", "motion:")

	cfg.Detection.Sensitivity = getEnvFloat("SENSITIVITY", 50)
	cfg.Detection.EnableFallDetection = getEnvBool("ENABLE_FALL_DETECTION", true)
	cfg.Detection.EnableMotionTracking = getEnvBool("ENABLE_MOTION_TRACKING", true)
	cfg.Detection.SamplingIntervalMs = getEnvInt("SAMPLING_INTERVAL_MS", 500)
	cfg.Detection.DetectionTimeoutMs = getEnvInt("DETECTION_TIMEOUT_MS", 2000)
	cfg.Detection.DebounceTicks = getEnvInt("DETECTION_DEBOUNCE_TICKS", 1)

	cfg.Motion.EWMAAlpha = getEnvFloat("MOTION_EWMA_ALPHA", 0.5)
	cfg.Motion.DisplacementScale = getEnvFloat("MOTION_DISPLACEMENT_SCALE", 0.05)
	cfg.Motion.HistorySize = getEnvInt("MOTION_HISTORY_SIZE", 20)

	cfg.Pose.Topic = getEnv("POSE_TOPIC", "pose/+/keypoints")
	cfg.Pose.MaxAge = time.Duration(getEnvInt("POSE_MAX_AGE_MS", 1500)) * time.Millisecond
	cfg.Pose.FrameWidth = getEnvInt("POSE_FRAME_WIDTH", 640)
	cfg.Pose.FrameHeight = getEnvInt("POSE_FRAME_HEIGHT", 480)

	cfg.Notify.AlertTopicPrefix = getEnv("ALERT_TOPIC_PREFIX", "motion/alerts/")
	cfg.Notify.WebhookURL = getEnv("ALERT_WEBHOOK_URL", "")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8090")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultValue
}
