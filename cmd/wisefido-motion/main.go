package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wisefido-motion/common/database"
	"wisefido-motion/common/logger"
	mqttcommon "wisefido-motion/common/mqtt"
	rediscommon "wisefido-motion/common/redis"
	"wisefido-motion/internal/config"
	"wisefido-motion/internal/detector"
	"wisefido-motion/internal/dispatcher"
	httpapi "wisefido-motion/internal/http"
	"wisefido-motion/internal/motion"
	"wisefido-motion/internal/pose"
	"wisefido-motion/internal/scheduler"
	"wisefido-motion/internal/service"
	"wisefido-motion/internal/session"
	"wisefido-motion/internal/store"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-motion")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	if cfg.SubjectID == "" {
		log.Fatal("SUBJECT_ID environment variable is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. 存储
	st, closeStore, err := newStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer closeStore()

	// 4. MQTT：姿态输入 + 报警输出
	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, log)
	if err != nil {
		log.Fatal("Failed to connect MQTT broker", zap.Error(err))
	}
	defer mqttClient.Disconnect()

	feed := pose.NewMQTTFeed(mqttClient, cfg.Pose.Topic, cfg.SubjectID, cfg.Pose.MaxAge,
		cfg.Pose.FrameWidth, cfg.Pose.FrameHeight, log)
	if err := feed.Start(mqttClient.QoS()); err != nil {
		// 模型未加载：服务照常启动，StartMonitoring 会返回错误
		log.Error("Pose feed not available", zap.Error(err))
	}
	defer feed.Stop()

	source := pose.NewSource(feed, time.Duration(cfg.Detection.DetectionTimeoutMs)*time.Millisecond, log)

	// 5. 报警分发
	publishers := []dispatcher.Publisher{
		dispatcher.NewMQTTPublisher(mqttClient, cfg.Notify.AlertTopicPrefix, mqttClient.QoS(), log),
	}
	if cfg.Notify.WebhookURL != "" {
		publishers = append(publishers, dispatcher.NewWebhookPublisher(cfg.Notify.WebhookURL, log))
	}
	alerts := dispatcher.NewDispatcher(st, cfg.ObserverID, log, publishers...)

	observer := dispatcher.NewObserver(alerts, st, log)
	go func() {
		if err := observer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Notification observer stopped", zap.Error(err))
		}
	}()

	// 6. 调度器 + 会话
	settings := config.NewDetectionSettings(cfg)
	sampler := scheduler.New(scheduler.Deps{
		Frames:      feed,
		Detector:    source,
		Calculator:  motion.NewCalculator(motion.EWMADisplacement(cfg.Motion.EWMAAlpha, cfg.Motion.DisplacementScale)),
		Machine:     detector.NewMachine(cfg.Detection.DebounceTicks),
		Alerts:      alerts,
		Settings:    settings,
		SubjectID:   cfg.SubjectID,
		HistorySize: cfg.Motion.HistorySize,
	}, log)
	sessions := session.NewManager(st, alerts, log)
	monitor := service.NewMonitorService(sampler, sessions, cfg.SubjectID, log)

	// 其他进程（或运营人员）开关会话时记录日志
	if watch, err := sessions.WatchActiveSession(ctx, cfg.SubjectID); err != nil {
		log.Warn("Failed to watch active session", zap.Error(err))
	} else {
		go func() {
			for sess := range watch {
				if sess == nil {
					log.Info("No active stream session", zap.String("subject_id", cfg.SubjectID))
					continue
				}
				log.Info("Active stream session changed",
					zap.String("subject_id", cfg.SubjectID),
					zap.String("session_id", sess.ID),
				)
			}
		}()
	}

	// 7. 运营 API
	router := httpapi.NewRouter(log)
	router.RegisterMotionRoutes(httpapi.NewMotionHandler(settings, monitor, alerts, cfg.SubjectID, log))
	server := service.NewServer(cfg.HTTP.Addr, router, log)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	// 8. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
	case err := <-serverErrChan:
		log.Error("HTTP server error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// 异常终止也要尽力关闭活跃会话
	monitor.Shutdown(shutdownCtx)
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn("Failed to stop HTTP server", zap.Error(err))
	}
	cancel()

	log.Info("Motion service stopped")
}

// newStore 按配置选择存储后端
func newStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case "redis":
		client, err := rediscommon.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisStore(client, cfg.Store.KeyPrefix, log), func() { _ = rediscommon.Close(client) }, nil

	case "postgres":
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgresStore(db, cfg.Database.GetDSN(), log)
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = database.Close(db)
			return nil, nil, err
		}
		return pg, func() { _ = database.Close(db) }, nil

	case "memory":
		log.Warn("Using in-memory store; records are lost on restart")
		return store.NewMemoryStore(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
