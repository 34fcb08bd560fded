package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server 运营 API 的 HTTP 服务（配置、状态、报警、导出）
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// 报警导出生成 xlsx，写超时放宽
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}
	return &Server{httpServer: s, logger: logger}
}

// Start 阻塞直到服务关闭；Stop 引起的关闭返回 nil
func (s *Server) Start() error {
	s.logger.Info("Starting motion API server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("motion API server on %s: %w", s.httpServer.Addr, err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping motion API server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.Shutdown(ctx)
}
