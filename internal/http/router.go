package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const apiPrefix = "/motion/api/v1"

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// method 限定请求方法，其他方法返回 405
func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != m {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// RegisterMotionRoutes 注册运动检测运营接口
func (r *Router) RegisterMotionRoutes(h *MotionHandler) {
	// config
	r.Handle(apiPrefix+"/config", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.GetConfig(w, req)
		case http.MethodPut:
			h.UpdateConfig(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	r.Handle(apiPrefix+"/status", method(http.MethodGet, h.GetStatus))

	// monitoring
	r.Handle(apiPrefix+"/monitoring/start", method(http.MethodPost, h.StartMonitoring))
	r.Handle(apiPrefix+"/monitoring/stop", method(http.MethodPost, h.StopMonitoring))
	r.Handle(apiPrefix+"/sessions/active", method(http.MethodGet, h.GetActiveSession))

	// alerts
	r.Handle(apiPrefix+"/alerts", method(http.MethodGet, h.ListAlerts))
	r.Handle(apiPrefix+"/alerts/summary", method(http.MethodGet, h.GetSummary))
	r.Handle(apiPrefix+"/alerts/test", method(http.MethodPost, h.SendTestAlert))
	r.Handle(apiPrefix+"/alerts/export", method(http.MethodGet, h.ExportAlerts))

	// alerts/{id}/read
	r.Handle(apiPrefix+"/alerts/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, apiPrefix+"/alerts/")
		id, ok := strings.CutSuffix(rest, "/read")
		if !ok || id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.MarkRead(w, req, id)
	})

	r.Handle(apiPrefix+"/notifications", method(http.MethodGet, h.ListNotifications))
}
