package httpserver

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"BrowserPerfTraceKit/api/handlers"
	"BrowserPerfTraceKit/internal/config"
)

// APIServer 跟踪代理的HTTP控制面
type APIServer struct {
	router *mux.Router
	server *http.Server

	// 统计信息
	mu           sync.RWMutex
	requestCount int64
	errorCount   int64
	startTime    time.Time
}

// NewAPIServer 创建控制面服务器并挂载操作路由
func NewAPIServer(cfg *config.ServerConfig, traceHandlers *handlers.TraceHandlers) *APIServer {
	s := &APIServer{
		router:    mux.NewRouter(),
		startTime: time.Now(),
	}

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	traceHandlers.RegisterRoutes(api)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      c.Handler(s.router),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler 完整的HTTP处理链（测试用）
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

// loggingMiddleware 请求日志
func (s *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s %v", r.Method, r.RequestURI, r.RemoteAddr, time.Since(start))
	})
}

// metricsMiddleware 请求计数
func (s *APIServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.mu.Lock()
		s.requestCount++
		if recorder.status >= http.StatusBadRequest {
			s.errorCount++
		}
		s.mu.Unlock()
	})
}

// statusRecorder 捕获响应状态码
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Start 启动服务器（阻塞）
func (s *APIServer) Start() error {
	log.Printf("🌐 控制面HTTP服务器启动: %s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop 优雅关闭
func (s *APIServer) Stop(ctx context.Context) error {
	log.Printf("🔄 控制面HTTP服务器关闭中...")
	return s.server.Shutdown(ctx)
}

// GetStats 服务器统计信息
func (s *APIServer) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"total_requests": s.requestCount,
		"error_count":    s.errorCount,
	}
}
