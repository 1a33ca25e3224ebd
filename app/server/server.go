package server

import (
	"context"
	"net/http"
	"time"

	"seerr-relay/app/config"
	"seerr-relay/app/logger"

	"github.com/gin-gonic/gin"
)

// Version 构建时通过 ldflags 注入
var Version = "dev"

// Prober 探测 Overseerr 是否可达
type Prober interface {
	Reachable(ctx context.Context) bool
}

// Server 健康检查与运行状态的 HTTP 服务器，供容器探针和外部监控使用
type Server struct {
	Config  *config.Config
	Logger  *logger.Logger
	gin     *gin.Engine
	http    *http.Server
	prober  Prober
	started time.Time
}

// New 创建 Server 实例
func New(cfg *config.Config, log *logger.Logger, prober Prober) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		Config: cfg,
		Logger: log,
		gin:    router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		prober:  prober,
		started: time.Now(),
	}

	s.setupRoutes()

	return s
}

// Start 启动服务器
func (s *Server) Start() error {
	s.Logger.Infof("在端口 %s 启动健康检查服务器", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 存活探针只看进程本身，不依赖上游
	s.gin.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.gin.GET("/api/status", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 6*time.Second)
		defer cancel()

		overseerrUp := s.prober.Reachable(ctx)
		status := http.StatusOK
		if !overseerrUp {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"version":        Version,
			"uptime_seconds": int64(time.Since(s.started).Seconds()),
			"overseerr_up":   overseerrUp,
		})
	})
}
