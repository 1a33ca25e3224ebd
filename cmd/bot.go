package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"seerr-relay/app/config"
	"seerr-relay/app/database"
	"seerr-relay/app/handler"
	"seerr-relay/app/logger"
	"seerr-relay/app/overseerr"
	"seerr-relay/app/server"
	"seerr-relay/app/service"
	"seerr-relay/app/telegram"

	"github.com/spf13/cobra"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "启动机器人",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		// 创建日志器
		log := logger.New(cfg.Log)
		defer log.Sync()

		// 初始化数据库
		if err := database.Init(cfg, log); err != nil {
			log.Fatalf("数据库初始化失败: %v", err)
		}
		defer database.Close()

		client := overseerr.New(cfg.Overseerr, log)

		// 启动前探测一次 Overseerr，不可达只告警不退出
		probeCtx, probeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if !client.Reachable(probeCtx) {
			log.Warnf("Overseerr %s 当前不可达，将在使用时重试", cfg.Overseerr.URL)
		}
		probeCancel()

		bot := telegram.New(cfg.Telegram, log)
		router := handler.NewRouter(bot, client, cfg, log)
		poller := telegram.NewPoller(bot, router, log, cfg.Telegram.PollTimeout)

		monitor := service.NewStatusMonitor(cfg, client, bot, log)
		if err := monitor.Start(); err != nil {
			log.Fatalf("状态监控启动失败: %v", err)
		}

		srv := server.New(cfg, log, client)

		// 在协程中启动健康检查服务器
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("启动服务器失败: %v", err)
			}
		}()

		poller.Start()
		log.Info("机器人已启动")

		// 配置热更新传播给事件路由
		config.Watch(func(updated *config.Config) {
			router.UpdateConfig(updated)
		})

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("收到关闭信号，正在关闭...")

		poller.Stop()
		monitor.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("服务器关闭失败: %v", err)
		}
		log.Info("机器人已退出")
	},
}

func init() {
	rootCmd.AddCommand(botCmd)
}
