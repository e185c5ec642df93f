// Package main 是应用程序的入口点。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pdf-chat-go/internal/app"
	"pdf-chat-go/internal/config"
	"pdf-chat-go/pkg/log"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 等待中断信号以实现优雅停机
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. 组装依赖并启动后台 Kafka 消费者
	a, err := app.New(ctx, &cfg, app.Options{})
	if err != nil {
		log.Fatal("应用初始化失败", err)
	}
	a.StartWorkers(ctx)

	// 5. 启动 HTTP 服务器
	if err := a.Serve(ctx); err != nil {
		log.Error("服务异常退出", err)
		stop()
		_ = a.Close()
		os.Exit(1)
	}

	if err := a.Close(); err != nil {
		log.Warnf("释放资源失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
