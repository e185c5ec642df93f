package main

import (
	"os/signal"
	"syscall"

	"pdf-chat-go/internal/app"
	"pdf-chat-go/internal/config"
	"pdf-chat-go/pkg/log"

	"github.com/spf13/cobra"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var port string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}
			log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, app.Options{})
			if err != nil {
				return err
			}
			a.StartWorkers(ctx)
			serveErr := a.Serve(ctx)
			stop()
			if err := a.Close(); err != nil {
				log.Warnf("释放资源失败: %v", err)
			}
			return serveErr
		},
	}
	serve.Flags().StringVar(&port, "port", "", "listen port (overrides server.port)")
	return serve
}
