package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stocksense/src/config"
	"stocksense/src/endpoint"
	"stocksense/src/server"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
)

// RegisterServeCmd 注册 HTTP 服务命令
func RegisterServeCmd(registry *endpoint.Registry) {
	var addr string

	cmd.RegisterCmd("serve", "serve market data, pilot episodes, metrics and step events over HTTP", func(args *arg.Arg) {
		args.String(&addr, "addr", "listen address (default: server.addr in config.json)")
		args.Parse()

		cfg := config.AppConfig.Clone()
		if addr != "" {
			cfg.Server.Addr = addr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s := server.NewServer(cfg, registry, server.NewHub(256))
		if err := s.Run(ctx); err != nil {
			fmt.Printf("❌ Server error: %v\n", err)
			os.Exit(1)
		}
	})
}
