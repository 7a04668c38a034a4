package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/proc"
	"github.com/zeromicro/go-zero/core/threading"
	"github.com/zeromicro/go-zero/rest"
	"github.com/zeromicro/go-zero/rest/httpx"

	"coinboard/internal/cli"
	"coinboard/internal/config"
	"coinboard/internal/handler"
	"coinboard/internal/svc"
)

var configFile = flag.String("f", "etc/coinboard.yaml", "the config file")

func main() {
	flag.Parse()

	cfg := config.MustLoad(*configFile)

	server := rest.MustNewServer(cfg.RestConf)
	defer server.Stop()

	cli.LogConfigSummary(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc.AddShutdownListener(cancel)

	svcCtx := svc.MustNewServiceContext(*cfg)
	defer svcCtx.Close()
	logx.Must(svcCtx.Widget.Init(ctx))

	threading.GoSafe(func() { svcCtx.Stream.Run(ctx) })
	threading.GoSafe(func() {
		if err := svcCtx.Widget.Run(ctx, svcCtx.Unlocked()); err != nil && ctx.Err() == nil {
			logx.Errorf("coinboard: widget stopped err=%v", err)
		}
	})

	httpx.SetErrorHandlerCtx(handler.ErrorHandler)
	handler.RegisterHandlers(server, svcCtx)

	fmt.Printf("Starting server at %s:%d...\n", cfg.Host, cfg.Port)
	server.Start()
}
