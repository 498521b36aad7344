package main

import (
	"log"
	"os"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"

	"github.com/aichat/backend-go/app/bootstrap"
	"github.com/aichat/backend-go/app/router"
	"github.com/aichat/backend-go/internal/config"
	"github.com/aichat/backend-go/internal/logger"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	router.Init(app)

	web.BConfig.AppName = "Chat Backend"
	web.BConfig.CopyRequestBody = true
	web.BConfig.Listen.HTTPPort = resolvePort()

	logger.Info("starting chat backend", zap.Int("port", web.BConfig.Listen.HTTPPort))
	web.Run()
}

// resolvePort 端口优先级：SERVER_PORT环境变量 > 配置文件 > 8080
func resolvePort() int {
	port := os.Getenv("SERVER_PORT")
	if port == "" && config.AppConfig != nil {
		port = config.AppConfig.Server.Port
	}
	if p, err := strconv.Atoi(port); err == nil && p > 0 {
		return p
	}
	return 8080
}
