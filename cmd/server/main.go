package main

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/headset-server/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/headset-server/internal/config"
	"github.com/taoyao-code/headset-server/internal/logging"
)

// @title Headset Control Server API
// @version 1.0
// @description 索尼WH-1000XM系列耳机本地控制服务
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func main() {
	// 1) 加载配置
	cfg, err := cfgpkg.Load("")
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 统一启动流程
	if err := bootstrap.Run(cfg, zap.L()); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}
