package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/headset-server/internal/api"
	"github.com/taoyao-code/headset-server/internal/api/middleware"
	"github.com/taoyao-code/headset-server/internal/app"
	cfgpkg "github.com/taoyao-code/headset-server/internal/config"
	"github.com/taoyao-code/headset-server/internal/metrics"
)

// Run 统一启动流程
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting headset control server", zap.String("env", cfg.App.Env))

	// ========== 阶段1: 初始化基础组件 ==========
	reg, appm := app.NewMetrics()
	metricsHandler := metrics.Handler(reg)
	ready := app.NewReady()
	models := app.NewModelTable(cfg.Protocol, log)
	log.Info("basic components initialized")

	// ========== 阶段2: 创建蓝牙连接器 ==========
	connector, err := app.NewBluetoothConnector(cfg.Bluetooth, log)
	if err != nil {
		log.Error("bluetooth connector initialization failed", zap.Error(err))
		return err
	}
	defer connector.Close()
	log.Info("bluetooth connector initialized", zap.String("name_filter", cfg.Bluetooth.NameFilter))

	// ========== 阶段3: 创建设备网关 ==========
	cache := app.NewDeviceCache(log)
	gw := app.NewGateway(cfg, connector, models, cache, log, appm)
	log.Info("device gateway initialized")

	// ========== 阶段4: 启动HTTP服务（非阻塞）==========
	readyFn := func() bool { return ready.Ready() }
	httpSrv := app.NewHTTPServer(cfg.HTTP, cfg.Metrics.Path, metricsHandler, readyFn)

	healthAgg := app.NewHealthAggregator(connector, gw)
	log.Info("health aggregator initialized")

	httpSrv.Register(func(r *gin.Engine) {
		authCfg := middleware.AuthConfig{
			APIKeys: cfg.API.APIKeys,
			Enabled: cfg.API.AuthEnabled,
		}
		api.RegisterControlRoutes(r, gw, authCfg, cfg.API.RequestTimeout, log)
		app.RegisterHealthRoutes(r, healthAgg)
		if cfg.API.SwaggerEnabled {
			api.RegisterSwagger(r)
			log.Info("swagger ui enabled", zap.String("path", "/swagger/index.html"))
		}
	})

	go func() {
		if err := httpSrv.Start(); err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}()
	log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))

	// ========== 阶段5: 探测蓝牙适配器（后台，不阻塞启动）==========
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := connector.Ping(ctx); err != nil {
			log.Warn("bluetooth adapter probe failed, readiness deferred", zap.Error(err))
			return
		}
		ready.SetBluetoothReady(true)
		log.Info("bluetooth adapter ready, waiting for connect requests")
	}()

	// ========== 阶段6: 等待关闭信号 ==========
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("received shutdown signal, gracefully shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctx)
	log.Info("http server stopped")

	if err := gw.Disconnect(ctx); err != nil {
		log.Warn("device disconnect during shutdown", zap.Error(err))
	}
	log.Info("device session closed")

	log.Info("shutdown complete")
	return nil
}
