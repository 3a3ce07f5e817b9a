package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/headset-server/internal/api/middleware"
	"github.com/taoyao-code/headset-server/internal/gateway"
)

// RegisterControlRoutes 注册耳机控制路由
func RegisterControlRoutes(
	r *gin.Engine,
	gw *gateway.Gateway,
	authCfg middleware.AuthConfig,
	requestTimeout time.Duration,
	logger *zap.Logger,
) {
	if r == nil || gw == nil {
		return
	}

	handler := NewControlHandler(gw, requestTimeout, logger)

	api := r.Group("/api")
	api.Use(middleware.CORS())
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	// 连接管理
	api.GET("/devices", handler.ListDevices)
	api.POST("/connect", handler.Connect)
	api.POST("/disconnect", handler.Disconnect)

	// 设备控制
	api.GET("/status", handler.Status)
	api.GET("/stats", handler.Stats)
	api.POST("/anc", handler.SetAnc)
	api.POST("/volume", handler.SetVolume)
	api.POST("/dsee", handler.SetDsee)
	api.POST("/speak_to_chat", handler.SetSpeakToChat)
	api.POST("/playback", handler.Playback)

	logger.Info("control routes registered", zap.Int("endpoints", 10))
}
