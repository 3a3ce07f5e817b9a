package app

import (
	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/headset-server/internal/bluetooth"
	"github.com/taoyao-code/headset-server/internal/gateway"
	"github.com/taoyao-code/headset-server/internal/health"
)

// NewReady 创建就绪状态聚合
func NewReady() *health.Readiness {
	return health.New()
}

// NewHealthAggregator 创建健康检查聚合器
func NewHealthAggregator(connector bluetooth.Connector, gw *gateway.Gateway) *health.Aggregator {
	return health.NewAggregator(
		health.NewBluetoothChecker(connector),
		health.NewSessionChecker(gw),
	)
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}
