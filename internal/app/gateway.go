package app

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/headset-server/internal/bluetooth"
	cfgpkg "github.com/taoyao-code/headset-server/internal/config"
	"github.com/taoyao-code/headset-server/internal/device"
	"github.com/taoyao-code/headset-server/internal/gateway"
	"github.com/taoyao-code/headset-server/internal/metrics"
	"github.com/taoyao-code/headset-server/internal/protocol/mdr"
	"github.com/taoyao-code/headset-server/internal/transport"
)

// NewModelTable 加载机型适配表：内置缺省值，配置文件存在时合并覆盖
func NewModelTable(cfg cfgpkg.ProtocolConfig, logger *zap.Logger) *mdr.ModelTable {
	table := mdr.DefaultModelTable()
	if cfg.ModelTable == "" {
		return table
	}
	override, err := mdr.LoadModelTable(cfg.ModelTable)
	if err != nil {
		logger.Warn("model table load failed, using builtin defaults",
			zap.String("path", cfg.ModelTable),
			zap.Error(err))
		return table
	}
	table.Merge(override)
	logger.Info("model table loaded", zap.String("path", cfg.ModelTable))
	return table
}

// NewDeviceCache 创建设备状态缓存
func NewDeviceCache(logger *zap.Logger) *device.Cache {
	return device.NewCache(logger)
}

// NewGateway 创建设备控制网关
func NewGateway(
	cfg *cfgpkg.Config,
	connector bluetooth.Connector,
	models *mdr.ModelTable,
	cache *device.Cache,
	logger *zap.Logger,
	m *metrics.AppMetrics,
) *gateway.Gateway {
	gwCfg := gateway.Config{
		Transport: transport.Config{
			CommandTimeout:       cfg.Protocol.CommandTimeout,
			HandshakeTimeout:     cfg.Protocol.HandshakeTimeout,
			QueueSize:            cfg.Protocol.QueueSize,
			QueueDuringHandshake: cfg.Protocol.QueueDuringHandshake,
			RatePerSec:           cfg.Protocol.RatePerSec,
			Burst:                cfg.Protocol.Burst,
		},
		ConnectTimeout:   cfg.Bluetooth.ConnectTimeout,
		BreakerThreshold: cfg.Bluetooth.BreakerThreshold,
		BreakerCooldown:  cfg.Bluetooth.BreakerCooldown,
	}
	return gateway.New(gwCfg, connector, models, cache, logger, m)
}
