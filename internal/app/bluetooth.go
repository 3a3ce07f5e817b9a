package app

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/headset-server/internal/bluetooth"
	cfgpkg "github.com/taoyao-code/headset-server/internal/config"
)

// NewBluetoothConnector 创建BlueZ蓝牙连接器
func NewBluetoothConnector(cfg cfgpkg.BluetoothConfig, logger *zap.Logger) (bluetooth.Connector, error) {
	return bluetooth.New(bluetooth.Config{NameFilter: cfg.NameFilter}, logger)
}
