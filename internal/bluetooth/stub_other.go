//go:build !linux

package bluetooth

import (
	"context"
	"io"

	"go.uber.org/zap"
)

// 非 Linux 平台仅保证编译通过，所有蓝牙操作返回 ErrUnsupported

type stubConnector struct{}

// New 创建占位连接器
func New(cfg Config, _ *zap.Logger) (Connector, error) {
	cfg.normalize()
	return stubConnector{}, nil
}

func (stubConnector) Discover(context.Context) ([]DeviceInfo, error) { return nil, ErrUnsupported }

func (stubConnector) Lookup(context.Context, string) (DeviceInfo, error) {
	return DeviceInfo{}, ErrUnsupported
}

func (stubConnector) Dial(context.Context, string) (io.ReadWriteCloser, DeviceInfo, error) {
	return nil, DeviceInfo{}, ErrUnsupported
}

func (stubConnector) Ping(context.Context) error { return ErrUnsupported }

func (stubConnector) Close() error { return nil }
