package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taoyao-code/headset-server/internal/bluetooth"
)

// BluetoothChecker 蓝牙适配器健康检查器
type BluetoothChecker struct {
	connector bluetooth.Connector
}

// NewBluetoothChecker 创建蓝牙健康检查器
func NewBluetoothChecker(connector bluetooth.Connector) *BluetoothChecker {
	return &BluetoothChecker{connector: connector}
}

// Name 返回检查器名称
func (c *BluetoothChecker) Name() string {
	return "bluetooth"
}

// Check 执行健康检查
func (c *BluetoothChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	if err := c.connector.Ping(ctx); err != nil {
		status := StatusUnhealthy
		message := fmt.Sprintf("adapter probe failed: %v", err)

		// 平台不支持时降级而非不健康，进程仍可提供只读API
		if errors.Is(err, bluetooth.ErrUnsupported) {
			status = StatusDegraded
			message = "bluetooth unsupported on this platform"
		}

		return CheckResult{
			Status:  status,
			Message: message,
			Latency: time.Since(start),
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Latency: time.Since(start),
	}
}
