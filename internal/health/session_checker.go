package health

import (
	"context"
	"time"

	"github.com/taoyao-code/headset-server/internal/gateway"
	"github.com/taoyao-code/headset-server/internal/transport"
)

// SessionChecker 耳机会话健康检查器
//
// 未连接耳机是正常运行状态，只有会话故障或熔断器打开才会降级。
type SessionChecker struct {
	gw *gateway.Gateway
}

// NewSessionChecker 创建会话健康检查器
func NewSessionChecker(gw *gateway.Gateway) *SessionChecker {
	return &SessionChecker{gw: gw}
}

// Name 返回检查器名称
func (c *SessionChecker) Name() string {
	return "session"
}

// Check 执行健康检查
func (c *SessionChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	stats := c.gw.RuntimeStats()

	status := StatusHealthy
	message := "ok"

	if c.gw.SessionState() == transport.StateFaulted {
		status = StatusDegraded
		message = "transport session faulted"
	}

	if stats.Breaker.State == gateway.BreakerOpen.String() {
		status = StatusDegraded
		message = "connect circuit breaker open"
	}

	details := map[string]interface{}{
		"session_state":    stats.Session,
		"breaker_state":    stats.Breaker.State,
		"breaker_failures": stats.Breaker.FailureCount,
		"breaker_trips":    stats.Breaker.TripCount,
	}

	if stats.Throttle != nil {
		details["commands_allowed"] = stats.Throttle.AllowedTotal
		details["commands_waited"] = stats.Throttle.WaitedTotal
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
