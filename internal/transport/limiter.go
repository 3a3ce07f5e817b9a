package transport

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Throttle 基于 Token Bucket 的设备命令限速器
// 耳机固件对命令频率敏感，超速会丢弃命令或断开 RFCOMM 信道
type Throttle struct {
	limiter      *rate.Limiter
	ratePerSec   int
	burst        int
	allowedCount atomic.Int64
	waitedCount  atomic.Int64
}

// NewThrottle 创建限速器
// ratePerSec: 每秒允许的命令数（稳定速率）
// burst: 突发容量（桶的大小）
func NewThrottle(ratePerSec int, burst int) *Throttle {
	if ratePerSec <= 0 {
		ratePerSec = 10 // 默认每秒10条命令
	}
	if burst <= 0 {
		burst = ratePerSec / 2
		if burst == 0 {
			burst = 1
		}
	}
	return &Throttle{
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		ratePerSec: ratePerSec,
		burst:      burst,
	}
}

// Wait 阻塞直到允许发送（受上下文取消约束）
func (t *Throttle) Wait(ctx context.Context) error {
	if t.limiter.Allow() {
		t.allowedCount.Add(1)
		return nil
	}
	t.waitedCount.Add(1)
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	t.allowedCount.Add(1)
	return nil
}

// Stats 获取统计信息
func (t *Throttle) Stats() ThrottleStats {
	return ThrottleStats{
		RatePerSecond: t.ratePerSec,
		Burst:         t.burst,
		AllowedTotal:  t.allowedCount.Load(),
		WaitedTotal:   t.waitedCount.Load(),
	}
}

// ThrottleStats 限速器统计信息
type ThrottleStats struct {
	RatePerSecond int   `json:"rate_per_second"`
	Burst         int   `json:"burst"`
	AllowedTotal  int64 `json:"allowed_total"`
	WaitedTotal   int64 `json:"waited_total"`
}
