package gateway

import (
	"errors"
	"sync"
	"time"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常，放行连接
	BreakerOpen                         // 熔断，冷却期内直接拒绝
	BreakerHalfOpen                     // 半开，放行单次试探连接
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen 连接熔断器处于打开状态
var ErrCircuitOpen = errors.New("connect circuit breaker is open")

// connectBreaker 连接熔断器：连续拨号失败达到阈值后，冷却期内快速失败
// 连接由网关互斥串行发起，半开状态只会有一次在途试探
type connectBreaker struct {
	mu           sync.Mutex
	state        BreakerState
	failureCount int
	tripCount    int64
	lastFailTime time.Time

	threshold int           // 连续失败阈值
	cooldown  time.Duration // Open -> HalfOpen 冷却时长
}

func newConnectBreaker(threshold int, cooldown time.Duration) *connectBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &connectBreaker{threshold: threshold, cooldown: cooldown}
}

// Call 在熔断器保护下执行一次连接
func (b *connectBreaker) Call(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

func (b *connectBreaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerClosed, BreakerHalfOpen:
		return nil
	case BreakerOpen:
		if time.Since(b.lastFailTime) > b.cooldown {
			b.state = BreakerHalfOpen
			return nil
		}
		return ErrCircuitOpen
	default:
		return ErrCircuitOpen
	}
}

func (b *connectBreaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.state = BreakerClosed
		b.failureCount = 0
		return
	}
	b.failureCount++
	b.lastFailTime = time.Now()
	// 半开试探失败立即回到熔断
	if b.state == BreakerHalfOpen || b.failureCount >= b.threshold {
		if b.state != BreakerOpen {
			b.tripCount++
		}
		b.state = BreakerOpen
	}
}

// State 当前状态
func (b *connectBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats 统计信息
func (b *connectBreaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:        b.state.String(),
		FailureCount: b.failureCount,
		TripCount:    b.tripCount,
	}
}

// Reset 手动恢复
func (b *connectBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failureCount = 0
}

// BreakerStats 熔断器统计信息
type BreakerStats struct {
	State        string `json:"state"`
	FailureCount int    `json:"failure_count"`
	TripCount    int64  `json:"trip_count"`
}
