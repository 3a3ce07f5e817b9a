package health

import "sync/atomic"

// Readiness 就绪状态聚合（蓝牙等异步初始化的子系统）
type Readiness struct {
	bluetoothReady atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetBluetoothReady(v bool) { r.bluetoothReady.Store(v) }

// Ready 总体就绪：各子系统均为 true
func (r *Readiness) Ready() bool {
	return r.bluetoothReady.Load()
}
