package transport

// Tracker 序列位追踪器
// 协议约定单飞行窗口：同一时刻至多一条在途命令，序列位在 0/1 间交替，
// 确认帧的序列位必须与在途命令一致。仅限传输循环 goroutine 访问
type Tracker struct {
	next     byte
	sent     byte
	inflight bool
}

// NewTracker 创建追踪器，初始序列位为 0
func NewTracker() *Tracker {
	return &Tracker{}
}

// Reset 归零。每次建立连接时调用
func (t *Tracker) Reset() {
	t.next = 0
	t.sent = 0
	t.inflight = false
}

// Next 返回下一条命令应使用的序列位
func (t *Tracker) Next() byte {
	return t.next
}

// MarkSent 记录当前序列位的命令已发出
func (t *Tracker) MarkSent() {
	t.sent = t.next
	t.inflight = true
}

// InFlight 是否存在在途命令
func (t *Tracker) InFlight() bool {
	return t.inflight
}

// AckMatches 校验确认帧序列位。命中则清除在途并翻转序列位；
// 不命中（含无在途命令时收到确认）返回 false，追踪器状态不变
func (t *Tracker) AckMatches(seq byte) bool {
	if !t.inflight || seq&0x01 != t.sent {
		return false
	}
	t.inflight = false
	t.next = 1 - t.sent
	return true
}

// TimedOut 超时视同确认：清除在途并翻转序列位，后续命令使用新序列位
func (t *Tracker) TimedOut() {
	if !t.inflight {
		return
	}
	t.inflight = false
	t.next = 1 - t.sent
}
