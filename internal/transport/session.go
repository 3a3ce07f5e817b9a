package transport

// State 会话状态机
// Disconnected -> Connecting -> AwaitingHandshakeAck -> Ready
// 任意状态遇到不可恢复的信道错误进入 Faulted，清理完成后回到 Disconnected
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHandshakeAck
	StateReady
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHandshakeAck:
		return "awaiting_handshake_ack"
	case StateReady:
		return "ready"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}
