package mdr

// MDR 协议帧格式常量
// 格式：0x3E(1) + dataType(1) + seq(1) + payloadLen(4,大端) + payload(var) + checksum(1) + 0x3C(1)
// 帧头帧尾之间的所有字节需要转义后再上线路
const (
	// 帧定界符
	FrameStart = 0x3E // 帧头
	FrameEnd   = 0x3C // 帧尾

	// 转义规则：特殊字节 -> 0x3D + (字节 - 0x10)
	EscapeMarker = 0x3D
	EscapeOffset = 0x10

	// 最小帧长度（裸帧，未转义）: start + type + seq + len(4) + checksum + end
	MinFrameLength = 1 + 1 + 1 + 4 + 1 + 1 // = 9

	// 最大载荷长度（防止畸形帧占用内存）
	MaxPayloadLength = 2048
)

// 数据类型字段
const (
	TypeData       = 0x00 // 通用数据
	TypeAck        = 0x01 // 确认帧，载荷恒为空
	TypeDataMdr    = 0x0C // MDR 命令通道 (WH-1000XM6 / XM4 / XM3)
	TypeDataCommon = 0x0D // 公共通道
	TypeDataMdrNo2 = 0x0E // MDR 第二命令通道 (WH-1000XM5)
)

// 命令码（载荷首字节）。GET 的应答码恒为 GET+1，SET 的通知码恒为 SET+1
const (
	OpBatteryGet = 0x22
	OpBatteryRet = 0x23

	OpAncGet    = 0x66
	OpAncRet    = 0x67
	OpAncSet    = 0x68
	OpAncNotify = 0x69

	OpPlaybackSet = 0xA4

	OpVolumeGet    = 0xA6
	OpVolumeRet    = 0xA7
	OpVolumeSet    = 0xA8
	OpVolumeNotify = 0xA9

	OpDseeGet    = 0xE6
	OpDseeRet    = 0xE7
	OpDseeSet    = 0xE8
	OpDseeNotify = 0xE9

	OpSpeakToChatGet    = 0xF6
	OpSpeakToChatRet    = 0xF7
	OpSpeakToChatSet    = 0xF8
	OpSpeakToChatNotify = 0xF9
)

// NC/ASM 查询类别，依机型而异
const (
	NcAsmTypeV1V2 = 0x02 // WH-1000XM3 / XM4
	NcAsmTypeXM5  = 0x17 // WH-1000XM5
	NcAsmTypeXM6  = 0x19 // WH-1000XM6
)

// 播放控制动作
const (
	PlaybackPause     = 0x01
	PlaybackTrackUp   = 0x02
	PlaybackTrackDown = 0x03
	PlaybackPlay      = 0x07
)

// 取值范围约束
const (
	VolumeMax       = 30 // 音量 0..30
	AmbientLevelMax = 20 // 环境声等级 0..20
)

// Message 一帧已解码的 MDR 消息
type Message struct {
	DataType byte   // 数据类型
	Seq      byte   // 序列位 0/1
	Payload  []byte // 未转义的载荷
}

// IsAck 判断是否为确认帧。仅按数据类型判断，不看载荷
func (m *Message) IsAck() bool {
	return m.DataType == TypeAck
}

// Opcode 返回载荷首字节命令码；空载荷返回 0
func (m *Message) Opcode() byte {
	if len(m.Payload) == 0 {
		return 0
	}
	return m.Payload[0]
}
