package mdr

// 播放子类别（载荷第二字节）
const (
	playTypeControl     = 0x01 // 播放控制
	playTypeMusicVolume = 0x20 // 音量
)

// DSEE 与免摘对话的子类别
const (
	dseeTypeUpscaling    = 0x01
	speakToChatTypeSmart = 0x02
)

// 环境声默认等级，NC/关闭模式下固定携带
const defaultAmbientLevel = 0x14

// AncMode 降噪模式
type AncMode string

const (
	AncOff     AncMode = "off"
	AncNc      AncMode = "nc"
	AncAmbient AncMode = "ambient"
	AncUnknown AncMode = "unknown"
)

// ParseAncMode 解析模式名称
func ParseAncMode(s string) (AncMode, bool) {
	switch AncMode(s) {
	case AncOff, AncNc, AncAmbient:
		return AncMode(s), true
	}
	return AncUnknown, false
}

// HandshakeInit1 连接初始化第一阶段（协议信息查询）
func HandshakeInit1() []byte { return []byte{0x00, 0x00} }

// HandshakeInit2 连接初始化第二阶段（支持功能查询）
func HandshakeInit2() []byte { return []byte{0x06, 0x00} }

// BatteryGet 查询电量。应答 0x23：payload[2]=电量, payload[3]=充电中
func BatteryGet() []byte { return []byte{OpBatteryGet, 0x00} }

// AncGet 查询降噪/环境声状态。应答 0x67
func AncGet(p Profile) []byte { return []byte{OpAncGet, p.NcAsmType} }

// AncSet 构造降噪/环境声设置命令
// 实测载荷（HCI 抓包）：
//
//	NC 开:  68 19 01 01 00 01 14 00 00
//	环境声: 68 19 01 01 01 00 0A 00 00
//	关闭:   68 19 01 00 00 00 14 00 00
//
// 环境声等级与人声聚焦仅在环境声模式下生效，其余模式固定为默认值
func AncSet(p Profile, mode AncMode, level byte, focus bool) []byte {
	var enable, asmOn, ncOn byte
	switch mode {
	case AncNc:
		enable, ncOn = 0x01, 0x01
		level, focus = defaultAmbientLevel, false
	case AncAmbient:
		enable, asmOn = 0x01, 0x01
	default:
		level, focus = defaultAmbientLevel, false
	}
	if level > AmbientLevelMax {
		level = AmbientLevelMax
	}
	var focusByte byte
	if focus {
		focusByte = 0x01
	}
	return []byte{OpAncSet, p.NcAsmType, 0x01, enable, asmOn, ncOn, level, focusByte, 0x00}
}

// VolumeGet 查询音量。应答 0xA7：payload[2]=音量
func VolumeGet() []byte { return []byte{OpVolumeGet, playTypeMusicVolume} }

// VolumeSet 设置音量（0..30，超限截断）
func VolumeSet(level byte) []byte {
	if level > VolumeMax {
		level = VolumeMax
	}
	return []byte{OpVolumeSet, playTypeMusicVolume, level}
}

// DseeGet 查询 DSEE 音频增强状态。应答 0xE7：payload[2]=开关
func DseeGet() []byte { return []byte{OpDseeGet, dseeTypeUpscaling} }

// DseeSet 开关 DSEE 音频增强
func DseeSet(enabled bool) []byte {
	return []byte{OpDseeSet, dseeTypeUpscaling, onOffByte(enabled)}
}

// SpeakToChatGet 查询免摘对话状态。应答 0xF7：payload[2]=开关
func SpeakToChatGet() []byte { return []byte{OpSpeakToChatGet, speakToChatTypeSmart} }

// SpeakToChatSet 开关免摘对话，附带灵敏度与自动恢复时长档位
func SpeakToChatSet(enabled bool, sensitivity, timeout byte) []byte {
	return []byte{OpSpeakToChatSet, speakToChatTypeSmart, onOffByte(enabled), sensitivity, timeout}
}

// PlaybackSet 构造播放控制命令（无应答，仅传输层确认）
func PlaybackSet(action byte) []byte {
	return []byte{OpPlaybackSet, playTypeControl, action}
}

func onOffByte(on bool) byte {
	if on {
		return 0x01
	}
	return 0x00
}
