package mdr

// BatteryStatus 电量应答解码结果
type BatteryStatus struct {
	Level    int // 0..100
	Charging bool
}

// DecodeBattery 解码 0x23 电量应答：payload[2]=电量, payload[3]=充电中
func DecodeBattery(payload []byte) (BatteryStatus, bool) {
	if len(payload) < 4 || payload[0] != OpBatteryRet {
		return BatteryStatus{}, false
	}
	return BatteryStatus{Level: int(payload[2]), Charging: payload[3] != 0}, true
}

// AncStatus 降噪/环境声应答解码结果
type AncStatus struct {
	Mode         AncMode
	AmbientLevel int // 0..20，未携带时为 -1
	FocusOnVoice bool
}

// DecodeAnc 解码 0x67/0x69 降噪应答
// 实测格式：payload[3]=总开关, payload[4]=环境声开关, payload[6]=环境声等级, payload[7]=人声聚焦
// NC 模式不显式上报：总开关开且环境声关即为 NC
func DecodeAnc(payload []byte) (AncStatus, bool) {
	if len(payload) < 5 {
		return AncStatus{}, false
	}
	if payload[0] != OpAncRet && payload[0] != OpAncNotify {
		return AncStatus{}, false
	}
	st := AncStatus{AmbientLevel: -1}
	enable := payload[3] != 0
	asmOn := payload[4] != 0
	switch {
	case enable && !asmOn:
		st.Mode = AncNc
	case enable && asmOn:
		st.Mode = AncAmbient
	default:
		st.Mode = AncOff
	}
	if len(payload) >= 8 {
		st.AmbientLevel = int(payload[6])
		st.FocusOnVoice = payload[7] != 0
	}
	return st, true
}

// DecodeVolume 解码 0xA7/0xA9 音量应答：payload[2]=音量
func DecodeVolume(payload []byte) (int, bool) {
	if len(payload) < 3 {
		return 0, false
	}
	if payload[0] != OpVolumeRet && payload[0] != OpVolumeNotify {
		return 0, false
	}
	return int(payload[2]), true
}

// DecodeDsee 解码 0xE7/0xE9 DSEE 应答：payload[2]=开关
func DecodeDsee(payload []byte) (bool, bool) {
	if len(payload) < 3 {
		return false, false
	}
	if payload[0] != OpDseeRet && payload[0] != OpDseeNotify {
		return false, false
	}
	return payload[2] != 0, true
}

// DecodeSpeakToChat 解码 0xF7/0xF9 免摘对话应答：payload[2]=开关
func DecodeSpeakToChat(payload []byte) (bool, bool) {
	if len(payload) < 3 {
		return false, false
	}
	if payload[0] != OpSpeakToChatRet && payload[0] != OpSpeakToChatNotify {
		return false, false
	}
	return payload[2] != 0, true
}
