package device

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/headset-server/internal/protocol/mdr"
)

// Status 设备状态快照。数值型字段 -1 表示尚未从设备取得
type Status struct {
	Connected          bool      `json:"connected"`
	Address            string    `json:"address,omitempty"`
	Name               string    `json:"name,omitempty"`
	Model              string    `json:"model,omitempty"`
	BatteryLevel       int       `json:"battery"`
	BatteryCharging    bool      `json:"charging"`
	AncMode            string    `json:"anc_mode"`
	AmbientLevel       int       `json:"ambient_level"`
	FocusOnVoice       bool      `json:"focus_on_voice"`
	Volume             int       `json:"volume"`
	DseeEnabled        bool      `json:"dsee"`
	SpeakToChatEnabled bool      `json:"speak_to_chat"`
	UpdatedAt          time.Time `json:"updated_at,omitempty"`
}

// Cache 会话范围的设备状态缓存
// 连接建立时重建，断开后仅保留 Connected=false 与设备标识；
// 读取只做快照拷贝，永不触达传输层
type Cache struct {
	mu     sync.RWMutex
	st     Status
	logger *zap.Logger
}

// NewCache 创建空缓存
func NewCache(logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{logger: logger}
	c.st = blankStatus()
	return c
}

func blankStatus() Status {
	return Status{
		BatteryLevel: -1,
		AncMode:      string(mdr.AncUnknown),
		AmbientLevel: -1,
		Volume:       -1,
	}
}

// Reset 连接建立时清空旧会话状态并记录设备标识
func (c *Cache) Reset(address, name, model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st = blankStatus()
	c.st.Connected = true
	c.st.Address = address
	c.st.Name = name
	c.st.Model = model
	c.st.UpdatedAt = time.Now()
}

// MarkDisconnected 断开后标记缓存失效
func (c *Cache) MarkDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr, name, model := c.st.Address, c.st.Name, c.st.Model
	c.st = blankStatus()
	c.st.Address = addr
	c.st.Name = name
	c.st.Model = model
	c.st.UpdatedAt = time.Now()
}

// Snapshot 返回状态拷贝
func (c *Cache) Snapshot() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.st
}

// Connected 返回连接标记
func (c *Cache) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.st.Connected
}

// Apply 将设备数据帧按命令码并入缓存
// 应答与主动通知走同一条路径；未建模的命令码仅记录日志
func (c *Cache) Apply(msg *mdr.Message) {
	if msg == nil || len(msg.Payload) == 0 {
		return
	}
	op := msg.Opcode()
	c.mu.Lock()
	defer c.mu.Unlock()

	switch op {
	case mdr.OpBatteryRet:
		st, ok := mdr.DecodeBattery(msg.Payload)
		if !ok {
			break
		}
		c.st.BatteryLevel = st.Level
		c.st.BatteryCharging = st.Charging
		c.st.UpdatedAt = time.Now()
		c.logger.Debug("battery updated",
			zap.Int("level", st.Level),
			zap.Bool("charging", st.Charging))

	case mdr.OpAncRet, mdr.OpAncNotify:
		st, ok := mdr.DecodeAnc(msg.Payload)
		if !ok {
			break
		}
		c.st.AncMode = string(st.Mode)
		if st.AmbientLevel >= 0 {
			c.st.AmbientLevel = st.AmbientLevel
			c.st.FocusOnVoice = st.FocusOnVoice
		}
		c.st.UpdatedAt = time.Now()
		c.logger.Debug("anc updated", zap.String("mode", string(st.Mode)))

	case mdr.OpVolumeRet, mdr.OpVolumeNotify:
		v, ok := mdr.DecodeVolume(msg.Payload)
		if !ok {
			break
		}
		c.st.Volume = v
		c.st.UpdatedAt = time.Now()
		c.logger.Debug("volume updated", zap.Int("level", v))

	case mdr.OpDseeRet, mdr.OpDseeNotify:
		on, ok := mdr.DecodeDsee(msg.Payload)
		if !ok {
			break
		}
		c.st.DseeEnabled = on
		c.st.UpdatedAt = time.Now()
		c.logger.Debug("dsee updated", zap.Bool("enabled", on))

	case mdr.OpSpeakToChatRet, mdr.OpSpeakToChatNotify:
		on, ok := mdr.DecodeSpeakToChat(msg.Payload)
		if !ok {
			break
		}
		c.st.SpeakToChatEnabled = on
		c.st.UpdatedAt = time.Now()
		c.logger.Debug("speak-to-chat updated", zap.Bool("enabled", on))

	default:
		c.logger.Debug("unhandled device frame",
			zap.String("opcode", fmt.Sprintf("0x%02X", op)),
			zap.String("payload", hex.EncodeToString(msg.Payload)))
	}
}
