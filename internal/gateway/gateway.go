package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/headset-server/internal/bluetooth"
	"github.com/taoyao-code/headset-server/internal/device"
	"github.com/taoyao-code/headset-server/internal/metrics"
	"github.com/taoyao-code/headset-server/internal/protocol/mdr"
	"github.com/taoyao-code/headset-server/internal/transport"
)

// ErrInvalidParam 入参越界或不可识别，未触达传输层
var ErrInvalidParam = errors.New("invalid parameter")

// Config 网关配置
type Config struct {
	Transport        transport.Config
	ConnectTimeout   time.Duration // 解析设备+拨号+握手整体超时
	BreakerThreshold int           // 连续连接失败阈值
	BreakerCooldown  time.Duration // 熔断冷却时长
}

func (c *Config) normalize() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 20 * time.Second
	}
}

// Gateway 设备控制门面：校验入参、构造命令、串联蓝牙拨号与传输执行器
// 连接生命周期互斥串行；功能命令经执行器队列并发提交
type Gateway struct {
	cfg       Config
	connector bluetooth.Connector
	models    *mdr.ModelTable
	cache     *device.Cache
	logger    *zap.Logger
	metrics   *metrics.AppMetrics
	breaker   *connectBreaker

	mu         sync.Mutex
	actor      *transport.Actor
	profile    mdr.Profile
	connecting bool
}

// New 创建网关
func New(cfg Config, connector bluetooth.Connector, models *mdr.ModelTable, cache *device.Cache, logger *zap.Logger, m *metrics.AppMetrics) *Gateway {
	cfg.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		cfg:       cfg,
		connector: connector,
		models:    models,
		cache:     cache,
		logger:    logger,
		metrics:   m,
		breaker:   newConnectBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		profile:   mdr.DefaultProfile(),
	}
}

// Devices 列出已配对的索尼耳机
func (g *Gateway) Devices(ctx context.Context) ([]bluetooth.DeviceInfo, error) {
	return g.connector.Discover(ctx)
}

// Status 返回状态缓存快照，不触达传输层
func (g *Gateway) Status() device.Status {
	return g.cache.Snapshot()
}

// SessionState 当前传输会话状态
func (g *Gateway) SessionState() transport.State {
	g.mu.Lock()
	a := g.actor
	g.mu.Unlock()
	if a == nil {
		return transport.StateDisconnected
	}
	return a.State()
}

// Stats 网关运行统计
type Stats struct {
	Session  string                   `json:"session"`
	Breaker  BreakerStats             `json:"breaker"`
	Throttle *transport.ThrottleStats `json:"throttle,omitempty"`
}

// RuntimeStats 返回熔断器与命令限速统计
func (g *Gateway) RuntimeStats() Stats {
	s := Stats{Session: g.SessionState().String(), Breaker: g.breaker.Stats()}
	g.mu.Lock()
	a := g.actor
	g.mu.Unlock()
	if a != nil {
		ts := a.ThrottleStats()
		s.Throttle = &ts
	}
	return s
}

// Connect 建立设备连接。address 为空时自动选择第一台已配对耳机
// 就绪后发起一轮初始状态查询填充缓存。连续失败受熔断器保护
func (g *Gateway) Connect(ctx context.Context, address string) (device.Status, error) {
	g.mu.Lock()
	if g.connecting {
		g.mu.Unlock()
		return device.Status{}, transport.ErrAlreadyConnected
	}
	if a := g.actor; a != nil {
		select {
		case <-a.Done():
			// 会话已结束，监视协程尚未清理
			g.actor = nil
		default:
			g.mu.Unlock()
			return g.cache.Snapshot(), transport.ErrAlreadyConnected
		}
	}
	g.connecting = true
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.connecting = false
		g.mu.Unlock()
	}()

	err := g.breaker.Call(func() error { return g.establish(ctx, address) })
	if err != nil {
		if g.metrics != nil {
			g.metrics.ConnectTotal.WithLabelValues("error").Inc()
		}
		return device.Status{}, err
	}
	if g.metrics != nil {
		g.metrics.ConnectTotal.WithLabelValues("ok").Inc()
	}
	return g.cache.Snapshot(), nil
}

// establish 解析目标设备、启动传输执行器并等待握手完成
func (g *Gateway) establish(ctx context.Context, address string) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ConnectTimeout)
	defer cancel()

	info, err := g.resolveDevice(ctx, address)
	if err != nil {
		return err
	}
	profile, modelKey := g.models.ResolveByName(info.Name)
	if modelKey == "" {
		g.logger.Warn("unknown headset model, using default profile",
			zap.String("name", info.Name))
	}

	dialer := transport.DialerFunc(func(ctx context.Context) (transport.Channel, error) {
		ch, _, err := g.connector.Dial(ctx, info.Address)
		return ch, err
	})
	actor := transport.New(g.cfg.Transport, profile, dialer, g.cache.Apply, g.logger, g.metrics)
	if err := actor.Start(ctx); err != nil {
		return err
	}

	// 提前安装执行器，使握手期间的命令提交策略生效
	g.mu.Lock()
	g.actor = actor
	g.profile = profile
	g.mu.Unlock()

	if err := actor.WaitReady(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = actor.Stop(stopCtx)
		stopCancel()
		g.mu.Lock()
		if g.actor == actor {
			g.actor = nil
		}
		g.mu.Unlock()
		return err
	}

	g.cache.Reset(info.Address, info.Name, modelKey)
	go g.watch(actor)
	g.warmCache(ctx, actor, profile)

	g.logger.Info("device connected",
		zap.String("address", info.Address),
		zap.String("name", info.Name),
		zap.String("model", modelKey))
	return nil
}

func (g *Gateway) resolveDevice(ctx context.Context, address string) (bluetooth.DeviceInfo, error) {
	if address != "" {
		return g.connector.Lookup(ctx, address)
	}
	devices, err := g.connector.Discover(ctx)
	if err != nil {
		return bluetooth.DeviceInfo{}, err
	}
	if len(devices) == 0 {
		return bluetooth.DeviceInfo{}, bluetooth.ErrDeviceNotFound
	}
	return devices[0], nil
}

// warmCache 连接就绪后拉取一轮初始状态，单条失败仅记录
func (g *Gateway) warmCache(ctx context.Context, a *transport.Actor, p mdr.Profile) {
	gets := []transport.Command{
		{Name: "battery_get", Kind: transport.KindGet, Payload: mdr.BatteryGet(), WantOpcode: mdr.OpBatteryRet},
		{Name: "anc_get", Kind: transport.KindGet, Payload: mdr.AncGet(p), WantOpcode: mdr.OpAncRet},
		{Name: "volume_get", Kind: transport.KindGet, Payload: mdr.VolumeGet(), WantOpcode: mdr.OpVolumeRet},
		{Name: "dsee_get", Kind: transport.KindGet, Payload: mdr.DseeGet(), WantOpcode: mdr.OpDseeRet},
		{Name: "speak_to_chat_get", Kind: transport.KindGet, Payload: mdr.SpeakToChatGet(), WantOpcode: mdr.OpSpeakToChatRet},
	}
	for _, cmd := range gets {
		if _, err := a.Do(ctx, cmd); err != nil {
			g.logger.Warn("initial state query failed",
				zap.String("command", cmd.Name),
				zap.Error(err))
		}
	}
}

// watch 会话监视：连接意外结束后失效缓存并清理执行器引用
func (g *Gateway) watch(a *transport.Actor) {
	<-a.Done()
	g.mu.Lock()
	current := g.actor == a
	if current {
		g.actor = nil
	}
	g.mu.Unlock()
	if !current {
		return
	}
	g.cache.MarkDisconnected()
	if err := a.Err(); err != nil {
		g.logger.Warn("device session ended", zap.Error(err))
	} else {
		g.logger.Info("device session ended")
	}
}

// Disconnect 主动断开。未连接时为空操作
func (g *Gateway) Disconnect(ctx context.Context) error {
	g.mu.Lock()
	a := g.actor
	g.actor = nil
	g.mu.Unlock()
	if a == nil {
		return nil
	}
	err := a.Stop(ctx)
	g.cache.MarkDisconnected()
	g.logger.Info("device disconnected")
	return err
}

// SetAnc 设置降噪模式。level 为环境声通透等级，focus 为人声聚焦
func (g *Gateway) SetAnc(ctx context.Context, modeName string, level int, focus bool) error {
	mode, ok := mdr.ParseAncMode(modeName)
	if !ok {
		return fmt.Errorf("%w: unknown anc mode %q", ErrInvalidParam, modeName)
	}
	if level < 0 || level > mdr.AmbientLevelMax {
		return fmt.Errorf("%w: ambient level %d out of range 0..%d", ErrInvalidParam, level, mdr.AmbientLevelMax)
	}
	return g.do(ctx, transport.Command{
		Name:    "anc_set",
		Kind:    transport.KindSet,
		Payload: mdr.AncSet(g.currentProfile(), mode, byte(level), focus),
	})
}

// SetVolume 设置音量
func (g *Gateway) SetVolume(ctx context.Context, level int) error {
	if level < 0 || level > mdr.VolumeMax {
		return fmt.Errorf("%w: volume %d out of range 0..%d", ErrInvalidParam, level, mdr.VolumeMax)
	}
	return g.do(ctx, transport.Command{
		Name:    "volume_set",
		Kind:    transport.KindSet,
		Payload: mdr.VolumeSet(byte(level)),
	})
}

// SetDsee 开关 DSEE 音频增强
func (g *Gateway) SetDsee(ctx context.Context, enabled bool) error {
	return g.do(ctx, transport.Command{
		Name:    "dsee_set",
		Kind:    transport.KindSet,
		Payload: mdr.DseeSet(enabled),
	})
}

// SetSpeakToChat 开关免摘对话
func (g *Gateway) SetSpeakToChat(ctx context.Context, enabled bool, sensitivity, timeout int) error {
	if sensitivity < 0 || sensitivity > 0xFF {
		return fmt.Errorf("%w: sensitivity %d out of range 0..255", ErrInvalidParam, sensitivity)
	}
	if timeout < 0 || timeout > 0xFF {
		return fmt.Errorf("%w: timeout %d out of range 0..255", ErrInvalidParam, timeout)
	}
	return g.do(ctx, transport.Command{
		Name:    "speak_to_chat_set",
		Kind:    transport.KindSet,
		Payload: mdr.SpeakToChatSet(enabled, byte(sensitivity), byte(timeout)),
	})
}

var playbackActions = map[string]byte{
	"play":  mdr.PlaybackPlay,
	"pause": mdr.PlaybackPause,
	"next":  mdr.PlaybackTrackUp,
	"prev":  mdr.PlaybackTrackDown,
}

// Playback 播放控制
func (g *Gateway) Playback(ctx context.Context, action string) error {
	code, ok := playbackActions[action]
	if !ok {
		return fmt.Errorf("%w: unknown playback action %q", ErrInvalidParam, action)
	}
	return g.do(ctx, transport.Command{
		Name:    "playback_set",
		Kind:    transport.KindSet,
		Payload: mdr.PlaybackSet(code),
	})
}

func (g *Gateway) currentProfile() mdr.Profile {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.profile
}

func (g *Gateway) do(ctx context.Context, cmd transport.Command) error {
	g.mu.Lock()
	a := g.actor
	g.mu.Unlock()
	if a == nil {
		return transport.ErrNotConnected
	}
	_, err := a.Do(ctx, cmd)
	return err
}
