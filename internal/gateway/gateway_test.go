package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/headset-server/internal/bluetooth"
	"github.com/taoyao-code/headset-server/internal/device"
	"github.com/taoyao-code/headset-server/internal/protocol/mdr"
	"github.com/taoyao-code/headset-server/internal/transport"
)

// fakeChannel 自动应答的假耳机信道：命令帧回同位确认，查询帧附带固定应答
type fakeChannel struct {
	mu     sync.Mutex
	cond   *sync.Cond
	rbuf   bytes.Buffer
	closed bool
	dec    *mdr.StreamDecoder
	seen   []*mdr.Message
	devSeq byte
}

func newFakeChannel() *fakeChannel {
	f := &fakeChannel{dec: mdr.NewStreamDecoder(0)}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *fakeChannel) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.rbuf.Len() == 0 && !f.closed {
		f.cond.Wait()
	}
	if f.rbuf.Len() == 0 {
		return 0, io.EOF
	}
	return f.rbuf.Read(p)
}

func (f *fakeChannel) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.ErrClosedPipe
	}
	msgs, _ := f.dec.Feed(p)
	for _, m := range msgs {
		if m.IsAck() {
			continue
		}
		f.seen = append(f.seen, m)
		f.rbuf.Write(mdr.EncodeAck(m.Seq))
		if reply := replyFor(m); reply != nil {
			f.rbuf.Write(mdr.Encode(mdr.TypeDataMdr, f.devSeq, reply))
			f.devSeq = 1 - f.devSeq
		}
	}
	f.cond.Broadcast()
	return len(p), nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.cond.Broadcast()
	return nil
}

func (f *fakeChannel) frames() []*mdr.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*mdr.Message, len(f.seen))
	copy(out, f.seen)
	return out
}

// replyFor 设备侧应答脚本
// 查询返回固定状态：电量85%充电中、环境声等级10、音量15、DSEE开、免摘对话关；
// 设置命令按真机行为回发通知帧（命令码+1，载荷其余部分回显）
func replyFor(m *mdr.Message) []byte {
	switch m.Opcode() {
	case mdr.OpBatteryGet:
		return []byte{0x23, 0x00, 0x55, 0x01}
	case mdr.OpAncGet:
		return []byte{0x67, 0x19, 0x01, 0x01, 0x01, 0x00, 0x0A, 0x00, 0x00}
	case mdr.OpVolumeGet:
		return []byte{0xA7, 0x20, 0x0F}
	case mdr.OpDseeGet:
		return []byte{0xE7, 0x01, 0x01}
	case mdr.OpSpeakToChatGet:
		return []byte{0xF7, 0x02, 0x00}
	case mdr.OpAncSet, mdr.OpVolumeSet, mdr.OpDseeSet, mdr.OpSpeakToChatSet:
		notify := make([]byte, len(m.Payload))
		copy(notify, m.Payload)
		notify[0] = m.Opcode() + 1
		return notify
	}
	return nil
}

// fakeConnector 假蓝牙连接器
type fakeConnector struct {
	mu       sync.Mutex
	devices  []bluetooth.DeviceInfo
	dialErr  error
	dialSeen int
	lastCh   *fakeChannel
}

func (f *fakeConnector) Discover(context.Context) ([]bluetooth.DeviceInfo, error) {
	return f.devices, nil
}

func (f *fakeConnector) Lookup(_ context.Context, address string) (bluetooth.DeviceInfo, error) {
	for _, d := range f.devices {
		if d.Address == address {
			return d, nil
		}
	}
	return bluetooth.DeviceInfo{}, bluetooth.ErrDeviceNotFound
}

func (f *fakeConnector) Dial(_ context.Context, address string) (io.ReadWriteCloser, bluetooth.DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialSeen++
	if f.dialErr != nil {
		return nil, bluetooth.DeviceInfo{}, f.dialErr
	}
	f.lastCh = newFakeChannel()
	return f.lastCh, bluetooth.DeviceInfo{Address: address}, nil
}

func (f *fakeConnector) Ping(context.Context) error { return nil }

func (f *fakeConnector) Close() error { return nil }

func (f *fakeConnector) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dialSeen
}

func (f *fakeConnector) channel() *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCh
}

func testGatewayConfig() Config {
	return Config{
		Transport: transport.Config{
			CommandTimeout:   200 * time.Millisecond,
			HandshakeTimeout: time.Second,
			QueueSize:        16,
			RatePerSec:       1000,
			Burst:            100,
		},
		ConnectTimeout:   2 * time.Second,
		BreakerThreshold: 2,
		BreakerCooldown:  time.Minute,
	}
}

func newTestGateway(conn *fakeConnector) *Gateway {
	return New(testGatewayConfig(), conn, mdr.DefaultModelTable(),
		device.NewCache(zap.NewNop()), zap.NewNop(), nil)
}

func xm6Connector() *fakeConnector {
	return &fakeConnector{devices: []bluetooth.DeviceInfo{
		{Address: "38:18:4C:01:02:03", Name: "WH-1000XM6", Paired: true},
	}}
}

// TestGateway_ConnectWarmsCache 测试连接后初始状态查询回填缓存
func TestGateway_ConnectWarmsCache(t *testing.T) {
	conn := xm6Connector()
	g := newTestGateway(conn)
	defer g.Disconnect(context.Background())

	// 地址留空：自动选择第一台已配对设备
	st, err := g.Connect(context.Background(), "")
	require.NoError(t, err, "连接失败")

	assert.True(t, st.Connected)
	assert.Equal(t, "38:18:4C:01:02:03", st.Address)
	assert.Equal(t, "wh-1000xm6", st.Model, "应按设备名解析出机型")
	assert.Equal(t, 85, st.BatteryLevel)
	assert.True(t, st.BatteryCharging)
	assert.Equal(t, string(mdr.AncAmbient), st.AncMode)
	assert.Equal(t, 10, st.AmbientLevel)
	assert.Equal(t, 15, st.Volume)
	assert.True(t, st.DseeEnabled)
	assert.False(t, st.SpeakToChatEnabled)

	// 线路帧序：两条握手帧 + 五条初始查询
	frames := conn.channel().frames()
	require.Len(t, frames, 7)
	assert.Equal(t, []byte{0x00, 0x00}, frames[0].Payload)
	assert.Equal(t, []byte{0x06, 0x00}, frames[1].Payload)
	assert.Equal(t, byte(mdr.OpBatteryGet), frames[2].Opcode())

	assert.Equal(t, transport.StateReady, g.SessionState())
}

// TestGateway_ConnectTwiceRejected 测试重复连接
func TestGateway_ConnectTwiceRejected(t *testing.T) {
	conn := xm6Connector()
	g := newTestGateway(conn)
	defer g.Disconnect(context.Background())

	_, err := g.Connect(context.Background(), "")
	require.NoError(t, err)

	_, err = g.Connect(context.Background(), "")
	assert.ErrorIs(t, err, transport.ErrAlreadyConnected)
	assert.Equal(t, 1, conn.dialCount(), "重复连接不应再次拨号")
}

// TestGateway_ValidationBeforeTransport 测试入参校验先于传输层
func TestGateway_ValidationBeforeTransport(t *testing.T) {
	g := newTestGateway(xm6Connector())
	ctx := context.Background()

	// 未连接状态下越界入参应报参数错误而非未连接
	assert.ErrorIs(t, g.SetVolume(ctx, 31), ErrInvalidParam)
	assert.ErrorIs(t, g.SetVolume(ctx, -1), ErrInvalidParam)
	assert.ErrorIs(t, g.SetAnc(ctx, "bass_boost", 10, false), ErrInvalidParam)
	assert.ErrorIs(t, g.SetAnc(ctx, "ambient", 21, false), ErrInvalidParam)
	assert.ErrorIs(t, g.Playback(ctx, "stop"), ErrInvalidParam)
	assert.ErrorIs(t, g.SetSpeakToChat(ctx, true, 300, 1), ErrInvalidParam)

	// 合法入参但未连接
	assert.ErrorIs(t, g.SetVolume(ctx, 10), transport.ErrNotConnected)
	assert.ErrorIs(t, g.SetDsee(ctx, true), transport.ErrNotConnected)
}

// TestGateway_SetCommandsOnWire 测试设置命令的线路载荷与机型参数
func TestGateway_SetCommandsOnWire(t *testing.T) {
	conn := &fakeConnector{devices: []bluetooth.DeviceInfo{
		{Address: "38:18:4C:0A:0B:0C", Name: "WH-1000XM5", Paired: true},
	}}
	g := newTestGateway(conn)
	defer g.Disconnect(context.Background())

	ctx := context.Background()
	_, err := g.Connect(ctx, "38:18:4C:0A:0B:0C")
	require.NoError(t, err)

	require.NoError(t, g.SetVolume(ctx, 12))
	require.NoError(t, g.SetAnc(ctx, "nc", 10, false))
	require.NoError(t, g.Playback(ctx, "pause"))

	frames := conn.channel().frames()
	require.Len(t, frames, 10, "两条握手+五条查询+三条设置")

	vol := frames[7]
	assert.Equal(t, byte(mdr.TypeDataMdrNo2), vol.DataType, "XM5 应使用第二命令通道")
	assert.Equal(t, []byte{0xA8, 0x20, 0x0C}, vol.Payload)

	anc := frames[8]
	assert.Equal(t, byte(mdr.OpAncSet), anc.Opcode())
	assert.Equal(t, byte(mdr.NcAsmTypeXM5), anc.Payload[1], "XM5 应使用对应的查询类别")

	play := frames[9]
	assert.Equal(t, []byte{0xA4, 0x01, 0x01}, play.Payload)
}

// TestGateway_SetNotifyUpdatesCache 测试设置命令经设备通知帧回流快照
func TestGateway_SetNotifyUpdatesCache(t *testing.T) {
	conn := xm6Connector()
	g := newTestGateway(conn)
	defer g.Disconnect(context.Background())

	ctx := context.Background()
	_, err := g.Connect(ctx, "")
	require.NoError(t, err)

	require.NoError(t, g.SetVolume(ctx, 12))
	require.NoError(t, g.SetDsee(ctx, false))

	// 通知帧在命令决议后异步并入缓存
	assert.Eventually(t, func() bool {
		st := g.Status()
		return st.Volume == 12 && !st.DseeEnabled
	}, 2*time.Second, 10*time.Millisecond, "设备通知应更新快照")
}

// TestGateway_DisconnectIdempotent 测试断开的幂等性
func TestGateway_DisconnectIdempotent(t *testing.T) {
	conn := xm6Connector()
	g := newTestGateway(conn)
	ctx := context.Background()

	require.NoError(t, g.Disconnect(ctx), "未连接时断开应为空操作")

	_, err := g.Connect(ctx, "")
	require.NoError(t, err)
	require.NoError(t, g.Disconnect(ctx))

	st := g.Status()
	assert.False(t, st.Connected)
	assert.Equal(t, "38:18:4C:01:02:03", st.Address, "断开后保留设备标识")
	assert.Equal(t, transport.StateDisconnected, g.SessionState())

	require.NoError(t, g.Disconnect(ctx), "重复断开应为空操作")

	// 断开后可重新连接
	_, err = g.Connect(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, conn.dialCount())
	require.NoError(t, g.Disconnect(ctx))
}

// TestGateway_BreakerTripsOnRepeatedDialFailure 测试连接熔断
func TestGateway_BreakerTripsOnRepeatedDialFailure(t *testing.T) {
	conn := xm6Connector()
	conn.dialErr = errors.New("host is down")
	g := newTestGateway(conn)
	ctx := context.Background()

	_, err := g.Connect(ctx, "")
	require.Error(t, err)
	_, err = g.Connect(ctx, "")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrCircuitOpen, "阈值内仍应真实拨号")

	// 达到阈值后快速失败，不再触达蓝牙栈
	_, err = g.Connect(ctx, "")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, conn.dialCount())
	assert.Equal(t, BreakerOpen.String(), g.RuntimeStats().Breaker.State)
}

// TestGateway_ConnectUnknownAddress 测试未配对地址
func TestGateway_ConnectUnknownAddress(t *testing.T) {
	g := newTestGateway(xm6Connector())
	_, err := g.Connect(context.Background(), "00:00:00:00:00:00")
	assert.ErrorIs(t, err, bluetooth.ErrDeviceNotFound)
}

// TestGateway_NoPairedDevices 测试无可用设备时的自动选择
func TestGateway_NoPairedDevices(t *testing.T) {
	g := newTestGateway(&fakeConnector{})
	_, err := g.Connect(context.Background(), "")
	assert.ErrorIs(t, err, bluetooth.ErrDeviceNotFound)
}
