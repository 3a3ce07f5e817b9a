//go:build linux

package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	bluezService    = "org.bluez"
	profileIface    = "org.bluez.Profile1"
	profileMgrIface = "org.bluez.ProfileManager1"
	deviceIface     = "org.bluez.Device1"
	adapterIface    = "org.bluez.Adapter1"
	objManagerIface = "org.freedesktop.DBus.ObjectManager"

	profilePathV2 = dbus.ObjectPath("/org/headset_server/profile/v2")
	profilePathV1 = dbus.ObjectPath("/org/headset_server/profile/v1")
)

var errClosed = errors.New("bluetooth connector closed")

// connResult 一次 NewConnection 送达的套接字
type connResult struct {
	fd   int
	path dbus.ObjectPath
}

// sppProfile 实现 org.bluez.Profile1，把 NewConnection 的描述符交给等待中的拨号
// 同一 handler 以两个对象路径注册，分别对应 V2/V1 服务 UUID
type sppProfile struct {
	mu      sync.Mutex
	pending chan connResult
}

// Release BlueZ 注销配置文件时回调
func (p *sppProfile) Release() *dbus.Error { return nil }

// Cancel 连接请求被取消时回调
func (p *sppProfile) Cancel() *dbus.Error { return nil }

// RequestDisconnection 远端请求断开；信道关闭由持有方完成
func (p *sppProfile) RequestDisconnection(dbus.ObjectPath) *dbus.Error { return nil }

// NewConnection 送达 RFCOMM 套接字。无等待中的拨号时关闭描述符避免泄漏
func (p *sppProfile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	p.mu.Lock()
	ch := p.pending
	p.mu.Unlock()
	if ch != nil {
		select {
		case ch <- connResult{fd: int(fd), path: dev}:
			return nil
		default:
		}
	}
	_ = os.NewFile(uintptr(fd), "rfcomm").Close()
	return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []interface{}{"no pending dial"}}
}

func (p *sppProfile) arm() chan connResult {
	ch := make(chan connResult, 1)
	p.mu.Lock()
	p.pending = ch
	p.mu.Unlock()
	return ch
}

func (p *sppProfile) disarm() {
	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()
}

// bluezConnector 基于 BlueZ D-Bus 的连接器
// 总线连接与配置文件注册延迟到首次使用；拨号由网关串行发起
type bluezConnector struct {
	cfg    Config
	logger *zap.Logger

	mu         sync.Mutex
	bus        *dbus.Conn
	prof       *sppProfile
	registered bool
	closed     bool
}

// New 创建 BlueZ 连接器
func New(cfg Config, logger *zap.Logger) (Connector, error) {
	cfg.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &bluezConnector{cfg: cfg, logger: logger, prof: &sppProfile{}}, nil
}

func (c *bluezConnector) ensureBusLocked() error {
	if c.bus != nil {
		return nil
	}
	bus, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("connect system bus: %w", err)
	}
	c.bus = bus
	return nil
}

// ensureProfilesLocked 向 BlueZ 注册两个客户端配置文件
// RFCOMM 信道号由远端 SDP 记录解析，客户端角色无需指定
func (c *bluezConnector) ensureProfilesLocked() error {
	if c.registered {
		return nil
	}
	if err := c.bus.Export(c.prof, profilePathV2, profileIface); err != nil {
		return fmt.Errorf("export profile object: %w", err)
	}
	if err := c.bus.Export(c.prof, profilePathV1, profileIface); err != nil {
		return fmt.Errorf("export profile object: %w", err)
	}
	opts := map[string]dbus.Variant{
		"Name":        dbus.MakeVariant("Headset Control"),
		"Role":        dbus.MakeVariant("client"),
		"AutoConnect": dbus.MakeVariant(false),
	}
	pm := c.bus.Object(bluezService, "/org/bluez")
	if call := pm.Call(profileMgrIface+".RegisterProfile", 0, profilePathV2, ServiceUUIDV2, opts); call.Err != nil {
		return fmt.Errorf("register profile v2: %w", call.Err)
	}
	if call := pm.Call(profileMgrIface+".RegisterProfile", 0, profilePathV1, ServiceUUIDV1, opts); call.Err != nil {
		return fmt.Errorf("register profile v1: %w", call.Err)
	}
	c.registered = true
	c.logger.Info("bluez profiles registered")
	return nil
}

func (c *bluezConnector) acquireBus() (*dbus.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClosed
	}
	if err := c.ensureBusLocked(); err != nil {
		return nil, err
	}
	return c.bus, nil
}

// Discover 枚举已配对且名称匹配过滤子串的设备
func (c *bluezConnector) Discover(ctx context.Context) ([]DeviceInfo, error) {
	bus, err := c.acquireBus()
	if err != nil {
		return nil, err
	}
	objs, err := managedObjects(ctx, bus)
	if err != nil {
		return nil, err
	}
	filter := strings.ToUpper(c.cfg.NameFilter)
	out := make([]DeviceInfo, 0, 2)
	for path, ifaces := range objs {
		info, ok := deviceFromProps(path, ifaces)
		if !ok {
			continue
		}
		if !info.Paired || !strings.Contains(strings.ToUpper(info.Name), filter) {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// Lookup 按地址在托管对象中查找设备
func (c *bluezConnector) Lookup(ctx context.Context, address string) (DeviceInfo, error) {
	bus, err := c.acquireBus()
	if err != nil {
		return DeviceInfo{}, err
	}
	_, info, err := findDevice(ctx, bus, address)
	return info, err
}

// Dial 建立 RFCOMM 信道：解析设备对象、发起 ConnectProfile、等待套接字送达
func (c *bluezConnector) Dial(ctx context.Context, address string) (io.ReadWriteCloser, DeviceInfo, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, DeviceInfo{}, errClosed
	}
	if err := c.ensureBusLocked(); err != nil {
		c.mu.Unlock()
		return nil, DeviceInfo{}, err
	}
	if err := c.ensureProfilesLocked(); err != nil {
		c.mu.Unlock()
		return nil, DeviceInfo{}, err
	}
	bus := c.bus
	c.mu.Unlock()

	path, info, err := findDevice(ctx, bus, address)
	if err != nil {
		return nil, DeviceInfo{}, err
	}

	ch := c.prof.arm()
	defer c.prof.disarm()

	if err := connectProfile(ctx, bus.Object(bluezService, path)); err != nil {
		return nil, DeviceInfo{}, err
	}

	select {
	case res := <-ch:
		c.logger.Info("rfcomm channel established",
			zap.String("address", info.Address),
			zap.String("name", info.Name))
		return os.NewFile(uintptr(res.fd), "rfcomm"), info, nil
	case <-ctx.Done():
		return nil, DeviceInfo{}, fmt.Errorf("await rfcomm socket: %w", ctx.Err())
	}
}

// Ping 确认总线可达且至少存在一个适配器
func (c *bluezConnector) Ping(ctx context.Context) error {
	bus, err := c.acquireBus()
	if err != nil {
		return err
	}
	objs, err := managedObjects(ctx, bus)
	if err != nil {
		return err
	}
	for _, ifaces := range objs {
		if _, ok := ifaces[adapterIface]; ok {
			return nil
		}
	}
	return ErrNoAdapter
}

// Close 注销配置文件并断开总线。可重复调用
func (c *bluezConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.bus == nil {
		return nil
	}
	if c.registered {
		pm := c.bus.Object(bluezService, "/org/bluez")
		_ = pm.Call(profileMgrIface+".UnregisterProfile", 0, profilePathV2).Err
		_ = pm.Call(profileMgrIface+".UnregisterProfile", 0, profilePathV1).Err
	}
	return c.bus.Close()
}

// connectProfile 先尝试 V2 服务，失败回退 V1 以兼容老机型
func connectProfile(ctx context.Context, dev dbus.BusObject) error {
	call := dev.CallWithContext(ctx, deviceIface+".ConnectProfile", 0, ServiceUUIDV2)
	if call.Err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("connect profile: %w", call.Err)
	}
	if fallback := dev.CallWithContext(ctx, deviceIface+".ConnectProfile", 0, ServiceUUIDV1); fallback.Err == nil {
		return nil
	}
	return fmt.Errorf("connect profile: %w", call.Err)
}

func findDevice(ctx context.Context, bus *dbus.Conn, address string) (dbus.ObjectPath, DeviceInfo, error) {
	objs, err := managedObjects(ctx, bus)
	if err != nil {
		return "", DeviceInfo{}, err
	}
	for path, ifaces := range objs {
		info, ok := deviceFromProps(path, ifaces)
		if !ok {
			continue
		}
		if strings.EqualFold(info.Address, address) {
			return path, info, nil
		}
	}
	return "", DeviceInfo{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
}

func managedObjects(ctx context.Context, bus *dbus.Conn) (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := bus.Object(bluezService, "/").CallWithContext(ctx, objManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("get managed objects: %w", call.Err)
	}
	if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("decode managed objects: %w", err)
	}
	return objs, nil
}

func deviceFromProps(path dbus.ObjectPath, ifaces map[string]map[string]dbus.Variant) (DeviceInfo, bool) {
	props, ok := ifaces[deviceIface]
	if !ok {
		return DeviceInfo{}, false
	}
	var info DeviceInfo
	if v, ok := props["Address"]; ok {
		info.Address, _ = v.Value().(string)
	}
	if v, ok := props["Name"]; ok {
		info.Name, _ = v.Value().(string)
	}
	if v, ok := props["Alias"]; ok && info.Name == "" {
		info.Name, _ = v.Value().(string)
	}
	if v, ok := props["Paired"]; ok {
		info.Paired, _ = v.Value().(bool)
	}
	if v, ok := props["Connected"]; ok {
		info.Connected, _ = v.Value().(bool)
	}
	if info.Address == "" {
		info.Address = addressFromPath(path)
	}
	return info, info.Address != ""
}

// addressFromPath 从 /org/bluez/hciX/dev_XX_XX_XX_XX_XX_XX 提取设备地址
func addressFromPath(p dbus.ObjectPath) string {
	s := string(p)
	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}
	return strings.ReplaceAll(s[idx+5:], "_", ":")
}
