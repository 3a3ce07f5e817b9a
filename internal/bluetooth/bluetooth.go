// Package bluetooth 负责发现已配对的索尼耳机并建立 RFCOMM 字节流信道。
// Linux 下通过 BlueZ D-Bus 实现，其他平台提供仅编译通过的占位实现
package bluetooth

import (
	"context"
	"errors"
	"io"
)

// 索尼 MDR 服务 UUID。V2 适用于 XM4 及之后机型，V1 适用于 XM3/早期 XM4
const (
	ServiceUUIDV2 = "956c7b26-d49a-4ba8-b03f-b17d393cb6e2"
	ServiceUUIDV1 = "96cc203e-5068-46ad-b32d-e316f5e069ba"
)

// DefaultNameFilter 已配对设备名的默认匹配子串
const DefaultNameFilter = "WH-1000XM"

var (
	// ErrUnsupported 当前平台没有可用的蓝牙栈实现
	ErrUnsupported = errors.New("bluetooth stack not supported on this platform")
	// ErrNoAdapter 未找到蓝牙适配器
	ErrNoAdapter = errors.New("no bluetooth adapter found")
	// ErrDeviceNotFound 指定地址不在已配对设备中
	ErrDeviceNotFound = errors.New("device not found among paired devices")
)

// DeviceInfo 已配对设备的展示与连接信息
type DeviceInfo struct {
	Address   string `json:"address"`
	Name      string `json:"name"`
	Paired    bool   `json:"paired"`
	Connected bool   `json:"connected"`
}

// Config 连接器配置
type Config struct {
	// NameFilter 设备名匹配子串，空值使用 DefaultNameFilter
	NameFilter string
}

func (c *Config) normalize() {
	if c.NameFilter == "" {
		c.NameFilter = DefaultNameFilter
	}
}

// Connector 蓝牙连接器。Discover 与 Dial 由网关串行调用，Close 幂等
type Connector interface {
	// Discover 列出名称匹配过滤子串的已配对设备
	Discover(ctx context.Context) ([]DeviceInfo, error)
	// Lookup 按地址查找设备，不受名称过滤限制
	Lookup(ctx context.Context, address string) (DeviceInfo, error)
	// Dial 与指定地址的设备建立 RFCOMM 信道，返回的流由调用方关闭
	Dial(ctx context.Context, address string) (io.ReadWriteCloser, DeviceInfo, error)
	// Ping 探测蓝牙栈可达性，用于就绪检查
	Ping(ctx context.Context) error
	// Close 注销配置文件并断开总线
	Close() error
}
