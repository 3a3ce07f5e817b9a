package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	Pprof        HTTPPprof     `mapstructure:"pprof"`
}

// HTTPPprof HTTP pprof 配置
type HTTPPprof struct {
	Enable bool   `mapstructure:"enable"`
	Prefix string `mapstructure:"prefix"`
}

// APIConfig 控制接口配置
type APIConfig struct {
	AuthEnabled    bool          `mapstructure:"authEnabled"`
	APIKeys        []string      `mapstructure:"apiKeys"`
	SwaggerEnabled bool          `mapstructure:"swaggerEnabled"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
}

// BluetoothConfig 蓝牙连接配置
type BluetoothConfig struct {
	NameFilter       string        `mapstructure:"nameFilter"`
	ConnectTimeout   time.Duration `mapstructure:"connectTimeout"`
	BreakerThreshold int           `mapstructure:"breakerThreshold"`
	BreakerCooldown  time.Duration `mapstructure:"breakerCooldown"`
}

// ProtocolConfig MDR 传输层配置
type ProtocolConfig struct {
	CommandTimeout       time.Duration `mapstructure:"commandTimeout"`
	HandshakeTimeout     time.Duration `mapstructure:"handshakeTimeout"`
	QueueSize            int           `mapstructure:"queueSize"`
	QueueDuringHandshake bool          `mapstructure:"queueDuringHandshake"`
	RatePerSec           int           `mapstructure:"ratePerSec"`
	Burst                int           `mapstructure:"burst"`
	ModelTable           string        `mapstructure:"modelTable"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// Config 顶层配置结构
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	API       APIConfig       `mapstructure:"api"`
	Bluetooth BluetoothConfig `mapstructure:"bluetooth"`
	Protocol  ProtocolConfig  `mapstructure:"protocol"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 HEADSET_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv("HEADSET_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	// 默认值
	setDefaults(v)

	// 环境变量覆盖：前缀 HEADSET_，并将点号替换为下划线
	v.SetEnvPrefix("HEADSET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if fmt.Sprintf("%T", err) != fmt.Sprintf("%T", notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "headset-server")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")
	v.SetDefault("http.pprof.enable", false)
	v.SetDefault("http.pprof.prefix", "/debug/pprof")

	v.SetDefault("api.authEnabled", false)
	v.SetDefault("api.swaggerEnabled", false)
	v.SetDefault("api.requestTimeout", "10s")

	v.SetDefault("bluetooth.nameFilter", "WH-1000XM")
	v.SetDefault("bluetooth.connectTimeout", "20s")
	v.SetDefault("bluetooth.breakerThreshold", 3)
	v.SetDefault("bluetooth.breakerCooldown", "30s")

	v.SetDefault("protocol.commandTimeout", "3s")
	v.SetDefault("protocol.handshakeTimeout", "5s")
	v.SetDefault("protocol.queueSize", 64)
	v.SetDefault("protocol.queueDuringHandshake", false)
	v.SetDefault("protocol.ratePerSec", 10)
	v.SetDefault("protocol.burst", 5)
	v.SetDefault("protocol.modelTable", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/headset-server.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}
