package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数，启动时读取一次，此后只读。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	Upstream        string   `mapstructure:"Upstream"`
	MaxCacheAgeDays float64  `mapstructure:"MaxCacheAgeDays"`
	SweepInterval   Duration `mapstructure:"SweepInterval"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// Config 是配置文件 + 环境变量合并后的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
}

// MaxCacheAge 将天数换算为 time.Duration，供清理任务比较文件年龄。
func (g GlobalConfig) MaxCacheAge() time.Duration {
	return time.Duration(g.MaxCacheAgeDays * float64(24*time.Hour))
}

// UpstreamBase 返回去掉尾部斜杠的上游地址，方便直接拼接请求路径。
func (g GlobalConfig) UpstreamBase() string {
	return strings.TrimRight(strings.TrimSpace(g.Upstream), "/")
}
