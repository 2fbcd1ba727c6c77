package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultUpstream 是未配置时使用的公共 Alpine 镜像。
const DefaultUpstream = "https://dl-cdn.alpinelinux.org"

// envBindings 列出每个配置键可被覆盖的环境变量，排在前面的优先。
// 沿用旧版部署脚本中的 ORIGINAL_ALPINE_URL / EXPIRED_* 变量名。
var envBindings = map[string][]string{
	"ListenPort":      {"APK_MIRROR_LISTEN_PORT"},
	"LogLevel":        {"APK_MIRROR_LOG_LEVEL"},
	"LogFilePath":     {"APK_MIRROR_LOG_FILE_PATH"},
	"LogMaxSize":      {"APK_MIRROR_LOG_MAX_SIZE"},
	"LogMaxBackups":   {"APK_MIRROR_LOG_MAX_BACKUPS"},
	"LogCompress":     {"APK_MIRROR_LOG_COMPRESS"},
	"StoragePath":     {"APK_MIRROR_STORAGE_PATH"},
	"Upstream":        {"APK_MIRROR_UPSTREAM", "ORIGINAL_ALPINE_URL"},
	"MaxCacheAgeDays": {"APK_MIRROR_MAX_CACHE_AGE_DAYS", "EXPIRED_CACHING_TIME"},
	"SweepInterval":   {"APK_MIRROR_SWEEP_INTERVAL", "EXPIRED_CHECKING_INTERVAL"},
	"UpstreamTimeout": {"APK_MIRROR_UPSTREAM_TIMEOUT"},
}

// Load 读取可选的 TOML 配置文件并叠加环境变量，同时注入默认值与校验逻辑。
// path 为空时仅使用默认值与环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("绑定环境变量失败: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 8000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "cache")
	v.SetDefault("Upstream", DefaultUpstream)
	v.SetDefault("MaxCacheAgeDays", 3)
	v.SetDefault("SweepInterval", 3600)
	v.SetDefault("UpstreamTimeout", 0)
}

func bindEnv(v *viper.Viper) error {
	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return err
		}
	}
	return nil
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 8000
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	if g.StoragePath == "" {
		g.StoragePath = "cache"
	}
	if g.Upstream == "" {
		g.Upstream = DefaultUpstream
	}
	if g.SweepInterval.DurationValue() == 0 {
		g.SweepInterval = Duration(time.Hour)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
