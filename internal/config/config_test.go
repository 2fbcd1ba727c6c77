package config

import (
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.SweepInterval.DurationValue() != time.Hour {
		t.Fatalf("SweepInterval 应解析为 1h，得到 %s", cfg.Global.SweepInterval.DurationValue())
	}
	if cfg.Global.MaxCacheAge() != 72*time.Hour {
		t.Fatalf("MaxCacheAge 应为 3 天，得到 %s", cfg.Global.MaxCacheAge())
	}
	if cfg.Global.StoragePath == "" || cfg.Global.StoragePath[0] != '/' {
		t.Fatalf("StoragePath 应被转换为绝对路径，得到 %s", cfg.Global.StoragePath)
	}
	if cfg.Global.UpstreamTimeout.DurationValue() != 0 {
		t.Fatalf("UpstreamTimeout 默认不应覆盖 transport 超时")
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("无配置文件时应使用默认值: %v", err)
	}
	if cfg.Global.Upstream != DefaultUpstream {
		t.Fatalf("默认上游错误: %s", cfg.Global.Upstream)
	}
	if cfg.Global.MaxCacheAgeDays != 3 {
		t.Fatalf("默认缓存天数应为 3，得到 %v", cfg.Global.MaxCacheAgeDays)
	}
	if cfg.Global.SweepInterval.DurationValue() != time.Hour {
		t.Fatalf("默认清理间隔应为 3600s，得到 %s", cfg.Global.SweepInterval.DurationValue())
	}
	if cfg.Global.ListenPort != 8000 {
		t.Fatalf("默认端口应为 8000，得到 %d", cfg.Global.ListenPort)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	if _, err := Load(testConfigPath(t, "invalid.toml")); err == nil {
		t.Fatalf("不合法的配置应返回错误")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateFields(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(*Config)
		shouldErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"https upstream with path", func(c *Config) { c.Global.Upstream = "https://mirror.example/pub" }, false},
		{"ftp upstream", func(c *Config) { c.Global.Upstream = "ftp://mirror.example" }, true},
		{"upstream without host", func(c *Config) { c.Global.Upstream = "https://" }, true},
		{"upstream with query", func(c *Config) { c.Global.Upstream = "https://mirror.example?x=1" }, true},
		{"zero max age", func(c *Config) { c.Global.MaxCacheAgeDays = 0 }, true},
		{"zero interval", func(c *Config) { c.Global.SweepInterval = 0 }, true},
		{"negative timeout", func(c *Config) { c.Global.UpstreamTimeout = Duration(-time.Second) }, true},
		{"empty storage", func(c *Config) { c.Global.StoragePath = " " }, true},
		{"bad log level", func(c *Config) { c.Global.LogLevel = "loud" }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestFieldErrorNamesField(t *testing.T) {
	cfg := validConfig()
	cfg.Global.MaxCacheAgeDays = -1
	err := cfg.Validate()
	fieldErr, ok := err.(FieldError)
	if !ok {
		t.Fatalf("期望 FieldError，得到 %T", err)
	}
	if fieldErr.Field != "Global.MaxCacheAgeDays" {
		t.Fatalf("字段路径错误: %s", fieldErr.Field)
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:      8000,
			LogLevel:        "info",
			StoragePath:     "./cache",
			Upstream:        DefaultUpstream,
			MaxCacheAgeDays: 3,
			SweepInterval:   Duration(time.Hour),
		},
	}
}
