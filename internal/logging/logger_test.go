package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/apk-mirror/internal/config"
	"github.com/any-hub/apk-mirror/internal/version"
)

func TestConfigureDefaultsToStdout(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("未指定文件时应输出到 stdout")
	}
}

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := InitLogger(config.GlobalConfig{LogLevel: "loud"}); err == nil {
		t.Fatalf("未知日志级别应返回错误")
	}
}

func TestInitLoggerFallbackOnPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root 用户不受目录权限限制")
	}
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	cfg := config.GlobalConfig{
		LogLevel:    "info",
		LogFilePath: filepath.Join(blocked, "sub", "apk-mirror.log"),
	}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("初始化不应失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("fallback 时应退回 stdout")
	}
}

func TestConfigureCreatesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apk-mirror.log")
	cfg := config.GlobalConfig{LogLevel: "debug", LogFilePath: path}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.Info("test")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("预期创建日志文件: %v", err)
	}
}

func TestInitLoggerLeavesGlobalLoggerUntouched(t *testing.T) {
	before := logrus.StandardLogger().Out
	if _, err := InitLogger(config.GlobalConfig{LogLevel: "debug", LogFilePath: filepath.Join(t.TempDir(), "x.log")}); err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	if logrus.StandardLogger().Out != before {
		t.Fatalf("InitLogger 不应修改全局 logrus 输出")
	}
}

func TestRequestFieldsShape(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(RequestFields("/alpine/v3.18/main/x86_64/foo.apk", "package", true)).Info("proxy_complete")
	out := buf.String()
	for _, want := range []string{`"cache_hit":true`, `"class":"package"`, `"key":"/alpine/v3.18/main/x86_64/foo.apk"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("日志缺少字段 %s: %s", want, out)
		}
	}
}

func TestBaseFieldsCarryVersion(t *testing.T) {
	fields := BaseFields("startup", "/etc/apk-mirror.toml")
	if fields["version"] != version.Full() {
		t.Fatalf("基础字段应包含版本信息，得到 %v", fields["version"])
	}
	if fields["action"] != "startup" || fields["configPath"] != "/etc/apk-mirror.toml" {
		t.Fatalf("基础字段不完整: %v", fields)
	}
}
