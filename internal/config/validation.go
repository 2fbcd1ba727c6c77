package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError(globalField("ListenPort"), "必须在 1-65535")
	}
	if strings.TrimSpace(g.StoragePath) == "" {
		return newFieldError(globalField("StoragePath"), "不能为空")
	}
	if err := validateUpstream(g.Upstream); err != nil {
		return fmt.Errorf("%s: %w", globalField("Upstream"), err)
	}
	if g.MaxCacheAgeDays <= 0 {
		return newFieldError(globalField("MaxCacheAgeDays"), "必须大于 0")
	}
	if g.SweepInterval.DurationValue() <= 0 {
		return newFieldError(globalField("SweepInterval"), "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() < 0 {
		return newFieldError(globalField("UpstreamTimeout"), "不能为负数")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError(globalField("LogLevel"), fmt.Sprintf("无法识别: %s", g.LogLevel))
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return fmt.Errorf("上游不应包含查询参数: %s", raw)
	}
	return nil
}
