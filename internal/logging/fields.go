package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/any-hub/apk-mirror/internal/version"
)

// BaseFields 构建 action + 配置路径 + 版本等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
		"version":    version.Full(),
	}
}

// RequestFields 提供缓存键/文件类别/命中状态字段，供代理请求日志复用。
func RequestFields(key, class string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"key":       key,
		"class":     class,
		"cache_hit": cacheHit,
	}
}

// OrDiscard 在 logger 为空时返回丢弃输出的实例，避免组件内部到处判空。
func OrDiscard(logger logrus.FieldLogger) logrus.FieldLogger {
	if logger == nil {
		return Discard()
	}
	return logger
}
