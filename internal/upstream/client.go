package upstream

import (
	"net"
	"net/http"
	"time"

	"github.com/any-hub/apk-mirror/internal/config"
)

// Shared HTTP transport tunings，复用长连接并集中配置拨号/握手超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewClient 返回共享 http.Client，用于所有回源请求。
// 仅当配置了 UpstreamTimeout 时才设置整体超时，否则沿用 transport 默认行为。
func NewClient(cfg *config.Config) *http.Client {
	client := &http.Client{
		Transport: defaultTransport.Clone(),
	}
	if cfg != nil && cfg.Global.UpstreamTimeout.DurationValue() > 0 {
		client.Timeout = cfg.Global.UpstreamTimeout.DurationValue()
	}
	return client
}
