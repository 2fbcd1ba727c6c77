package upstream

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/apk-mirror/internal/logging"
	"github.com/any-hub/apk-mirror/internal/version"
)

// maxDrainBytes 限制非 200 响应被读取丢弃的字节数，超出部分直接断开连接。
const maxDrainBytes = 64 * 1024

// Fetcher 对上游执行单次阻塞 GET，不重试，也不额外改写重定向策略。
type Fetcher struct {
	client *http.Client
	logger logrus.FieldLogger
}

// NewFetcher 使用共享 http.Client 构造 Fetcher。
func NewFetcher(client *http.Client, logger logrus.FieldLogger) *Fetcher {
	if client == nil {
		client = NewClient(nil)
	}
	return &Fetcher{
		client: client,
		logger: logging.OrDiscard(logger),
	}
}

// Fetch 请求 url 并将响应归类为 Result，任何失败都以 Result 返回而不会 panic。
func (f *Fetcher) Fetch(ctx context.Context, url string) Result {
	started := time.Now()
	result := f.do(ctx, url)

	fields := logrus.Fields{
		"action":          "upstream_fetch",
		"upstream":        url,
		"outcome":         result.Outcome.String(),
		"upstream_status": result.StatusCode,
		"elapsed_ms":      time.Since(started).Milliseconds(),
	}
	switch result.Outcome {
	case OutcomeSuccess:
		fields["size_bytes"] = len(result.Body)
		f.logger.WithFields(fields).Info("upstream_fetch_complete")
	case OutcomeUnavailable:
		f.logger.WithFields(fields).Warn("upstream_unavailable")
	default:
		f.logger.WithError(result.Cause).WithFields(fields).Error("upstream_unreachable")
	}
	return result
}

func (f *Fetcher) do(ctx context.Context, url string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Transport(url, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := f.client.Do(req)
	if err != nil {
		return Transport(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		return Unavailable(url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transport(url, err)
	}
	return Success(url, body)
}
