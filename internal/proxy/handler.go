package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/apk-mirror/internal/apk"
	"github.com/any-hub/apk-mirror/internal/cache"
	"github.com/any-hub/apk-mirror/internal/logging"
	"github.com/any-hub/apk-mirror/internal/server"
	"github.com/any-hub/apk-mirror/internal/upstream"
)

// statusClientClosedRequest 沿用 nginx 的 499 约定。
const statusClientClosedRequest = 499

// Server 抽象 Coordinator.Serve，便于 handler 测试注入桩实现。
type Server interface {
	Serve(ctx context.Context, requestPath string) (*Artifact, error)
}

// Handler 将 Coordinator 的结果转换为 HTTP 响应，所有失败都在这里落地为客户端可见的状态码。
type Handler struct {
	coordinator Server
	logger      logrus.FieldLogger
}

// NewHandler constructs a proxy handler around the fetch coordinator.
func NewHandler(coordinator Server, logger logrus.FieldLogger) *Handler {
	return &Handler{
		coordinator: coordinator,
		logger:      logging.OrDiscard(logger),
	}
}

// Handle 实现 server.ProxyHandler：查缓存或回源，然后流式返回文件。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)
	// 使用原始路径：fasthttp 的 Path() 会归一化 ".."，越界判断与解码统一交给 Mapper。
	requestPath := string(c.Request().URI().PathOriginal())

	artifact, err := h.coordinator.Serve(c.Context(), requestPath)
	if err != nil {
		status, code := classifyError(err)
		h.logResult(requestPath, "", requestID, status, false, false, started, err)
		if status == statusClientClosedRequest {
			// 仅当 Serve 因请求上下文结束而返回时出现，此时不再写错误正文。
			return c.SendStatus(status)
		}
		return h.writeError(c, status, code)
	}
	defer artifact.Body.Close()

	c.Set(fiber.HeaderContentType, artifact.ContentType)
	c.Response().Header.SetContentLength(int(artifact.Size))
	if !artifact.ModTime.IsZero() {
		c.Set(fiber.HeaderLastModified, artifact.ModTime.UTC().Format(http.TimeFormat))
	}
	c.Set("X-Apk-Mirror-Upstream", artifact.UpstreamURL)
	c.Set("X-Apk-Mirror-Cache-Hit", boolHeader(artifact.CacheHit))
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(fiber.StatusOK)

	if c.Method() == http.MethodHead {
		h.logResult(artifact.Key, artifact.UpstreamURL, requestID, fiber.StatusOK, artifact.CacheHit, artifact.Shared, started, nil)
		return nil
	}

	_, err = io.Copy(c.Response().BodyWriter(), artifact.Body)
	h.logResult(artifact.Key, artifact.UpstreamURL, requestID, fiber.StatusOK, artifact.CacheHit, artifact.Shared, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "read cache failed: "+err.Error())
	}
	return nil
}

// classifyError 将错误分类映射为 HTTP 状态码与错误码。
func classifyError(err error) (int, string) {
	var (
		statusErr    *upstream.StatusError
		transportErr *upstream.TransportError
		fsErr        *cache.FSError
	)
	switch {
	case errors.Is(err, apk.ErrInvalidPath), errors.Is(err, cache.ErrInvalidKey):
		return fiber.StatusBadRequest, "invalid_path"
	case errors.As(err, &statusErr):
		if statusErr.StatusCode == http.StatusNotFound {
			return fiber.StatusNotFound, "upstream_not_found"
		}
		return fiber.StatusBadGateway, "upstream_unavailable"
	case errors.As(err, &transportErr):
		if transportErr.Timeout() {
			return fiber.StatusGatewayTimeout, "upstream_timeout"
		}
		return fiber.StatusBadGateway, "upstream_unreachable"
	case errors.As(err, &fsErr):
		return fiber.StatusBadGateway, "cache_write_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return statusClientClosedRequest, "client_closed_request"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	key string,
	upstreamURL string,
	requestID string,
	status int,
	cacheHit bool,
	shared bool,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(key, string(apk.Classify(key)), cacheHit)
	fields["action"] = "proxy"
	fields["status"] = status
	fields["shared"] = shared
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if upstreamURL != "" {
		fields["upstream"] = upstreamURL
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}

func boolHeader(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
