package upstream

import (
	"errors"
	"fmt"
	"net"
)

// Outcome 标记一次回源的结果类别。
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeUnavailable
	OutcomeTransportError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Result 是 Fetch 的带标签返回值：Success(Body)、Unavailable(StatusCode)、TransportError(Cause)。
type Result struct {
	Outcome    Outcome
	URL        string
	Body       []byte
	StatusCode int
	Cause      error
}

// Success 构造成功结果。
func Success(url string, body []byte) Result {
	return Result{Outcome: OutcomeSuccess, URL: url, Body: body, StatusCode: 200}
}

// Unavailable 构造上游非 200 的结果。
func Unavailable(url string, status int) Result {
	return Result{Outcome: OutcomeUnavailable, URL: url, StatusCode: status}
}

// Transport 构造网络/协议失败的结果。
func Transport(url string, cause error) Result {
	return Result{Outcome: OutcomeTransportError, URL: url, Cause: cause}
}

// OK 表示结果是否携带可缓存的正文。
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// Err 将失败结果转换为可被 errors.As 匹配的错误；成功时返回 nil。
func (r Result) Err() error {
	switch r.Outcome {
	case OutcomeSuccess:
		return nil
	case OutcomeUnavailable:
		return &StatusError{URL: r.URL, StatusCode: r.StatusCode}
	default:
		return &TransportError{URL: r.URL, Err: r.Cause}
	}
}

// StatusError 表示上游返回了非 200 状态码。
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.StatusCode)
}

// TransportError 表示连接、DNS、TLS 或读取正文失败。
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream %s unreachable: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout 判断失败是否由超时导致，HTTP 层据此区分 502/504。
func (e *TransportError) Timeout() bool {
	var netErr net.Error
	if errors.As(e.Err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
