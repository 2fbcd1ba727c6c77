package apk

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrInvalidPath 表示请求路径无法安全映射到缓存目录。
var ErrInvalidPath = errors.New("invalid request path")

// Target 描述一次请求映射出的缓存键、磁盘位置与上游地址。
type Target struct {
	// Key 是规范化后的请求路径，同时作为缓存键与单飞分组键。
	Key         string
	FilePath    string
	DirPath     string
	UpstreamURL string
}

// Mapper 将请求路径映射为缓存文件与上游 URL，不持有可变状态。
type Mapper struct {
	root     string
	upstream string
}

// NewMapper 以缓存根目录与上游地址构建 Mapper，root 会被转换为绝对路径。
func NewMapper(root, upstream string) (*Mapper, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("cache root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}

	base := strings.TrimRight(strings.TrimSpace(upstream), "/")
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("upstream must be an absolute url: %s", upstream)
	}

	return &Mapper{root: abs, upstream: base}, nil
}

// Root 返回缓存根目录的绝对路径。
func (m *Mapper) Root() string {
	return m.root
}

// Upstream 返回去掉尾部斜杠的上游地址。
func (m *Mapper) Upstream() string {
	return m.upstream
}

// Map 将请求路径映射为 Target；路径段数量由路由保证，这里只负责拒绝越界路径。
func (m *Mapper) Map(requestPath string) (Target, error) {
	key, err := CleanKey(requestPath)
	if err != nil {
		return Target{}, err
	}

	filePath := filepath.Join(m.root, filepath.FromSlash(strings.TrimPrefix(key, "/")))
	return Target{
		Key:         key,
		FilePath:    filePath,
		DirPath:     filepath.Dir(filePath),
		UpstreamURL: m.upstream + (&url.URL{Path: key}).EscapedPath(),
	}, nil
}

// CleanKey 校验请求路径并返回解码后的缓存键。出现 ".."、"."、空段、反斜杠或 NUL 时
// 直接拒绝而不是尝试纠正，百分号编码的同类写法同样拒绝。
// 同一文件的不同编码写法（如 libstdc++ 与 libstdc%2B%2B）得到同一个 Key。
func CleanKey(requestPath string) (string, error) {
	if requestPath == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if !strings.HasPrefix(requestPath, "/") {
		return "", fmt.Errorf("%w: must start with /", ErrInvalidPath)
	}
	if strings.ContainsAny(requestPath, "\\\x00") {
		return "", fmt.Errorf("%w: forbidden character", ErrInvalidPath)
	}

	segments := strings.Split(strings.TrimPrefix(requestPath, "/"), "/")
	decodedSegments := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment == "" {
			return "", fmt.Errorf("%w: empty segment", ErrInvalidPath)
		}
		decoded, err := url.PathUnescape(segment)
		if err != nil {
			return "", fmt.Errorf("%w: bad escape in %q", ErrInvalidPath, segment)
		}
		if decoded == "." || decoded == ".." {
			return "", fmt.Errorf("%w: dot segment", ErrInvalidPath)
		}
		if strings.ContainsAny(decoded, "/\\\x00") {
			return "", fmt.Errorf("%w: encoded separator", ErrInvalidPath)
		}
		decodedSegments = append(decodedSegments, decoded)
	}
	return "/" + strings.Join(decodedSegments, "/"), nil
}
