package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Store 负责管理磁盘缓存的读写与过期清理。磁盘布局遵循：
//
//	<StoragePath>/<Key>    # Key 即请求路径，例如 /alpine/3.18/main/x86_64/foo.apk
//
// 每个条目仅由正文文件组成，文件的 ModTime/Size 由文件系统提供。
type Store interface {
	// Exists 仅检查正文文件是否存在，不判断新鲜度；过期由清理任务负责。
	Exists(ctx context.Context, key string) bool

	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, key string) (*ReadResult, error)

	// Put 将上游响应写入缓存，并产出新的 Entry 描述。实现需通过临时文件 + rename
	// 保证写入原子性，并在失败时清理临时文件。可选地根据 opts.ModTime 设置文件时间戳。
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除正文文件，文件不存在时视为成功。
	Remove(ctx context.Context, key string) error

	// SweepExpired 遍历缓存目录，删除修改时间早于 maxAge 的文件。单个文件删除失败
	// 只记录日志并计入 Failed，不会中断整个遍历。
	SweepExpired(ctx context.Context, maxAge time.Duration) (SweepReport, error)
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
}

// Entry 表示一次缓存命中结果，包含绝对文件路径及文件信息。
type Entry struct {
	Key       string    `json:"key"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ReadResult 组合 Entry 与正文 Reader，便于代理层直接将 Body 流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// SweepReport 汇总一次过期清理的结果。
type SweepReport struct {
	Scanned int           `json:"scanned"`
	Removed int           `json:"removed"`
	Failed  int           `json:"failed"`
	Elapsed time.Duration `json:"elapsed"`
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrInvalidKey 表示缓存键会越出缓存根目录。
	ErrInvalidKey = errors.New("invalid cache key")
)

// FSError 包装目录创建、写入、重命名、删除等文件系统失败。
type FSError struct {
	Op   string
	Path string
	Err  error
}

func (e *FSError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FSError) Unwrap() error {
	return e.Err
}

func fsError(op, path string, err error) error {
	return &FSError{Op: op, Path: path, Err: err}
}
