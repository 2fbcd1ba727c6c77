package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/apk-mirror/internal/apk"
	"github.com/any-hub/apk-mirror/internal/cache"
	"github.com/any-hub/apk-mirror/internal/logging"
	"github.com/any-hub/apk-mirror/internal/metrics"
	"github.com/any-hub/apk-mirror/internal/upstream"
)

// ErrFillPanic 表示回源或写缓存过程中发生了 panic。
var ErrFillPanic = errors.New("fill panicked")

// OriginFetcher 抽象回源实现，测试中可替换为计数桩。
type OriginFetcher interface {
	Fetch(ctx context.Context, url string) upstream.Result
}

// CoordinatorOptions 汇总 Coordinator 的依赖，全部由启动流程注入。
type CoordinatorOptions struct {
	Mapper  *apk.Mapper
	Store   cache.Store
	Fetcher OriginFetcher
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Coordinator 负责 “缓存命中直接返回，否则回源 → 写缓存 → 返回” 的全流程。
// 同一 Key 同时只允许一个回源在途，其余调用方等待并复用同一结果（成功或失败）。
type Coordinator struct {
	mapper  *apk.Mapper
	store   cache.Store
	fetcher OriginFetcher
	logger  logrus.FieldLogger
	metrics *metrics.Metrics

	group   singleflight.Group
	waiting atomic.Int64
}

// Artifact 是一次 Serve 的结果。Body 必须由调用方关闭。
type Artifact struct {
	Key         string
	Class       apk.Class
	ContentType string
	UpstreamURL string
	Size        int64
	ModTime     time.Time
	CacheHit    bool
	// Shared 表示本次结果来自与其他请求合并的同一次回源。
	Shared bool
	Body   io.ReadSeekCloser
}

// fillResult 在单飞分组内被所有等待者共享，Body 只读。
type fillResult struct {
	body    []byte
	modTime time.Time
	cached  bool
}

// NewCoordinator 校验依赖并构造 Coordinator。
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Mapper == nil {
		return nil, errors.New("path mapper is required")
	}
	if opts.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("origin fetcher is required")
	}
	return &Coordinator{
		mapper:  opts.Mapper,
		store:   opts.Store,
		fetcher: opts.Fetcher,
		logger:  logging.OrDiscard(opts.Logger),
		metrics: opts.Metrics,
	}, nil
}

// Waiting 返回当前正在等待单飞结果的调用方数量。
func (c *Coordinator) Waiting() int64 {
	return c.waiting.Load()
}

// Serve 返回 requestPath 对应的文件内容。命中缓存时不会访问上游；
// 未命中时由单飞分组回源，ctx 取消只影响当前调用方，不会取消共享的回源与写缓存。
func (c *Coordinator) Serve(ctx context.Context, requestPath string) (*Artifact, error) {
	target, err := c.mapper.Map(requestPath)
	if err != nil {
		return nil, err
	}

	if artifact, ok := c.lookup(ctx, target); ok {
		c.metrics.ObserveCacheLookup(true)
		return artifact, nil
	}
	c.metrics.ObserveCacheLookup(false)

	c.waiting.Add(1)
	ch := c.group.DoChan(target.Key, func() (val interface{}, err error) {
		// DoChan 会在新的 goroutine 中重新抛出 panic，必须在这里转成错误。
		defer func() {
			if r := recover(); r != nil {
				c.logger.WithFields(logging.RequestFields(target.Key, string(apk.Classify(target.Key)), false)).
					WithField("panic", fmt.Sprint(r)).
					Error("fill_panic")
				val, err = nil, fmt.Errorf("fill %s: %w: %v", target.Key, ErrFillPanic, r)
			}
		}()
		return c.fill(context.WithoutCancel(ctx), target)
	})

	select {
	case res := <-ch:
		c.waiting.Add(-1)
		if res.Shared {
			c.metrics.ObserveCoalesced()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		filled := res.Val.(*fillResult)
		return &Artifact{
			Key:         target.Key,
			Class:       apk.Classify(target.Key),
			ContentType: apk.ContentType(target.Key),
			UpstreamURL: target.UpstreamURL,
			Size:        int64(len(filled.body)),
			ModTime:     filled.modTime,
			CacheHit:    filled.cached,
			Shared:      res.Shared,
			Body:        newBytesBody(filled.body),
		}, nil
	case <-ctx.Done():
		c.waiting.Add(-1)
		return nil, ctx.Err()
	}
}

// lookup 走快速路径：Exists 之后 Get 仍可能因清理任务删除而返回 ErrNotFound，
// 此时按未命中处理并重新回源。
func (c *Coordinator) lookup(ctx context.Context, target apk.Target) (*Artifact, bool) {
	if !c.store.Exists(ctx, target.Key) {
		return nil, false
	}
	result, err := c.store.Get(ctx, target.Key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			c.logger.WithError(err).
				WithFields(logging.RequestFields(target.Key, string(apk.Classify(target.Key)), false)).
				Warn("cache_get_failed")
		}
		return nil, false
	}
	return &Artifact{
		Key:         target.Key,
		Class:       apk.Classify(target.Key),
		ContentType: apk.ContentType(target.Key),
		UpstreamURL: target.UpstreamURL,
		Size:        result.Entry.SizeBytes,
		ModTime:     result.Entry.ModTime,
		CacheHit:    true,
		Body:        result.Reader,
	}, true
}

// fill 在单飞分组内执行：先复查缓存（上一轮回源可能刚写完），再回源并写缓存。
// 失败不会写入缓存，也不做负缓存，下一次请求会重新回源。
func (c *Coordinator) fill(ctx context.Context, target apk.Target) (*fillResult, error) {
	if cached, ok := c.readCached(ctx, target.Key); ok {
		return cached, nil
	}

	result := c.fetcher.Fetch(ctx, target.UpstreamURL)
	c.metrics.ObserveUpstreamFetch(result.Outcome.String())
	if !result.OK() {
		return nil, result.Err()
	}

	entry, err := c.store.Put(ctx, target.Key, bytes.NewReader(result.Body), cache.PutOptions{})
	c.metrics.ObserveCacheWrite(err)
	if err != nil {
		c.logger.WithError(err).
			WithFields(logging.RequestFields(target.Key, string(apk.Classify(target.Key)), false)).
			Error("cache_write_failed")
		return nil, fmt.Errorf("store %s: %w", target.Key, err)
	}

	return &fillResult{body: result.Body, modTime: entry.ModTime}, nil
}

func (c *Coordinator) readCached(ctx context.Context, key string) (*fillResult, bool) {
	result, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	if err != nil {
		return nil, false
	}
	return &fillResult{body: body, modTime: result.Entry.ModTime, cached: true}, true
}

type bytesBody struct {
	*bytes.Reader
}

func newBytesBody(b []byte) io.ReadSeekCloser {
	return bytesBody{Reader: bytes.NewReader(b)}
}

func (bytesBody) Close() error { return nil }
