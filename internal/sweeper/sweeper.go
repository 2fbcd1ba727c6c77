package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/apk-mirror/internal/cache"
	"github.com/any-hub/apk-mirror/internal/logging"
	"github.com/any-hub/apk-mirror/internal/metrics"
)

// Options 汇总 Sweeper 的依赖与节奏参数。
type Options struct {
	Store    cache.Store
	MaxAge   time.Duration
	Interval time.Duration
	Logger   logrus.FieldLogger
	Metrics  *metrics.Metrics
}

// Status 描述最近一次清理，供 /-/status 诊断接口展示。
type Status struct {
	Runs      int64             `json:"runs"`
	LastRunAt time.Time         `json:"last_run_at"`
	LastError string            `json:"last_error,omitempty"`
	Report    cache.SweepReport `json:"report"`
}

// Sweeper 周期性删除超过 MaxAge 的缓存条目。
type Sweeper struct {
	store    cache.Store
	maxAge   time.Duration
	interval time.Duration
	logger   logrus.FieldLogger
	metrics  *metrics.Metrics

	// runMu 串行化 RunOnce，只作用于清理任务本身，不会阻塞请求路径。
	runMu sync.Mutex

	mu      sync.Mutex
	status  Status
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New 校验参数并构造 Sweeper。
func New(opts Options) (*Sweeper, error) {
	if opts.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.MaxAge <= 0 {
		return nil, fmt.Errorf("invalid max age: %s", opts.MaxAge)
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("invalid sweep interval: %s", opts.Interval)
	}
	return &Sweeper{
		store:    opts.Store,
		maxAge:   opts.MaxAge,
		interval: opts.Interval,
		logger:   logging.OrDiscard(opts.Logger),
		metrics:  opts.Metrics,
	}, nil
}

// Start 启动后台循环：立即执行一次，然后每个 Interval 执行一次。重复调用无效果。
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go s.loop(loopCtx, s.done)
}

// Stop 停止循环并等待正在执行的清理结束。
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.started = false
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.runSafely(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSafely(ctx)
		}
	}
}

// runSafely 捕获单次清理中的 panic，保证循环继续运行。
func (s *Sweeper) runSafely(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"action": "sweep",
				"panic":  fmt.Sprint(r),
			}).Error("sweep_panic")
			s.record(cache.SweepReport{}, fmt.Errorf("panic: %v", r))
		}
	}()
	_, _ = s.RunOnce(ctx)
}

// RunOnce 执行一次完整清理并记录日志与指标。
func (s *Sweeper) RunOnce(ctx context.Context) (cache.SweepReport, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	report, err := s.store.SweepExpired(ctx, s.maxAge)
	s.metrics.ObserveSweep(report.Removed, report.Failed, report.Elapsed)
	s.record(report, err)

	fields := logrus.Fields{
		"action":     "sweep",
		"max_age":    s.maxAge.String(),
		"scanned":    report.Scanned,
		"removed":    report.Removed,
		"failed":     report.Failed,
		"elapsed_ms": report.Elapsed.Milliseconds(),
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.WithFields(fields).Info("sweep_cancelled")
			return report, err
		}
		s.logger.WithFields(fields).WithError(err).Error("sweep_failed")
		return report, err
	}
	s.logger.WithFields(fields).Info("sweep_complete")
	return report, nil
}

// Status 返回最近一次清理的快照。
func (s *Sweeper) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Sweeper) record(report cache.SweepReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Runs++
	s.status.LastRunAt = time.Now()
	s.status.Report = report
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
}
