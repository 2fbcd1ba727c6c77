package routes

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/any-hub/apk-mirror/internal/config"
	"github.com/any-hub/apk-mirror/internal/metrics"
	"github.com/any-hub/apk-mirror/internal/sweeper"
	"github.com/any-hub/apk-mirror/internal/version"
)

// SweepStatusSource 提供最近一次清理结果。
type SweepStatusSource interface {
	Status() sweeper.Status
}

// WaitingSource 提供正在等待回源结果的请求数。
type WaitingSource interface {
	Waiting() int64
}

// DiagnosticsOptions 汇总诊断接口需要的只读依赖，缺失项在响应中省略。
type DiagnosticsOptions struct {
	Config  *config.Config
	Sweeps  SweepStatusSource
	Waiting WaitingSource
	Metrics *metrics.Metrics
}

// RegisterDiagnosticsRoutes 暴露 /-/status 与 /-/metrics 诊断接口，供 SRE 查询运行状态。
func RegisterDiagnosticsRoutes(app *fiber.App, opts DiagnosticsOptions) {
	if app == nil || opts.Config == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(encodeStatus(opts))
	})

	if opts.Metrics != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))
	}
}

type statusPayload struct {
	Version              string        `json:"version"`
	Upstream             string        `json:"upstream"`
	CacheRoot            string        `json:"cache_root"`
	MaxCacheAgeSeconds   int64         `json:"max_cache_age_seconds"`
	SweepIntervalSeconds int64         `json:"sweep_interval_seconds"`
	Waiting              int64         `json:"waiting_requests"`
	LastSweep            *sweepPayload `json:"last_sweep,omitempty"`
}

type sweepPayload struct {
	Runs      int64     `json:"runs"`
	LastRunAt time.Time `json:"last_run_at"`
	Scanned   int       `json:"scanned"`
	Removed   int       `json:"removed"`
	Failed    int       `json:"failed"`
	ElapsedMS int64     `json:"elapsed_ms"`
	LastError string    `json:"last_error,omitempty"`
}

func encodeStatus(opts DiagnosticsOptions) statusPayload {
	global := opts.Config.Global
	payload := statusPayload{
		Version:              version.Full(),
		Upstream:             global.UpstreamBase(),
		CacheRoot:            global.StoragePath,
		MaxCacheAgeSeconds:   int64(global.MaxCacheAge() / time.Second),
		SweepIntervalSeconds: int64(global.SweepInterval.DurationValue() / time.Second),
	}
	if opts.Waiting != nil {
		payload.Waiting = opts.Waiting.Waiting()
	}
	if opts.Sweeps != nil {
		status := opts.Sweeps.Status()
		if status.Runs > 0 {
			payload.LastSweep = &sweepPayload{
				Runs:      status.Runs,
				LastRunAt: status.LastRunAt,
				Scanned:   status.Report.Scanned,
				Removed:   status.Report.Removed,
				Failed:    status.Report.Failed,
				ElapsedMS: status.Report.Elapsed.Milliseconds(),
				LastError: status.LastError,
			}
		}
	}
	return payload
}
