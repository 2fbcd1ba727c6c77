package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/apk-mirror/internal/apk"
	"github.com/any-hub/apk-mirror/internal/cache"
	"github.com/any-hub/apk-mirror/internal/config"
	"github.com/any-hub/apk-mirror/internal/logging"
	"github.com/any-hub/apk-mirror/internal/metrics"
	"github.com/any-hub/apk-mirror/internal/proxy"
	"github.com/any-hub/apk-mirror/internal/server"
	"github.com/any-hub/apk-mirror/internal/server/routes"
	"github.com/any-hub/apk-mirror/internal/sweeper"
	"github.com/any-hub/apk-mirror/internal/upstream"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

const shutdownTimeout = 10 * time.Second

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["upstream"] = cfg.Global.UpstreamBase()
		fields["storage_path"] = cfg.Global.StoragePath
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化运行时失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["upstream"] = rt.mapper.Upstream()
	fields["storage_path"] = rt.mapper.Root()
	fields["max_cache_age"] = cfg.Global.MaxCacheAge().String()
	fields["sweep_interval"] = cfg.Global.SweepInterval.DurationValue().String()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, rt, cfg.Global.ListenPort, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
// 未指定配置文件时仅使用默认值与环境变量。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("apk-mirror", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（可被 APK_MIRROR_CONFIG 覆盖，留空则只读环境变量）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("APK_MIRROR_CONFIG")
	if configFlag != "" {
		path = configFlag
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// mirrorRuntime 持有一次进程生命周期内共享的组件。
type mirrorRuntime struct {
	app     *fiber.App
	mapper  *apk.Mapper
	sweeper *sweeper.Sweeper
}

// buildRuntime 按“磁盘缓存 → 上游客户端 → Coordinator → 清理任务 → Fiber app”的顺序装配组件，
// 所有请求共享同一个缓存与单飞分组。
func buildRuntime(cfg *config.Config, logger *logrus.Logger) (*mirrorRuntime, error) {
	mapper, err := apk.NewMapper(cfg.Global.StoragePath, cfg.Global.UpstreamBase())
	if err != nil {
		return nil, fmt.Errorf("构建路径映射失败: %w", err)
	}

	store, err := cache.NewStore(mapper.Root(), logger)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	m := metrics.New()
	fetcher := upstream.NewFetcher(upstream.NewClient(cfg), logger)
	coordinator, err := proxy.NewCoordinator(proxy.CoordinatorOptions{
		Mapper:  mapper,
		Store:   store,
		Fetcher: fetcher,
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		return nil, err
	}

	sw, err := sweeper.New(sweeper.Options{
		Store:    store,
		MaxAge:   cfg.Global.MaxCacheAge(),
		Interval: cfg.Global.SweepInterval.DurationValue(),
		Logger:   logger,
		Metrics:  m,
	})
	if err != nil {
		return nil, err
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Proxy:      proxy.NewHandler(coordinator, logger),
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterDiagnosticsRoutes(app, routes.DiagnosticsOptions{
		Config:  cfg,
		Sweeps:  sw,
		Waiting: coordinator,
		Metrics: m,
	})

	return &mirrorRuntime{
		app:     app,
		mapper:  mapper,
		sweeper: sw,
	}, nil
}

// serve 启动清理任务与 HTTP 监听，ctx 结束后依次关闭 HTTP 服务与清理任务。
func serve(ctx context.Context, rt *mirrorRuntime, port int, logger logrus.FieldLogger) error {
	rt.sweeper.Start(ctx)
	defer rt.sweeper.Stop()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- rt.app.Listen(fmt.Sprintf(":%d", port))
	}()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}

	logger.WithFields(logrus.Fields{"action": "shutdown"}).Info("收到退出信号，开始关闭")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return rt.app.ShutdownWithContext(shutdownCtx)
}
