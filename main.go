package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/orion-hotel/offline-hub/internal/cache"
	"github.com/orion-hotel/offline-hub/internal/config"
	"github.com/orion-hotel/offline-hub/internal/logging"
	"github.com/orion-hotel/offline-hub/internal/metrics"
	"github.com/orion-hotel/offline-hub/internal/network"
	"github.com/orion-hotel/offline-hub/internal/server"
	"github.com/orion-hotel/offline-hub/internal/server/routes"
	"github.com/orion-hotel/offline-hub/internal/version"
	"github.com/orion-hotel/offline-hub/internal/worker"
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
		fields["apis"] = config.APINames(cfg.APIs)
		fields["precache_urls"] = len(cfg.Global.PrecacheURLs)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 缓存目录 → 首个 worker 安装/激活 → Fiber server。
	// 首个 worker 安装失败时直接退出，避免在没有离线外壳的情况下对外服务。
	rt, err := bootstrap(context.Background(), cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化 worker 失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["domain"] = cfg.Global.Domain
	fields["origin"] = cfg.Global.Origin
	fields["apis"] = config.APINames(cfg.APIs)
	fields["version"] = version.Full()
	fields["cache_version"] = cfg.Global.Version
	logger.WithFields(fields).Info("配置加载完成")

	if err := config.Watch(opts.configPath, rt.reload); err != nil {
		logger.WithFields(logging.BaseFields("watch_config", opts.configPath)).WithError(err).Warn("配置热更新不可用")
	}

	if err := startHTTPServer(cfg, rt.app, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("offline-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 OFFLINE_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("OFFLINE_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, app *fiber.App, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}

// hubRuntime 持有进程生命周期内共享的组件；配置热更新时复用它们来安装新版本 worker。
type hubRuntime struct {
	logger        *logrus.Logger
	storage       cache.Storage
	network       *network.Client
	metrics       *metrics.Collector
	notifications *server.NotificationCenter
	registration  *worker.Registration
	upstreams     *server.Upstreams
	app           *fiber.App
}

// bootstrap 构建共享组件并让首个 worker 接管，返回可直接 Listen 的 Fiber 应用。
func bootstrap(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*hubRuntime, error) {
	storage, err := cache.NewStorage(cfg.Global.StoragePath, cfg.Global.MaxMemoryEntries)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}
	upstreams, err := server.NewUpstreams(cfg)
	if err != nil {
		return nil, err
	}

	rt := &hubRuntime{
		logger:        logger,
		storage:       storage,
		network:       network.NewClient(cfg),
		metrics:       metrics.New(),
		notifications: server.NewNotificationCenter(logger),
		registration:  worker.NewRegistration(logger),
		upstreams:     upstreams,
	}
	if err := rt.install(ctx, cfg); err != nil {
		return nil, err
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:        logger,
		Registration:  rt.registration,
		Upstreams:     upstreams,
		Network:       rt.network,
		Notifications: rt.notifications,
		Metrics:       rt.metrics,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterDiagnostics(app, routes.DiagnosticsOptions{
		Registration: rt.registration,
		Caches:       storage,
		Metrics:      rt.metrics,
	})
	rt.app = app
	return rt, nil
}

// install 按 cfg 构建新的 worker 并交给 registration 走 install → waiting → activate。
func (rt *hubRuntime) install(ctx context.Context, cfg *config.Config) error {
	w, err := worker.New(cfg, worker.Options{
		Caches:   rt.storage,
		Network:  rt.network,
		Precache: network.NewRetryingClient(cfg, rt.logger),
		Notifier: rt.notifications,
		Logger:   rt.logger,
		Metrics:  rt.metrics,
	})
	if err != nil {
		return err
	}
	return rt.registration.Update(ctx, w)
}

// reload 响应配置文件变更：刷新 Domain/Origin 映射并安装新版本 worker。
// 新 worker 安装失败时旧 controller 保持不变。
func (rt *hubRuntime) reload(cfg *config.Config, err error) {
	fields := logging.BaseFields("reload_config", "")
	if err != nil {
		rt.logger.WithFields(fields).WithError(err).Warn("配置重新加载失败")
		return
	}
	fields["cache_version"] = cfg.Global.Version
	if err := rt.install(context.Background(), cfg); err != nil {
		rt.logger.WithFields(fields).WithError(err).Error("新版本 worker 安装失败")
		return
	}
	if err := rt.upstreams.Update(cfg); err != nil {
		rt.logger.WithFields(fields).WithError(err).Warn("上游映射更新失败")
		return
	}
	rt.logger.WithFields(fields).Info("配置已重新加载")
}
