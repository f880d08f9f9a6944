package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orion-hotel/offline-hub/internal/cache"
	"github.com/orion-hotel/offline-hub/internal/config"
	"github.com/orion-hotel/offline-hub/internal/logging"
	"github.com/orion-hotel/offline-hub/internal/metrics"
)

// State 描述 Worker 在生命周期中的位置。
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

var (
	// ErrInstallFailed 表示预缓存批次失败，该版本不会被激活。
	ErrInstallFailed = errors.New("worker install failed")
	// ErrActivateFailed 表示旧缓存清理失败，worker 不会接管客户端。
	ErrActivateFailed = errors.New("worker activate failed")
	// ErrInvalidState 表示生命周期方法在错误的状态下被调用。
	ErrInvalidState = errors.New("worker in invalid state")
)

// Options 注入 Worker 依赖的宿主能力。Caches 与 Network 必填，其余为空时使用默认实现。
type Options struct {
	Caches   cache.Storage
	Network  Fetcher
	Precache Fetcher
	Notifier Notifier
	Syncer   Syncer
	Logger   *logrus.Logger
	Metrics  *metrics.Collector
	Now      func() time.Time
}

// lifecycleHooks 由 Registration 在托管 worker 时注入，用于 skip-waiting 与 claim。
type lifecycleHooks interface {
	skipWaiting(ctx context.Context, w *Worker) error
	claim(w *Worker)
}

// Worker 是一个版本的请求路由与缓存策略。cfg 在构造后只读，配置变更需要构造新的 Worker。
type Worker struct {
	id         string
	cfg        *config.Config
	origin     *url.URL
	apiDomains []string

	caches   cache.Storage
	network  Fetcher
	precache Fetcher
	notifier Notifier
	syncer   Syncer
	logger   *logrus.Logger
	metrics  *metrics.Collector
	now      func() time.Time

	mu          sync.Mutex
	state       State
	skipWaiting bool
	hooks       lifecycleHooks
}

// New 根据配置与依赖构造 Worker，初始状态为 parsed。
func New(cfg *config.Config, opts Options) (*Worker, error) {
	if cfg == nil {
		return nil, errors.New("worker: config required")
	}
	if opts.Caches == nil {
		return nil, errors.New("worker: cache storage required")
	}
	if opts.Network == nil {
		return nil, errors.New("worker: network fetcher required")
	}
	origin, err := url.Parse(cfg.Global.Origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("worker: invalid origin %q", cfg.Global.Origin)
	}

	w := &Worker{
		id:       uuid.NewString(),
		cfg:      cfg,
		origin:   origin,
		caches:   opts.Caches,
		network:  opts.Network,
		precache: opts.Precache,
		notifier: opts.Notifier,
		syncer:   opts.Syncer,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
		state:    StateParsed,
	}
	for _, domain := range cfg.APIDomains() {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" {
			w.apiDomains = append(w.apiDomains, domain)
		}
	}
	if w.precache == nil {
		w.precache = w.network
	}
	if w.notifier == nil {
		w.notifier = discardNotifier{}
	}
	if w.logger == nil {
		w.logger = logging.Discard()
	}
	if w.syncer == nil {
		w.syncer = NewQueuedMessageSyncer(w.logger)
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w, nil
}

// ID 返回 worker 的唯一标识，用于日志与诊断接口。
func (w *Worker) ID() string { return w.id }

// Version 返回该 worker 对应的缓存版本号。
func (w *Worker) Version() string { return w.cfg.Global.Version }

// CacheNames 返回当前版本的预缓存与运行时缓存仓库名。
func (w *Worker) CacheNames() (precache, runtime string) {
	return w.cfg.PrecacheCacheName(), w.cfg.RuntimeCacheName()
}

// State 返回当前生命周期状态。
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// SkipWaitingRequested 表示 worker 是否已请求跳过等待。
func (w *Worker) SkipWaitingRequested() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.skipWaiting
}

// SkipWaiting 标记 worker 可以立即激活，不必等待旧客户端关闭。
// 处于 waiting 状态时由 Registration 立即激活，返回激活错误。
func (w *Worker) SkipWaiting(ctx context.Context) error {
	w.mu.Lock()
	w.skipWaiting = true
	hooks := w.hooks
	w.mu.Unlock()

	w.lifecycleLog("skip_waiting").Info("skip waiting requested")
	if hooks != nil {
		return hooks.skipWaiting(ctx, w)
	}
	return nil
}

func (w *Worker) claimClients() {
	w.mu.Lock()
	hooks := w.hooks
	w.mu.Unlock()
	if hooks != nil {
		hooks.claim(w)
	}
}

func (w *Worker) bind(h lifecycleHooks) {
	w.mu.Lock()
	w.hooks = h
	w.mu.Unlock()
}

// transition 在 from 集合内时切换到 to，否则返回 ErrInvalidState。
func (w *Worker) transition(to State, from ...State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range from {
		if w.state == s {
			w.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidState, w.state, to)
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// resolve 将站内路径解析为 Origin 下的绝对地址。
func (w *Worker) resolve(p string) *url.URL {
	ref, err := url.Parse(p)
	if err != nil {
		ref = &url.URL{Path: p}
	}
	return w.origin.ResolveReference(ref)
}

func (w *Worker) lifecycleLog(event string) *logrus.Entry {
	return w.logger.WithFields(logging.LifecycleFields(event, w.Version())).WithField("worker", w.id)
}

// Info 是 worker 的诊断快照。
type Info struct {
	ID            string `json:"id"`
	Version       string `json:"version"`
	State         State  `json:"state"`
	PrecacheCache string `json:"precache_cache"`
	RuntimeCache  string `json:"runtime_cache"`
}

// Info 返回当前 worker 的诊断信息。
func (w *Worker) Info() Info {
	precache, runtime := w.CacheNames()
	return Info{
		ID:            w.id,
		Version:       w.Version(),
		State:         w.State(),
		PrecacheCache: precache,
		RuntimeCache:  runtime,
	}
}
