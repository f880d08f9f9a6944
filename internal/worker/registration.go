package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/orion-hotel/offline-hub/internal/logging"
)

// ErrNoController 表示当前没有可接收请求或消息的 worker。
var ErrNoController = errors.New("no worker controls the clients")

// Registration 维护 installing / waiting / active 三个槽位，以及当前接管客户端的 controller。
// 新版本安装成功后若请求了 skip-waiting（或尚无 active）会立即激活，否则停留在 waiting，
// 直到收到 SKIP_WAITING 消息。
type Registration struct {
	logger *logrus.Logger

	mu         sync.Mutex
	installing *Worker
	waiting    *Worker
	active     *Worker
	controller *Worker
}

// NewRegistration 创建空的注册表。
func NewRegistration(logger *logrus.Logger) *Registration {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registration{logger: logger}
}

// Update 安装 w 并在允许时激活它。安装失败时 w 被丢弃，之前的 active worker 保持不变。
func (r *Registration) Update(ctx context.Context, w *Worker) error {
	if w == nil {
		return errors.New("registration: worker required")
	}
	w.bind(r)

	r.mu.Lock()
	r.installing = w
	r.mu.Unlock()

	if err := w.Install(ctx); err != nil {
		r.mu.Lock()
		if r.installing == w {
			r.installing = nil
		}
		r.mu.Unlock()
		w.bind(nil)
		return err
	}

	r.mu.Lock()
	if r.installing == w {
		r.installing = nil
	}
	replaced := r.waiting
	r.waiting = w
	activateNow := r.active == nil || w.SkipWaitingRequested()
	r.mu.Unlock()

	if replaced != nil && replaced != w {
		replaced.setState(StateRedundant)
		replaced.bind(nil)
	}
	if !activateNow {
		r.logger.WithFields(logging.LifecycleFields("waiting", w.Version())).
			WithField("worker", w.ID()).
			Info("worker installed and waiting")
		return nil
	}
	return r.activate(ctx, w)
}

// activate 激活处于 waiting 槽位的 w。激活失败时 controller 与 active 保持原值。
func (r *Registration) activate(ctx context.Context, w *Worker) error {
	r.mu.Lock()
	if r.waiting != w {
		r.mu.Unlock()
		return nil
	}
	r.waiting = nil
	r.mu.Unlock()

	if err := w.Activate(ctx); err != nil {
		w.bind(nil)
		return err
	}

	r.mu.Lock()
	previous := r.active
	r.active = w
	r.mu.Unlock()

	if previous != nil && previous != w {
		previous.setState(StateRedundant)
		previous.bind(nil)
	}
	return nil
}

func (r *Registration) skipWaiting(ctx context.Context, w *Worker) error {
	return r.activate(ctx, w)
}

func (r *Registration) claim(w *Worker) {
	r.mu.Lock()
	r.controller = w
	r.mu.Unlock()
	r.logger.WithFields(logging.LifecycleFields("claim", w.Version())).
		WithField("worker", w.ID()).
		Info("worker claimed clients")
}

// Controller 返回当前接管客户端的 worker；尚无 worker 时返回 nil。
func (r *Registration) Controller() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controller
}

// Waiting 返回已安装但尚未激活的 worker。
func (r *Registration) Waiting() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// Deliver 把控制消息投递给合适的 worker：SKIP_WAITING 优先发给 waiting worker，
// 其它消息发给 active worker。
func (r *Registration) Deliver(ctx context.Context, msg Message) (MessageResult, error) {
	r.mu.Lock()
	target := r.active
	if target == nil || (msg.Type == MessageSkipWaiting && r.waiting != nil) {
		target = r.waiting
	}
	r.mu.Unlock()

	if target == nil {
		return MessageResult{Type: msg.Type}, ErrNoController
	}
	return target.Message(ctx, msg)
}

// Snapshot 汇总各槽位的 worker 信息，供诊断接口使用。
type Snapshot struct {
	Installing *Info `json:"installing,omitempty"`
	Waiting    *Info `json:"waiting,omitempty"`
	Active     *Info `json:"active,omitempty"`
	Controller *Info `json:"controller,omitempty"`
}

// Snapshot 返回注册表当前状态。
func (r *Registration) Snapshot() Snapshot {
	r.mu.Lock()
	installing, waiting, active, controller := r.installing, r.waiting, r.active, r.controller
	r.mu.Unlock()

	return Snapshot{
		Installing: infoOf(installing),
		Waiting:    infoOf(waiting),
		Active:     infoOf(active),
		Controller: infoOf(controller),
	}
}

func infoOf(w *Worker) *Info {
	if w == nil {
		return nil
	}
	info := w.Info()
	return &info
}
