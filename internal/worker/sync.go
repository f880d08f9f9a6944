package worker

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// SyncTagMessages 标识待发送聊天消息的后台同步任务。
const SyncTagMessages = "sync-messages"

// ErrSyncUnsupported 表示宿主未开启后台同步。
var ErrSyncUnsupported = errors.New("background sync unsupported")

// Syncer 负责把离线期间排队的消息发往服务端。
type Syncer interface {
	SyncQueuedMessages(ctx context.Context) error
}

// SyncerFunc adapts a function to the Syncer interface.
type SyncerFunc func(ctx context.Context) error

func (f SyncerFunc) SyncQueuedMessages(ctx context.Context) error { return f(ctx) }

// queuedMessageSyncer 尚无持久化队列，只记录日志并报告成功。
type queuedMessageSyncer struct {
	logger *logrus.Logger
}

// NewQueuedMessageSyncer 返回默认的消息同步器。
func NewQueuedMessageSyncer(logger *logrus.Logger) Syncer {
	return queuedMessageSyncer{logger: logger}
}

func (s queuedMessageSyncer) SyncQueuedMessages(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.WithField("action", "sync").Info("syncing queued messages")
	}
	return nil
}

// Sync 处理后台同步事件。BackgroundSync 关闭时返回 ErrSyncUnsupported；
// 只有 sync-messages 标签会调用 Syncer，其余标签被忽略（handled=false）。
func (w *Worker) Sync(ctx context.Context, tag string) (handled bool, err error) {
	if !w.cfg.Global.BackgroundSync {
		return false, ErrSyncUnsupported
	}
	log := w.lifecycleLog("sync").WithField("tag", tag)
	log.Info("background sync triggered")
	if tag != SyncTagMessages {
		return false, nil
	}
	err = w.syncer.SyncQueuedMessages(ctx)
	w.metrics.Lifecycle("sync", err)
	if err != nil {
		log.WithError(err).Error("message sync failed")
		return true, err
	}
	return true, nil
}
