package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Activate 删除所有不属于当前版本的缓存仓库，全部删除完成后才接管客户端。
// 同一版本重复激活不会删除任何仓库。
func (w *Worker) Activate(ctx context.Context) (err error) {
	if err := w.transition(StateActivating, StateInstalled); err != nil {
		return err
	}
	log := w.lifecycleLog("activate")
	log.Info("activating")

	defer func() {
		w.metrics.Lifecycle("activate", err)
		if err != nil {
			w.setState(StateRedundant)
			log.WithError(err).Error("activate_failed")
		}
	}()

	deleted, err := w.deleteStaleCaches(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrActivateFailed, err)
	}
	w.metrics.CachesDeleted(len(deleted))

	w.setState(StateActivated)
	w.claimClients()
	log.WithField("deleted", deleted).Info("activated")
	return nil
}

// deleteStaleCaches 计算现存仓库与当前版本名集合的差集并并发删除，返回被删除的仓库名。
func (w *Worker) deleteStaleCaches(ctx context.Context) ([]string, error) {
	names, err := w.caches.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	precache, runtime := w.CacheNames()

	var stale []string
	for _, name := range names {
		if name != precache && name != runtime {
			stale = append(stale, name)
		}
	}
	if err := w.deleteCaches(ctx, "activate", stale); err != nil {
		return nil, err
	}
	return stale, nil
}

// deleteCaches 并发删除给定仓库，任一失败即返回。
func (w *Worker) deleteCaches(ctx context.Context, event string, names []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			if _, err := w.caches.Delete(gctx, name); err != nil {
				return fmt.Errorf("delete cache %s: %w", name, err)
			}
			w.lifecycleLog(event).WithField("cache", name).Info("deleted cache")
			return nil
		})
	}
	return g.Wait()
}
