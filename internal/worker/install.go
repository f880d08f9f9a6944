package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/orion-hotel/offline-hub/internal/cache"
)

type precacheEntry struct {
	key    string
	record cache.Record
}

// Install 打开预缓存仓库并以单个原子批次写入 PrecacheURLs。任何一个地址抓取失败
// （传输错误或非 2xx）都会使整批失败，仓库中不会留下本批次的任何条目。
// 成功且开启 SkipWaiting 时请求跳过等待，使注册方可以立即激活该版本。
func (w *Worker) Install(ctx context.Context) (err error) {
	if err := w.transition(StateInstalling, StateParsed); err != nil {
		return err
	}
	log := w.lifecycleLog("install")
	log.Info("installing")

	defer func() {
		w.metrics.Lifecycle("install", err)
		if err != nil {
			w.setState(StateRedundant)
			log.WithError(err).Error("install_failed")
			return
		}
		w.setState(StateInstalled)
	}()

	precacheName, _ := w.CacheNames()
	store, err := w.caches.Open(ctx, precacheName)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrInstallFailed, precacheName, err)
	}

	entries, err := w.fetchPrecache(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}
	if err := w.addAll(ctx, store, entries); err != nil {
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	log.WithField("cache", precacheName).WithField("entries", len(entries)).Info("precached app shell")
	if w.cfg.Global.SkipWaiting {
		// 安装阶段尚未进入 waiting，这里只记录标记，由 Registration.Update 决定是否激活。
		if skipErr := w.SkipWaiting(ctx); skipErr != nil {
			log.WithError(skipErr).Warn("skip_waiting_failed")
		}
	}
	return nil
}

// fetchPrecache 并发抓取全部预缓存地址，首个失败会取消其余请求。
func (w *Worker) fetchPrecache(ctx context.Context) ([]precacheEntry, error) {
	urls := w.cfg.Global.PrecacheURLs
	entries := make([]precacheEntry, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	for i, raw := range urls {
		target := w.resolve(raw)
		g.Go(func() error {
			req := &Request{Method: http.MethodGet, URL: target, Header: http.Header{}}
			resp, err := w.precache.Fetch(gctx, req)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", target, err)
			}
			if resp == nil || resp.Status < 200 || resp.Status > 299 {
				status := 0
				if resp != nil {
					status = resp.Status
				}
				return fmt.Errorf("fetch %s: unexpected status %d", target, status)
			}
			entries[i] = precacheEntry{
				key:    cache.KeyForURL(target),
				record: recordFromResponse(req, resp.Clone(), w.now()),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// addAll 顺序写入条目，中途失败时只回滚本批次新增的 key；
// 同版本重装时已存在的条目属于当前 active worker，保持不动。
func (w *Worker) addAll(ctx context.Context, store cache.Cache, entries []precacheEntry) (err error) {
	added := make([]string, 0, len(entries))
	defer func() {
		if err == nil {
			return
		}
		for _, key := range added {
			if delErr := store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
				w.lifecycleLog("install").WithError(delErr).WithField("key", key).Warn("rollback_failed")
			}
		}
	}()

	for _, entry := range entries {
		_, matchErr := store.Match(ctx, entry.key)
		if matchErr != nil && !errors.Is(matchErr, cache.ErrNotFound) {
			return fmt.Errorf("lookup %s: %w", entry.record.URL, matchErr)
		}
		if putErr := store.Put(ctx, entry.key, entry.record); putErr != nil {
			w.metrics.CacheWrite(false)
			return fmt.Errorf("put %s: %w", entry.record.URL, putErr)
		}
		w.metrics.CacheWrite(true)
		if matchErr != nil {
			added = append(added, entry.key)
		}
	}
	return nil
}
