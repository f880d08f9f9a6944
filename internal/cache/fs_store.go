package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	bodySuffix = ".body"
	metaSuffix = ".meta"
)

// NewStorage 以 basePath 为根目录构建磁盘缓存集合，memoryEntries > 0 时启用内存 LRU。
func NewStorage(basePath string, memoryEntries int) (Storage, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	mem, err := newMemoryTier(memoryEntries)
	if err != nil {
		return nil, err
	}

	return &fileStorage{
		basePath: abs,
		memory:   mem,
		locks:    make(map[string]*entryLock),
		now:      time.Now,
	}, nil
}

// fileStorage 通过 mu 串行化整仓删除与条目读写，通过 entryLock 避免同一条目并发写入。
type fileStorage struct {
	basePath string
	memory   *memoryTier
	now      func() time.Time

	mu sync.RWMutex

	lockMu sync.Mutex
	locks  map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// metaFile 是 .meta 文件的 JSON 结构。
type metaFile struct {
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Size     int64       `json:"size"`
	StoredAt time.Time   `json:"stored_at"`
}

func (s *fileStorage) Open(ctx context.Context, name string) (Cache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.cacheDir(name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open cache %s: %w", name, err)
	}
	return &fileCache{storage: s, name: name}, nil
}

func (s *fileStorage) Has(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, err := s.cacheDir(name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (s *fileStorage) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, err := s.cacheDir(name)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	s.memory.purgeCache(name)
	return true, nil
}

func (s *fileStorage) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *fileStorage) Match(ctx context.Context, key string) (*Record, string, error) {
	names, err := s.Keys(ctx)
	if err != nil {
		return nil, "", err
	}
	for _, name := range names {
		record, err := s.get(ctx, Locator{Cache: name, Key: key})
		switch {
		case err == nil:
			return record, name, nil
		case errors.Is(err, ErrNotFound):
			continue
		default:
			return nil, "", err
		}
	}
	return nil, "", ErrNotFound
}

func (s *fileStorage) get(ctx context.Context, locator Locator) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if record, ok := s.memory.get(locator); ok {
		return &record, nil
	}

	base, err := s.entryPath(locator)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rawMeta, err := os.ReadFile(base + metaSuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var meta metaFile
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		return nil, fmt.Errorf("decode cache meta: %w", err)
	}
	body, err := os.ReadFile(base + bodySuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	record := Record{
		URL:      meta.URL,
		Status:   meta.Status,
		Header:   meta.Header,
		Body:     body,
		StoredAt: meta.StoredAt,
	}
	if record.Header == nil {
		record.Header = http.Header{}
	}
	s.memory.add(locator, record.Clone())
	return &record, nil
}

func (s *fileStorage) put(ctx context.Context, locator Locator, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	base, err := s.entryPath(locator)
	if err != nil {
		return err
	}

	unlock := s.lockEntry(locator)
	defer unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return err
	}

	if record.StoredAt.IsZero() {
		record.StoredAt = s.now().UTC()
	}
	meta := metaFile{
		URL:      record.URL,
		Status:   record.Status,
		Header:   record.Header,
		Size:     int64(len(record.Body)),
		StoredAt: record.StoredAt,
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode cache meta: %w", err)
	}

	// 先写正文再写 meta：meta 存在即代表条目完整。
	if err := writeAtomic(base+bodySuffix, record.Body); err != nil {
		return err
	}
	if err := writeAtomic(base+metaSuffix, rawMeta); err != nil {
		os.Remove(base + bodySuffix)
		return err
	}
	s.memory.add(locator, record.Clone())
	return nil
}

func (s *fileStorage) remove(ctx context.Context, locator Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	base, err := s.entryPath(locator)
	if err != nil {
		return err
	}

	unlock := s.lockEntry(locator)
	defer unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	s.memory.remove(locator)
	for _, suffix := range []string{metaSuffix, bodySuffix} {
		if err := os.Remove(base + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *fileStorage) entries(ctx context.Context, name string) ([]EntryInfo, error) {
	dir, err := s.cacheDir(name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []EntryInfo
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		raw, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		var meta metaFile
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil
		}
		result = append(result, EntryInfo{
			URL:       meta.URL,
			Status:    meta.Status,
			SizeBytes: meta.Size,
			StoredAt:  meta.StoredAt,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].URL < result[j].URL })
	return result, nil
}

func (s *fileStorage) lockEntry(locator Locator) func() {
	key := locatorKey(locator)
	s.lockMu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.lockMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.lockMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.lockMu.Unlock()
	}
}

func (s *fileStorage) cacheDir(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.basePath, name), nil
}

// entryPath 返回条目文件的公共前缀（不含 .body/.meta 后缀）。
func (s *fileStorage) entryPath(locator Locator) (string, error) {
	dir, err := s.cacheDir(locator.Cache)
	if err != nil {
		return "", err
	}

	rel := path.Clean("/" + locator.Key)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		rel = "root"
	}

	filePath := filepath.Join(dir, filepath.FromSlash(rel))
	if !strings.HasPrefix(filePath, dir+string(filepath.Separator)) {
		return "", errors.New("invalid cache path")
	}
	return filePath, nil
}

func writeAtomic(target string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(target), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}
	if err := os.Rename(tempName, target); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func locatorKey(locator Locator) string {
	return locator.Cache + "::" + locator.Key
}

// fileCache 是绑定到单个仓库名的轻量句柄，所有状态都在 fileStorage 中。
type fileCache struct {
	storage *fileStorage
	name    string
}

func (c *fileCache) Name() string {
	return c.name
}

func (c *fileCache) Match(ctx context.Context, key string) (*Record, error) {
	return c.storage.get(ctx, Locator{Cache: c.name, Key: key})
}

func (c *fileCache) Put(ctx context.Context, key string, record Record) error {
	return c.storage.put(ctx, Locator{Cache: c.name, Key: key}, record)
}

func (c *fileCache) Delete(ctx context.Context, key string) error {
	return c.storage.remove(ctx, Locator{Cache: c.name, Key: key})
}

func (c *fileCache) Entries(ctx context.Context) ([]EntryInfo, error) {
	return c.storage.entries(ctx, c.name)
}
