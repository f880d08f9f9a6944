package cache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Storage 对应宿主提供的命名缓存集合：按名称打开、删除、枚举缓存仓库，
// 并支持跨所有仓库匹配同一个 key。实现必须可被多个 goroutine 并发调用。
type Storage interface {
	// Open 打开（必要时创建）名为 name 的缓存仓库。
	Open(ctx context.Context, name string) (Cache, error)

	// Has 判断缓存仓库是否存在。
	Has(ctx context.Context, name string) (bool, error)

	// Delete 整体删除一个缓存仓库，返回删除前是否存在。
	Delete(ctx context.Context, name string) (bool, error)

	// Keys 按名称排序返回所有缓存仓库名。
	Keys(ctx context.Context) ([]string, error)

	// Match 依次在所有仓库中查找 key，返回首个命中的记录及其所在仓库名。
	// 全部未命中时返回 ErrNotFound。
	Match(ctx context.Context, key string) (*Record, string, error)
}

// Cache 是单个命名缓存仓库的读写接口。
type Cache interface {
	Name() string

	// Match 返回 key 对应的记录，不存在时返回 ErrNotFound。
	Match(ctx context.Context, key string) (*Record, error)

	// Put 原子地写入一条记录，覆盖同 key 的旧值。
	Put(ctx context.Context, key string, record Record) error

	// Delete 删除单条记录，记录不存在不视为错误。
	Delete(ctx context.Context, key string) error

	// Entries 列出仓库内所有条目的摘要信息，供诊断接口使用。
	Entries(ctx context.Context) ([]EntryInfo, error)
}

// Record 是一条完整的缓存响应：状态码、响应头与正文。
type Record struct {
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Clone 深拷贝记录，避免调用方修改 Header/Body 影响缓存内容。
func (r Record) Clone() Record {
	cloned := r
	cloned.Header = r.Header.Clone()
	if r.Body != nil {
		cloned.Body = append([]byte(nil), r.Body...)
	}
	return cloned
}

// EntryInfo 描述缓存条目的元信息，不包含正文。
type EntryInfo struct {
	URL       string    `json:"url"`
	Status    int       `json:"status"`
	SizeBytes int64     `json:"size_bytes"`
	StoredAt  time.Time `json:"stored_at"`
}

// Locator 唯一定位一个缓存条目（仓库名 + key），key 为 URL 路径风格。
type Locator struct {
	Cache string
	Key   string
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrInvalidName 表示缓存仓库名无法安全映射为目录。
	ErrInvalidName = errors.New("invalid cache name")
)
