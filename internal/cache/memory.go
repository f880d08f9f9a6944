package cache

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// memoryTier 在磁盘之前缓存最近命中的记录；容量为 0 时整体禁用。
type memoryTier struct {
	entries *lru.Cache[string, Record]
}

func newMemoryTier(size int) (*memoryTier, error) {
	if size <= 0 {
		return &memoryTier{}, nil
	}
	entries, err := lru.New[string, Record](size)
	if err != nil {
		return nil, fmt.Errorf("create memory tier: %w", err)
	}
	return &memoryTier{entries: entries}, nil
}

func (m *memoryTier) get(locator Locator) (Record, bool) {
	if m == nil || m.entries == nil {
		return Record{}, false
	}
	record, ok := m.entries.Get(locatorKey(locator))
	if !ok {
		return Record{}, false
	}
	return record.Clone(), true
}

func (m *memoryTier) add(locator Locator, record Record) {
	if m == nil || m.entries == nil {
		return
	}
	m.entries.Add(locatorKey(locator), record)
}

func (m *memoryTier) remove(locator Locator) {
	if m == nil || m.entries == nil {
		return
	}
	m.entries.Remove(locatorKey(locator))
}

// purgeCache 移除属于指定仓库的全部内存条目。
func (m *memoryTier) purgeCache(name string) {
	if m == nil || m.entries == nil {
		return
	}
	prefix := name + "::"
	for _, key := range m.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			m.entries.Remove(key)
		}
	}
}
