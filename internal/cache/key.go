package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"path"
	"strings"
)

const queryMarker = "/__qs/"

// KeyForURL 将请求 URL 映射为缓存 key：/<host>/<clean path>，带查询串时追加
// /__qs/<sha1(query)>，避免不同查询参数写入同一文件。
func KeyForURL(u *url.URL) string {
	if u == nil {
		return "/"
	}
	host := strings.ToLower(u.Host)
	clean := path.Clean("/" + u.Path)
	key := "/" + host + clean
	if clean == "/" {
		key = "/" + host + "/"
	}
	if u.RawQuery != "" {
		sum := sha1.Sum([]byte(u.RawQuery))
		key = strings.TrimSuffix(key, "/") + queryMarker + hex.EncodeToString(sum[:])
	}
	return key
}
