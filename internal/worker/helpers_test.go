package worker

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/orion-hotel/offline-hub/internal/cache"
	"github.com/orion-hotel/offline-hub/internal/config"
	"github.com/orion-hotel/offline-hub/internal/logging"
)

const testOrigin = "http://origin.test"

var errNetworkDown = errors.New("network down")

func testConfig() *config.Config {
	return &config.Config{
		Global: config.GlobalConfig{
			ListenPort:      5000,
			Domain:          "chat.local",
			Origin:          testOrigin,
			StoragePath:     "./storage",
			Version:         "v1.0.0",
			PrecacheName:    "orion-hotel-chat",
			RuntimeName:     "orion-runtime",
			PrecacheURLs:    []string{"/", "/index.html", "/manifest.json"},
			OfflineFallback: "/index.html",
			APITimeout:      config.Duration(100 * time.Millisecond),
			UpstreamTimeout: config.Duration(time.Second),
			BackgroundSync:  true,
			SkipWaiting:     true,
		},
		Notification: config.NotificationConfig{
			Title:       "Orion Hotel",
			DefaultBody: "New message from Orion Hotel",
			Tag:         "orion-hotel-notification",
			Vibrate:     []int{200, 100, 200},
			OpenURL:     "/",
		},
		APIs: []config.APIConfig{
			{Name: "chat", Domain: "script.google.com"},
			{Name: "llm", Domain: "generativelanguage.googleapis.com"},
			{Name: "weather", Domain: "openweathermap.org"},
		},
	}
}

// fakeNetwork 按完整 URL 返回预置响应，未知地址返回 404。
type fakeNetwork struct {
	mu    sync.Mutex
	pages map[string]*Response
	down  bool
	block bool
	calls []string
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{pages: map[string]*Response{}}
}

func shellNetwork() *fakeNetwork {
	n := newFakeNetwork()
	n.set(testOrigin+"/", 200, "text/html", "<html>root</html>")
	n.set(testOrigin+"/index.html", 200, "text/html", "<html>index</html>")
	n.set(testOrigin+"/manifest.json", 200, "application/json", `{"name":"Orion"}`)
	return n
}

func (n *fakeNetwork) set(rawURL string, status int, contentType, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pages[rawURL] = &Response{
		Status: status,
		Header: http.Header{"Content-Type": []string{contentType}},
		Body:   []byte(body),
	}
}

func (n *fakeNetwork) setDown(down bool) {
	n.mu.Lock()
	n.down = down
	n.mu.Unlock()
}

func (n *fakeNetwork) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func (n *fakeNetwork) Fetch(ctx context.Context, req *Request) (*Response, error) {
	n.mu.Lock()
	n.calls = append(n.calls, req.URL.String())
	down, block := n.down, n.block
	resp := n.pages[req.URL.String()]
	n.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if down {
		return nil, errNetworkDown
	}
	if resp == nil {
		return &Response{Status: http.StatusNotFound, Header: http.Header{}, Body: []byte("not found")}, nil
	}
	return resp.Clone(), nil
}

// fakeNotifier 记录展示、关闭与打开窗口的调用。
type fakeNotifier struct {
	mu     sync.Mutex
	shown  []Notification
	closed []string
	opened []string
}

func (f *fakeNotifier) ShowNotification(_ context.Context, n Notification) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown = append(f.shown, n)
	return "n-1", nil
}

func (f *fakeNotifier) CloseNotification(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeNotifier) OpenWindow(_ context.Context, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, target)
	return nil
}

// failingPutStorage 包装真实存储，使第 failAfter 次之后的 Put 失败。
type failingPutStorage struct {
	cache.Storage
	mu        sync.Mutex
	puts      int
	failAfter int
}

func (s *failingPutStorage) Open(ctx context.Context, name string) (cache.Cache, error) {
	c, err := s.Storage.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &failingPutCache{Cache: c, parent: s}, nil
}

type failingPutCache struct {
	cache.Cache
	parent *failingPutStorage
}

func (c *failingPutCache) Put(ctx context.Context, key string, record cache.Record) error {
	c.parent.mu.Lock()
	c.parent.puts++
	fail := c.parent.puts > c.parent.failAfter
	c.parent.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return c.Cache.Put(ctx, key, record)
}

func newStorage(t *testing.T) cache.Storage {
	t.Helper()
	storage, err := cache.NewStorage(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}
	return storage
}

func newTestWorker(t *testing.T, cfg *config.Config, storage cache.Storage, network Fetcher) *Worker {
	t.Helper()
	w, err := New(cfg, Options{
		Caches:   storage,
		Network:  network,
		Notifier: &fakeNotifier{},
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	return w
}

// activeWorker 构造一个已经安装并激活的 worker。
func activeWorker(t *testing.T, cfg *config.Config, storage cache.Storage, network Fetcher) (*Worker, *Registration) {
	t.Helper()
	w := newTestWorker(t, cfg, storage, network)
	reg := NewRegistration(logging.Discard())
	if err := reg.Update(context.Background(), w); err != nil {
		t.Fatalf("update: %v", err)
	}
	if reg.Controller() != w {
		t.Fatalf("worker should control clients after update")
	}
	return w, reg
}

func getRequest(t *testing.T, raw string, mode Mode) *Request {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return &Request{Method: http.MethodGet, URL: u, Mode: mode, Header: http.Header{}}
}

func mustURL(t *testing.T, rawURL string) *url.URL {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u
}

func putRecord(t *testing.T, storage cache.Storage, store, rawURL, body string) {
	t.Helper()
	u := mustURL(t, rawURL)
	c, err := storage.Open(context.Background(), store)
	if err != nil {
		t.Fatalf("open %s: %v", store, err)
	}
	record := cache.Record{
		URL:    rawURL,
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/html"}},
		Body:   []byte(body),
	}
	if err := c.Put(context.Background(), cache.KeyForURL(u), record); err != nil {
		t.Fatalf("put %s: %v", rawURL, err)
	}
}

func storeNames(t *testing.T, storage cache.Storage) []string {
	t.Helper()
	names, err := storage.Keys(context.Background())
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	return names
}
