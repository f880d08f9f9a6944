package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orion-hotel/offline-hub/internal/config"
)

func TestRouteStrategies(t *testing.T) {
	w := newTestWorker(t, testConfig(), newStorage(t), newFakeNetwork())

	cases := []struct {
		name   string
		method string
		url    string
		want   Strategy
	}{
		{"post is bypassed", http.MethodPost, testOrigin + "/api/messages", StrategyBypass},
		{"head is bypassed", http.MethodHead, testOrigin + "/", StrategyBypass},
		{"chrome extension", http.MethodGet, "chrome-extension://abc/script.js", StrategyBypass},
		{"firefox extension", http.MethodGet, "moz-extension://abc/script.js", StrategyBypass},
		{"chat backend", http.MethodGet, "https://script.google.com/macros/s/abc/exec", StrategyAPITimeout},
		{"llm endpoint", http.MethodGet, "https://generativelanguage.googleapis.com/v1/models", StrategyAPITimeout},
		{"weather upper case", http.MethodGet, "https://API.OpenWeatherMap.org/data/2.5/weather?q=x", StrategyAPITimeout},
		{"app asset", http.MethodGet, testOrigin + "/assets/app.js", StrategyCacheFirst},
		{"third party asset", http.MethodGet, "https://fonts.example.com/font.woff2", StrategyCacheFirst},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := url.Parse(tc.url)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			got := w.Route(&Request{Method: tc.method, URL: u, Header: http.Header{}})
			if got != tc.want {
				t.Fatalf("Route(%s %s) = %s, want %s", tc.method, tc.url, got, tc.want)
			}
		})
	}
}

func TestRouteUsesDefaultAPIsWhenNoneDeclared(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "Origin = \"http://origin.test\"\nStoragePath = \"" + filepath.ToSlash(filepath.Join(dir, "storage")) + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	w := newTestWorker(t, cfg, newStorage(t), newFakeNetwork())

	for _, raw := range []string{
		"https://script.google.com/macros/s/abc/exec",
		"https://generativelanguage.googleapis.com/v1beta/models",
		"https://api.openweathermap.org/data/2.5/weather",
	} {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if got := w.Route(&Request{Method: http.MethodGet, URL: u, Header: http.Header{}}); got != StrategyAPITimeout {
			t.Fatalf("Route(GET %s) = %s, want %s", raw, got, StrategyAPITimeout)
		}
	}
}

func TestFetchNonGetIsNotIntercepted(t *testing.T) {
	network := shellNetwork()
	storage := newStorage(t)
	w := newTestWorker(t, testConfig(), storage, network)

	req := getRequest(t, testOrigin+"/api/messages", ModeCORS)
	req.Method = http.MethodPost
	resp, handled := w.Fetch(context.Background(), req)
	if handled || resp != nil {
		t.Fatalf("non-GET request must not be intercepted, got handled=%v resp=%v", handled, resp)
	}
	if network.callCount() != 0 {
		t.Fatalf("bypassed request must not reach the network fetcher")
	}
	if names := storeNames(t, storage); len(names) != 0 {
		t.Fatalf("bypassed request must not touch caches, got %v", names)
	}
}

func TestFetchAPITimeoutReturnsDegradedJSON(t *testing.T) {
	network := newFakeNetwork()
	network.block = true
	storage := newStorage(t)
	w := newTestWorker(t, testConfig(), storage, network)

	start := time.Now()
	resp, handled := w.Fetch(context.Background(), getRequest(t, "https://script.google.com/macros/s/abc/exec", ModeCORS))
	elapsed := time.Since(start)

	if !handled {
		t.Fatalf("api request should be handled")
	}
	if elapsed > 2*time.Second {
		t.Fatalf("api timeout not enforced, took %s", elapsed)
	}
	assertDegraded(t, resp)
	if names := storeNames(t, storage); len(names) != 0 {
		t.Fatalf("api requests must never touch caches, got %v", names)
	}
}

func TestFetchAPINetworkFailureReturnsDegradedJSON(t *testing.T) {
	network := newFakeNetwork()
	network.setDown(true)
	w := newTestWorker(t, testConfig(), newStorage(t), network)

	resp, _ := w.Fetch(context.Background(), getRequest(t, "https://api.openweathermap.org/data/2.5/weather", ModeCORS))
	assertDegraded(t, resp)
}

func TestFetchAPIResponsePassesThroughUncached(t *testing.T) {
	network := newFakeNetwork()
	network.set("https://script.google.com/exec", http.StatusInternalServerError, "application/json", `{"error":"boom"}`)
	storage := newStorage(t)
	w := newTestWorker(t, testConfig(), storage, network)

	resp, _ := w.Fetch(context.Background(), getRequest(t, "https://script.google.com/exec", ModeCORS))
	if resp.Status != http.StatusInternalServerError || resp.Source != SourceNetwork {
		t.Fatalf("http error status should be returned verbatim, got %d from %s", resp.Status, resp.Source)
	}
	if string(resp.Body) != `{"error":"boom"}` {
		t.Fatalf("unexpected body %q", resp.Body)
	}
	if names := storeNames(t, storage); len(names) != 0 {
		t.Fatalf("api requests must never touch caches, got %v", names)
	}
}

func TestFetchWriteThroughRoundTrip(t *testing.T) {
	network := newFakeNetwork()
	network.set(testOrigin+"/assets/app.js", http.StatusOK, "application/javascript", "console.log('orion')")
	w := newTestWorker(t, testConfig(), newStorage(t), network)

	first, _ := w.Fetch(context.Background(), getRequest(t, testOrigin+"/assets/app.js", ModeNoCORS))
	if first.Source != SourceNetwork {
		t.Fatalf("first request should come from network, got %s", first.Source)
	}

	network.setDown(true)
	second, _ := w.Fetch(context.Background(), getRequest(t, testOrigin+"/assets/app.js", ModeNoCORS))
	if second.Source != SourceCache {
		t.Fatalf("second request should be served from cache, got %s", second.Source)
	}
	if second.Status != first.Status || !bytes.Equal(second.Body, first.Body) {
		t.Fatalf("cached response differs: %d %q vs %d %q", second.Status, second.Body, first.Status, first.Body)
	}
	if second.Header.Get("Content-Type") != "application/javascript" {
		t.Fatalf("cached headers lost: %v", second.Header)
	}
}

func TestFetchCacheHitSkipsNetwork(t *testing.T) {
	network := newFakeNetwork()
	storage := newStorage(t)
	w := newTestWorker(t, testConfig(), storage, network)
	putRecord(t, storage, "orion-runtime-v1.0.0", testOrigin+"/assets/app.css", "body{}")

	resp, _ := w.Fetch(context.Background(), getRequest(t, testOrigin+"/assets/app.css", ModeNoCORS))
	if resp.Source != SourceCache || string(resp.Body) != "body{}" {
		t.Fatalf("expected cache hit, got %s %q", resp.Source, resp.Body)
	}
	if network.callCount() != 0 {
		t.Fatalf("cache hit must not revalidate against the network")
	}
}

func TestFetchOnlyCachesStatus200(t *testing.T) {
	network := newFakeNetwork()
	network.set(testOrigin+"/partial", http.StatusPartialContent, "text/plain", "part")
	w := newTestWorker(t, testConfig(), newStorage(t), network)

	resp, _ := w.Fetch(context.Background(), getRequest(t, testOrigin+"/partial", ModeNoCORS))
	if resp.Status != http.StatusPartialContent {
		t.Fatalf("network response should be returned, got %d", resp.Status)
	}
	_, _ = w.Fetch(context.Background(), getRequest(t, testOrigin+"/missing", ModeNoCORS))

	network.setDown(true)
	for _, path := range []string{"/partial", "/missing"} {
		resp, _ := w.Fetch(context.Background(), getRequest(t, testOrigin+path, ModeNoCORS))
		if resp.Source != SourceOffline {
			t.Fatalf("%s: non-200 responses must not be cached, got source %s", path, resp.Source)
		}
	}
}

func TestFetchPrefersPrecacheOverRuntime(t *testing.T) {
	storage := newStorage(t)
	w := newTestWorker(t, testConfig(), storage, newFakeNetwork())
	putRecord(t, storage, "aaa-legacy", testOrigin+"/index.html", "legacy")
	putRecord(t, storage, "orion-runtime-v1.0.0", testOrigin+"/index.html", "runtime")
	putRecord(t, storage, "orion-hotel-chat-v1.0.0", testOrigin+"/index.html", "precache")

	resp, _ := w.Fetch(context.Background(), getRequest(t, testOrigin+"/index.html", ModeNavigate))
	if string(resp.Body) != "precache" {
		t.Fatalf("precache store should win, got %q", resp.Body)
	}
}

func TestFetchFallsBackToOtherStores(t *testing.T) {
	storage := newStorage(t)
	network := newFakeNetwork()
	network.setDown(true)
	w := newTestWorker(t, testConfig(), storage, network)
	putRecord(t, storage, "zzz-legacy", testOrigin+"/app.js", "legacy app")
	putRecord(t, storage, "orion-runtime-v1.0.0", testOrigin+"/style.css", "runtime css")
	putRecord(t, storage, "aaa-legacy", testOrigin+"/style.css", "legacy css")

	resp, _ := w.Fetch(context.Background(), getRequest(t, testOrigin+"/app.js", ModeNoCORS))
	if resp.Source != SourceCache || string(resp.Body) != "legacy app" {
		t.Fatalf("older store should still answer, got %s %q", resp.Source, resp.Body)
	}
	resp, _ = w.Fetch(context.Background(), getRequest(t, testOrigin+"/style.css", ModeNoCORS))
	if string(resp.Body) != "runtime css" {
		t.Fatalf("runtime store should win over older stores, got %q", resp.Body)
	}
}

func TestFetchOfflineFallback(t *testing.T) {
	network := newFakeNetwork()
	network.setDown(true)
	storage := newStorage(t)
	w := newTestWorker(t, testConfig(), storage, network)
	putRecord(t, storage, "orion-hotel-chat-v1.0.0", testOrigin+"/index.html", "<html>index</html>")

	nav, _ := w.Fetch(context.Background(), getRequest(t, testOrigin+"/rooms/42", ModeNavigate))
	if nav.Source != SourceFallback || string(nav.Body) != "<html>index</html>" {
		t.Fatalf("navigation should fall back to cached index, got %s %q", nav.Source, nav.Body)
	}

	asset, _ := w.Fetch(context.Background(), getRequest(t, testOrigin+"/assets/missing.js", ModeNoCORS))
	assertOfflineText(t, asset)
}

func TestFetchNavigationWithoutFallbackIsOffline(t *testing.T) {
	network := newFakeNetwork()
	network.setDown(true)
	w := newTestWorker(t, testConfig(), newStorage(t), network)

	resp, _ := w.Fetch(context.Background(), getRequest(t, testOrigin+"/index.html", ModeNavigate))
	assertOfflineText(t, resp)
}

func TestFetchWriteThroughFailureIsSwallowed(t *testing.T) {
	network := newFakeNetwork()
	network.set(testOrigin+"/assets/app.js", http.StatusOK, "application/javascript", "ok")
	storage := &failingPutStorage{Storage: newStorage(t)}
	w := newTestWorker(t, testConfig(), storage, network)

	resp, _ := w.Fetch(context.Background(), getRequest(t, testOrigin+"/assets/app.js", ModeNoCORS))
	if resp.Status != http.StatusOK || string(resp.Body) != "ok" || resp.Source != SourceNetwork {
		t.Fatalf("cache write failure must not affect the response, got %d %q %s", resp.Status, resp.Body, resp.Source)
	}
}

func TestFetchCachedCopyIsIndependent(t *testing.T) {
	network := newFakeNetwork()
	network.set(testOrigin+"/data.json", http.StatusOK, "application/json", `{"a":1}`)
	w := newTestWorker(t, testConfig(), newStorage(t), network)

	first, _ := w.Fetch(context.Background(), getRequest(t, testOrigin+"/data.json", ModeCORS))
	first.Body[0] = 'X'
	first.Header.Set("Content-Type", "text/plain")

	network.setDown(true)
	second, _ := w.Fetch(context.Background(), getRequest(t, testOrigin+"/data.json", ModeCORS))
	if string(second.Body) != `{"a":1}` || second.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("cached copy was mutated through the returned response: %q %v", second.Body, second.Header)
	}
}

func assertDegraded(t *testing.T, resp *Response) {
	t.Helper()
	if resp == nil {
		t.Fatalf("expected degraded response, got nil")
	}
	if resp.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json content type, got %q", ct)
	}
	var payload struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Offline bool   `json:"offline"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		t.Fatalf("degraded body is not valid json: %v", err)
	}
	if payload.Type != "error" || !payload.Offline || payload.Message == "" {
		t.Fatalf("unexpected degraded payload: %+v", payload)
	}
}

func assertOfflineText(t *testing.T, resp *Response) {
	t.Helper()
	if resp.Status != http.StatusServiceUnavailable || string(resp.Body) != "Offline" {
		t.Fatalf("expected plain-text 503 Offline, got %d %q", resp.Status, resp.Body)
	}
	if resp.Source != SourceOffline {
		t.Fatalf("expected offline source, got %s", resp.Source)
	}
}
