// Package worker is the offline request router and cache policy of
// offline-hub. A Worker mirrors the lifecycle of a browser service worker:
// Install precaches the application shell, Activate deletes cache stores of
// previous versions and claims clients, and Fetch decides per request
// whether to bypass, go to a backend API with a bounded wait, or serve
// cache-first with write-through into the runtime store. Message, Sync,
// Push and NotificationClick cover the control channel and presentation
// hooks.
//
// The package has no HTTP server types. Cache storage, network access,
// notification display and the clock are injected through Dependencies, and
// the Fiber host in internal/server adapts HTTP traffic onto these methods.
// A Registration tracks which Worker currently controls the clients.
package worker
