// Package server hosts the Fiber HTTP service that fronts the offline worker.
// It owns the request middleware chain (request IDs, panic recovery), maps the
// incoming Host onto a target URL, translates Fiber contexts into
// worker.Request values and writes worker.Response values back. Requests the
// controlling worker declines, or that arrive before any worker controls the
// clients, are passed straight to the network. Control endpoints under /-/
// feed the message, push, sync and notification hooks of the worker.
package server
