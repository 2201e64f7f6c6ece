// Package plugin holds the framework's plugin registry and the event bus
// plugin proxies emit through.
//
// Plugins register once at startup. For each request the pipeline asks the
// Manager for proxies and binds every proxy to the current request's context
// bag, so a proxy created once still sees per-request state and a stale
// back-reference can never leak one request's context into another's plugin
// calls. Proxy events route through the bus under the namespaced channel
// plugin:<name>:<event>.
//
// The bus is an in-process pub/sub hub: buffered per-subscriber channels,
// messages dropped for slow consumers rather than blocking publishers.
package plugin
