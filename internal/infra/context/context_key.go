// Package context holds the request scoped values shared between the
// transport, service and logging layers.
package context

type contextKey string
