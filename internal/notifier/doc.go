// Package notifier wraps the room transport with a token-bucket rate limit,
// a per-call timeout, a short send history and bus events.
//
// Sends are synchronous: the relay reports notifier failures to its API
// callers, so nothing is queued here.
package notifier
