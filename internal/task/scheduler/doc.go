// Package scheduler runs the collation flush at the configured daily send
// times.
//
// The next occurrence of each "HH:MM" is computed with a robfig/cron daily
// schedule; the loop sleeps on an injectable clock so tests can drive time.
package scheduler
