// Package poller turns the "start an async job, poll until done, report the
// result" pattern into one reusable unit. A session issues a status fetch on
// a fixed interval until the workflow reaches a terminal state, the timeout
// bound elapses, or the caller cancels the handle. Transient fetch errors do
// not stop a session; they are swallowed and counted, bounded only by the
// absolute timeout.
package poller
