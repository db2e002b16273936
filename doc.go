// Package flowwatch is a client toolkit for asynchronous workflow APIs of
// the kind exposed by site-builder backends: content generation runs, backup
// and restore jobs, and similar long-running operations identified by an
// opaque workflow ID.
//
// The core primitive is the poll session: start a workflow, fetch its status
// on a fixed interval until it reaches a terminal state, then report the
// outcome exactly once through completion/failure callbacks, bounded by an
// absolute timeout and cancellable mid-flight.
//
//	svc, err := flowwatch.New()
//	id, handle, err := svc.StartWorkflow(ctx, &job.Job{Kind: "content/generate"},
//	    poller.WithOnComplete(func(results map[string]interface{}) { ... }),
//	    poller.WithOnFailed(func(err error) { ... }),
//	)
//
// The backend is pluggable: an HTTP client speaking the start/status/cancel
// endpoints, or an embedded in-process runner executing registered handlers,
// useful in tests and single-binary deployments.
package flowwatch
