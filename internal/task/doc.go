// Package task provides background task execution with callback
// delivery. A submitted function runs on its own goroutine, bounded by
// a configurable concurrency limit; the returned Handle is held in an
// active-task set from submission until its terminal callback returns,
// then removed exactly once. There is no cancellation of running work:
// tasks run to completion or failure.
package task
