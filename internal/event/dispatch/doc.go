// Package dispatch provides the execution layer for the event bus.
// It separates the mechanics of running handlers (panic recovery,
// timing, timeouts, worker pools) from the routing logic in the event
// package.
//
// The SyncDispatcher executes handler chains in the caller's
// goroutine. The AsyncDispatcher queues handler chains onto a bounded
// worker pool; one queued job is the full priority-ordered chain for a
// single event, so relative handler order within an event is preserved
// even on the async path.
package dispatch
