// Package event provides the in-process publish/subscribe event bus.
//
// Events are immutable (type, payload) records routed by exact type
// match. Subscriptions carry an integer priority; within one publish,
// handlers fire in descending priority order, ties broken by
// registration order. Handler failures and panics are contained per
// handler: they are logged and never stop delivery to the remaining
// handlers, and never propagate to the publisher.
//
// The bus has an explicit lifecycle: Start establishes the worker pool
// backing asynchronous delivery, Stop drains it and drops all
// subscriptions. Publishing on a stopped bus is an error.
package event
