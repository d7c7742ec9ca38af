// Package queue implements durable task delivery on SQLite: at-most-one
// task per job, lease-based claims with a compare-and-swap so concurrent
// executors never share a task, exponential backoff on retryable failures,
// and retention pruning for finished work. A small hub fans task events out
// to interested sinks.
package queue
