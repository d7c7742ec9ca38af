// Package orchestrator admits conversion requests and answers job queries.
// It validates format pairs against the catalog, creates the durable job
// record, and hands the work to the queue; executors do the rest.
package orchestrator
