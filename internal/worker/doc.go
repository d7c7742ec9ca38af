// Package worker runs the bounded pool of conversion executors plus the
// janitor that reclaims expired leases and prunes finished work.
package worker
