// Package daemon assembles the stores, worker pool, broadcaster, and HTTP
// API into the single long-running fileforged process.
package daemon
