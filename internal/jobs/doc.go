// Package jobs persists conversion job records in SQLite. Jobs carry the
// externally visible state of a request: status, progress, result artifact,
// and failure detail. Writes refresh a retention deadline; a periodic sweep
// removes records past it.
package jobs
