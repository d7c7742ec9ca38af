// Package faults defines the error taxonomy shared by the orchestration
// pipeline: sentinel markers, wrapping helpers, and the retryability rule
// the queue uses to decide between redelivery and terminal failure.
package faults
