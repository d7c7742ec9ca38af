// Package api serves the HTTP surface: upload and conversion submission,
// status and format queries, signed downloads, and per-job SSE streams.
package api
