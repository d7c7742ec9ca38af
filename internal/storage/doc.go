// Package storage persists uploaded sources and conversion results as blobs
// and issues signed, expiring download URLs for them.
package storage
