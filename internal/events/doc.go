// Package events fans live job updates out to subscribers. Each
// subscription starts with a snapshot of the job's stored state followed by
// progress, completion, and failure messages in delivery order.
package events
