// Package notifications sends push notifications about job outcomes via
// ntfy. Without a configured topic the service is a no-op.
package notifications
