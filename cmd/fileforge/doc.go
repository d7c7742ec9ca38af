// Command fileforge is the CLI for the FileForge conversion daemon: it runs
// the daemon in the foreground, submits conversions, and inspects jobs,
// formats, and the work queue over the daemon's HTTP API.
package main
