// Package util provides the logger and traffic counters shared by the
// network workers and the CLI.
package util
