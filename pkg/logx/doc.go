// Package logx is the structured logger used across statusbar.
//
// Logger wraps zerolog with typed Field helpers and a short file:line
// caller. Loggers from a Service follow its level and sink changes, which
// is how config reloads reach components that captured a Logger earlier.
package logx
