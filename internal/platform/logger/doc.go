// Package logger provides structured logging functionality for the application.
//
// It utilizes Go's standard library log/slog package to implement structured JSON logging
// with configurable log levels, and carries request- or task-scoped loggers through
// context.Context so that deep call chains (worker -> upstream client) log with the
// task's attributes attached.
package logger
