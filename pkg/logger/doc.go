// Package logger provides the structured logging interface used across igdmbot.
//
// It wraps zerolog behind the Logger interface so components can be handed a
// logger (or a Recorder in tests) instead of reaching for a global:
//
//	log, err := logger.New(&cfg.Logging)
//	log.WithField("comment_id", c.ID).Info("Comment processed")
//
// Output is a colored console format on terminals, plain console text when
// stdout is redirected, or JSON lines when Format is "json". When File is set
// every line is also appended to that file.
//
// The helpers in this package (LogAuthFailure, LogRateLimit,
// LogCommentProcessed) keep field names consistent between components.
package logger
