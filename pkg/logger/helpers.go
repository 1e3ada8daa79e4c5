package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// orGlobal returns l, or the global logger when l is nil.
func orGlobal(l Logger) Logger {
	if l == nil {
		return GetLogger()
	}
	return l
}

// LogAuthAttempt logs the outcome of a single authentication method.
func LogAuthAttempt(l Logger, method string, err error) {
	log := orGlobal(l).WithField("method", method)
	if err != nil {
		log.WithError(err).Warn("Authentication method failed")
		return
	}
	log.Info("Authentication method succeeded")
}

// LogAuthFailure logs a classified authentication failure together with the
// operator remediation text.
func LogAuthFailure(l Logger, kind, remediation string, err error) {
	orGlobal(l).WithError(err).WithFields(map[string]interface{}{
		"error_kind":  kind,
		"remediation": remediation,
	}).Error("Authentication failed")
}

// LogRateLimit logs rate limiting events
func LogRateLimit(l Logger, operation string, backoff time.Duration) {
	orGlobal(l).WithFields(map[string]interface{}{
		"operation": operation,
		"backoff":   backoff,
		"action":    "rate_limited",
	}).Warn("Rate limit signalled, backing off")
}

// LogCommentProcessed logs the final action taken for a comment
func LogCommentProcessed(l Logger, commentID, username, action, keyword string) {
	fields := map[string]interface{}{
		"comment_id": commentID,
		"username":   username,
		"action":     action,
	}
	if keyword != "" {
		fields["keyword"] = keyword
	}
	orGlobal(l).InfoWithFields("Comment processed", fields)
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, config map[string]interface{}) {
	logger := GetLogger().WithField("component", component)

	if len(config) > 0 {
		logger = logger.WithFields(config)
	}

	logger.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(component string, reason string) {
	GetLogger().WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
