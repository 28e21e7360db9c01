// Package alert delivers best-effort operational notifications when
// delivery retries are exhausted. Notification failures are logged and
// swallowed; alerting must never take down the calling operation.
package alert

import (
	"context"
	"fmt"
	"time"

	"signal-relay/internal/common/logging"
)

// Context carries everything an operator needs to act on an exhaustion
// event. Constructed once at exhaustion, never persisted.
type Context struct {
	Operation     string
	Attempts      int
	Elapsed       time.Duration
	LastError     string
	CorrelationID string
}

// Message renders the human-readable alert text.
func (c Context) Message() string {
	return fmt.Sprintf(
		"⚠️ %s failed after %d attempts (%v)\nlast error: %s\ncorrelation: %s",
		c.Operation, c.Attempts, c.Elapsed.Round(time.Second), c.LastError, c.CorrelationID)
}

// Channel is any outbound messaging capability accepting a plain-text
// message and a target identifier.
type Channel interface {
	Send(ctx context.Context, target, text string) error
}

// Dispatcher sends alerts over a channel to a fixed target.
type Dispatcher struct {
	channel Channel
	target  string
	logger  logging.Logger
}

// NewDispatcher creates an alert dispatcher.
func NewDispatcher(channel Channel, target string, logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Dispatcher{
		channel: channel,
		target:  target,
		logger:  logger,
	}
}

// Notify delivers the alert, returning true on success. It never
// panics and never returns an error: a broken notification channel is
// logged and reported as false.
func (d *Dispatcher) Notify(ctx context.Context, alert Context) (delivered bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Alert channel panicked", fmt.Errorf("%v", r),
				logging.Field{Key: "operation", Value: alert.Operation},
			)
			delivered = false
		}
	}()

	if d.channel == nil {
		d.logger.Warn("No alert channel configured, dropping alert",
			logging.Field{Key: "operation", Value: alert.Operation},
		)
		return false
	}

	if err := d.channel.Send(ctx, d.target, alert.Message()); err != nil {
		d.logger.Error("Failed to deliver alert", err,
			logging.Field{Key: "operation", Value: alert.Operation},
			logging.Field{Key: "correlation_id", Value: alert.CorrelationID},
		)
		return false
	}

	d.logger.Info("Alert delivered",
		logging.Field{Key: "operation", Value: alert.Operation},
		logging.Field{Key: "correlation_id", Value: alert.CorrelationID},
	)
	return true
}
