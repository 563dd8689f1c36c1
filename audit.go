package portunus

import (
	"context"

	"github.com/portunus-id/portunus/internal/audit"
)

// AuditEvent is one security-relevant outcome.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

// NewZapAuditSink and NewJSONAuditSink return the bundled sinks.
var (
	NewZapAuditSink  = audit.NewZapSink
	NewJSONAuditSink = audit.NewJSONSink
)

func (e *Engine) emitAudit(ctx context.Context, event string, success bool, userID, sessionID string, err error, meta map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	ev := AuditEvent{
		EventType: event,
		UserID:    userID,
		SessionID: sessionID,
		Success:   success,
		Metadata:  meta,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	e.audit.Record(ctx, ev)
}
