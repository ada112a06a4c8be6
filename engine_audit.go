package authcore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/veritasec/authcore/audit"
)

// emitAudit chains one entry for an engine operation. A sink failure is
// escalated: the caller must fail the guarded operation, because an
// unrecorded security event is worse than a refused one.
func (e *Engine) emitAudit(ctx context.Context, action audit.Action, outcome audit.Outcome, actorID, resource string, before, after any) error {
	entry := audit.Entry{
		ActorID:   actorID,
		ActorType: audit.ActorUser,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Action:    action,
		Outcome:   outcome,
		Resource:  resource,
		Before:    snapshot(before),
		After:     snapshot(after),
	}
	if actorID == "" {
		entry.ActorType = audit.ActorSystem
	}
	if _, err := e.audit.Record(ctx, entry); err != nil {
		e.metrics.Inc(MetricAuditFailure, 1)
		return errors.Join(ErrAuditUnavailable, err)
	}
	return nil
}

// failAudited records a failed operation and returns failure to the
// caller, preferring the audit error when the trail itself is down.
func (e *Engine) failAudited(ctx context.Context, action audit.Action, actorID, resource string, detail any, failErr error) error {
	if aerr := e.emitAudit(ctx, action, audit.OutcomeFailure, actorID, resource, nil, detail); aerr != nil {
		return aerr
	}
	return failErr
}

func snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func reason(r string) map[string]string {
	return map[string]string{"reason": r}
}
