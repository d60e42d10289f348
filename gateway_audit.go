package authbridge

import (
	"context"
)

const (
	auditEventLoginSuccess   = "login_success"
	auditEventLoginFailure   = "login_failure"
	auditEventVerifyRejected = "verify_rejected"
	auditEventTokenRotated   = "token_rotated"
	auditEventRefreshSuccess = "refresh_success"
	auditEventRefreshFailure = "refresh_failure"
	auditEventLogout         = "logout"
	auditEventLogoutFailure  = "logout_failure"
)

// emitAudit queues one event. The dispatcher stamps it and attaches the
// request id, client IP and user agent carried by ctx.
func (g *Gateway) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if g == nil || g.audit == nil {
		return
	}

	event := AuditEvent{
		EventType: eventType,
		UserID:    userID,
		TokenID:   tokenID,
		Success:   success,
	}
	if metadataBuilder != nil {
		event.Metadata = metadataBuilder()
	}
	if err != nil {
		event.Reason = ReasonOf(err)
	}
	g.audit.Emit(ctx, event)
}
