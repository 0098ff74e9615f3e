// Package context holds correlation identifiers shared by logs and traces.
package context

import (
	"context"

	"github.com/smallbiznis/mailseat/internal/auditcontext"
	"github.com/smallbiznis/mailseat/internal/orgcontext"
)

type requestIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

func OrgIDFromContext(ctx context.Context) string {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return ""
	}
	return orgID.String()
}

func ActorFromContext(ctx context.Context) (string, string) {
	return auditcontext.ActorFromContext(ctx)
}
