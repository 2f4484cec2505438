package shared

import (
	"context"
	"net/http"
)

type ctxKey int

const sessionKey ctxKey = iota

// ContextWithSession attaches the session loaded for this request. A nil
// session leaves ctx unchanged.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	if sess == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromContext returns the request session or nil.
func SessionFromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	sess, _ := ctx.Value(sessionKey).(*Session)
	return sess
}

// SessionFromRequest is SessionFromContext(r.Context()).
func SessionFromRequest(r *http.Request) *Session {
	if r == nil {
		return nil
	}
	return SessionFromContext(r.Context())
}
