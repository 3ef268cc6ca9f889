package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// FolioScoped is implemented by request messages that target one folio.
type FolioScoped interface {
	FolioRef() string
}

// LoggingInterceptor returns a Connect interceptor that logs every RPC call
// with its procedure, folio, duration, and outcome. Caller mistakes log at
// Warn; server and backend faults at Error.
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			attrs := []any{"procedure", req.Spec().Procedure}
			if scoped, ok := req.Any().(FolioScoped); ok && scoped.FolioRef() != "" {
				attrs = append(attrs, "folio_id", scoped.FolioRef())
			}

			resp, err := next(ctx, req)

			attrs = append(attrs, "duration_ms", time.Since(start).Milliseconds())
			if err == nil {
				slog.Info("RPC ok", attrs...)
				return resp, nil
			}

			attrs = append(attrs, "code", connect.CodeOf(err))
			var connectErr *connect.Error
			if errors.As(err, &connectErr) && !isServerFault(connectErr.Code()) {
				slog.Warn("RPC rejected", append(attrs, "error", connectErr.Message())...)
			} else {
				slog.Error("RPC failed", append(attrs, "error", err)...)
			}
			return resp, err
		}
	}
}

func isServerFault(code connect.Code) bool {
	switch code {
	case connect.CodeInternal, connect.CodeUnavailable, connect.CodeUnknown, connect.CodeDataLoss:
		return true
	}
	return false
}
