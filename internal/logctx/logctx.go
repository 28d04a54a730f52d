// Package logctx decorates slog records with request-scoped bridge data
// carried on the context: the JSON-RPC message being handled and the last
// observed backend lifecycle state.
package logctx

import (
	"context"
	"log/slog"
)

type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if msg, ok := ctx.Value(rpcMsgKey{}).(*RPCMessage); ok {
		r.AddAttrs(slog.Group("rpc",
			slog.String("method", msg.Method),
			slog.String("id", msg.ID),
			slog.String("type", msg.Type),
		))
	}

	if bd, ok := ctx.Value(backendDataKey{}).(*BackendData); ok {
		r.AddAttrs(slog.Group("backend",
			slog.String("state", bd.State),
			slog.String("session_id", bd.SessionID),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type rpcMsgKey struct{}

type RPCMessage struct {
	Method string
	ID     string
	Type   string
}

func WithRPCMessage(ctx context.Context, msg *RPCMessage) context.Context {
	return context.WithValue(ctx, rpcMsgKey{}, msg)
}

type backendDataKey struct{}

type BackendData struct {
	State     string
	SessionID string
}

func WithBackendData(ctx context.Context, data *BackendData) context.Context {
	return context.WithValue(ctx, backendDataKey{}, data)
}
