package model

import "context"

type ctxKey int

var connectionKey ctxKey

// NewContextWithConnection returns a new [context.Context] that carries the active connection.
func NewContextWithConnection(ctx context.Context, connection *Connection) context.Context {
	return context.WithValue(ctx, connectionKey, connection)
}

// GetConnectionFromContext returns the connection stored in the ctx, if any.
func GetConnectionFromContext(ctx context.Context) (*Connection, bool) {
	c, ok := ctx.Value(connectionKey).(*Connection)
	return c, ok && c != nil
}
