package transaction

import (
	"context"

	"github.com/conduit-lang/objectserver/internal/orm/database"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	// contextKeyConn is the key for storing the scope connection in context
	contextKeyConn contextKey = "objectserver:conn"
)

// FromContext retrieves the connection of the enclosing transaction
func FromContext(ctx context.Context) (database.Conn, bool) {
	conn, ok := ctx.Value(contextKeyConn).(database.Conn)
	return conn, ok
}

// WithContext returns a new context with the connection embedded
func WithContext(ctx context.Context, conn database.Conn) context.Context {
	return context.WithValue(ctx, contextKeyConn, conn)
}
