package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base carries the GORM handle shared by the domain repositories and scopes
// it to a request context. Repositories embed it and call DB(ctx) for every
// query so cancellation propagates to the driver.
type Base struct {
	conn *gorm.DB
}

// NewBase wraps a GORM connection for embedding in a repository.
func NewBase(conn *gorm.DB) Base {
	return Base{conn: conn}
}

// DB returns the connection scoped to ctx. A nil ctx returns the raw handle.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.conn
	}
	return b.conn.WithContext(ctx)
}
