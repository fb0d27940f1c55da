package repo

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestConn(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return conn
}

func TestBaseDBScopesContext(t *testing.T) {
	conn := openTestConn(t)
	base := NewBase(conn)

	type marker struct{}
	ctx := context.WithValue(context.Background(), marker{}, "set")

	scoped := base.DB(ctx)
	if scoped == nil || scoped.Statement == nil {
		t.Fatal("expected scoped session with a statement")
	}
	if scoped.Statement.Context != ctx {
		t.Fatalf("context did not flow through, got %v", scoped.Statement.Context)
	}
}

func TestBaseDBNilContextReturnsRawHandle(t *testing.T) {
	conn := openTestConn(t)
	base := NewBase(conn)

	if got := base.DB(nil); got != conn {
		t.Fatal("expected nil context to return the raw connection")
	}
}
