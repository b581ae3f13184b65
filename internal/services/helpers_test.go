package services

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/cot-chat/internal/inference"
	"github.com/tbourn/cot-chat/internal/repo"
)

// newTestDB opens a private in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// stubGateway returns a fixed result and records what it was asked.
type stubGateway struct {
	res    inference.Result
	calls  int
	texts  []string
	models []string
}

func (g *stubGateway) Infer(_ context.Context, text, model string) inference.Result {
	g.calls++
	g.texts = append(g.texts, text)
	g.models = append(g.models, model)
	return g.res
}

// blockingGateway waits for release before answering, so tests can act
// while a send is in flight.
type blockingGateway struct {
	entered chan struct{}
	release chan inference.Result
}

func newBlockingGateway() *blockingGateway {
	return &blockingGateway{
		entered: make(chan struct{}, 1),
		release: make(chan inference.Result, 1),
	}
}

func (g *blockingGateway) Infer(ctx context.Context, _, _ string) inference.Result {
	g.entered <- struct{}{}
	select {
	case r := <-g.release:
		return r
	case <-ctx.Done():
		return inference.TransportError(ctx.Err())
	}
}
