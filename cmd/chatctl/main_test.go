package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/cot-chat/internal/repo"
)

func memOpener(t *testing.T) (opener, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// The command closes the handle it is given; the shared-cache database
	// survives because db stays open for assertions.
	return func(string) (*gorm.DB, error) {
		return gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
	}, db
}

func run(t *testing.T, open opener, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out, open)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPurgeMessages(t *testing.T) {
	open, db := memOpener(t)
	ctx := context.Background()
	for _, c := range []string{"hi", "hello"} {
		if _, err := repo.RecordMessage(ctx, db, "s-1", "user", c, time.Now()); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	out, err := run(t, open, "purge-messages", "--yes")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if !strings.Contains(out, "deleted 2 messages") {
		t.Fatalf("output = %q", out)
	}
	if n, _ := repo.CountMessages(ctx, db, "s-1"); n != 0 {
		t.Fatalf("messages left = %d", n)
	}
}

func TestResetUsers(t *testing.T) {
	open, db := memOpener(t)
	ctx := context.Background()
	if _, err := repo.CreateUser(ctx, db, "a@x.com", "hash", "A", "B"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	out, err := run(t, open, "reset-users", "--yes")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.Contains(out, "users table reset") {
		t.Fatalf("output = %q", out)
	}
	if n, _ := repo.CountUsersByEmail(ctx, db, "a@x.com"); n != 0 {
		t.Fatalf("users left = %d", n)
	}
}

func TestDestructiveCommandsNeedConfirmation(t *testing.T) {
	t.Setenv("CHATCTL_YES", "")
	opened := false
	open := func(string) (*gorm.DB, error) {
		opened = true
		return nil, errors.New("should not open")
	}
	for _, name := range []string{"purge-messages", "reset-users"} {
		if _, err := run(t, open, name); !errors.Is(err, errNotConfirmed) {
			t.Fatalf("%s without --yes: err = %v", name, err)
		}
	}
	if opened {
		t.Fatal("database opened without confirmation")
	}
}

func TestOpenFailureIsReported(t *testing.T) {
	open := func(string) (*gorm.DB, error) { return nil, errors.New("disk gone") }
	_, err := run(t, open, "purge-messages", "--yes", "--db", "/nowhere/x.db")
	if err == nil || !strings.Contains(err.Error(), "disk gone") {
		t.Fatalf("err = %v", err)
	}
}
