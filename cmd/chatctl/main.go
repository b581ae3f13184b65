// Command chatctl performs maintenance on the chat database.
//
//	chatctl purge-messages --yes   delete every stored turn
//	chatctl reset-users --yes      drop and recreate the users table
//
// Both commands are destructive and refuse to run without --yes (or
// CHATCTL_YES=1).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/cot-chat/internal/repo"
	"github.com/tbourn/cot-chat/internal/sysutil"
)

var errNotConfirmed = errors.New("refusing to run without --yes")

// opener opens the database at path; tests swap in an in-memory one.
type opener func(path string) (*gorm.DB, error)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(os.Stdout, openDB).Execute(); err != nil {
		os.Exit(1)
	}
}

func openDB(path string) (*gorm.DB, error) {
	db, err := repo.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	return db, repo.AutoMigrate(db)
}

func newRootCmd(out io.Writer, open opener) *cobra.Command {
	var dbPath string
	var yes bool

	root := &cobra.Command{
		Use:          "chatctl",
		Short:        "Maintenance commands for the chat database",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(out)
	root.PersistentFlags().StringVar(&dbPath, "db", sysutil.FirstNonEmpty(os.Getenv("DB_PATH"), "chat_history.db"), "SQLite database path")
	root.PersistentFlags().BoolVar(&yes, "yes", sysutil.IsTruthy(os.Getenv("CHATCTL_YES")), "confirm the destructive operation")

	// withDB confirms, opens the database and runs fn against it.
	withDB := func(fn func(ctx context.Context, cmd *cobra.Command, db *gorm.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errNotConfirmed
			}
			db, err := open(dbPath)
			if err != nil {
				return fmt.Errorf("open %s: %w", dbPath, err)
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			return fn(cmd.Context(), cmd, db)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "purge-messages",
		Short: "Delete every stored conversation turn",
		Args:  cobra.NoArgs,
		RunE: withDB(func(ctx context.Context, cmd *cobra.Command, db *gorm.DB) error {
			n, err := repo.DeleteAllMessages(ctx, db)
			if err != nil {
				return err
			}
			cmd.Printf("deleted %d messages\n", n)
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "reset-users",
		Short: "Drop and recreate the users table",
		Args:  cobra.NoArgs,
		RunE: withDB(func(ctx context.Context, cmd *cobra.Command, db *gorm.DB) error {
			if err := repo.ResetUsers(ctx, db); err != nil {
				return err
			}
			cmd.Println("users table reset")
			return nil
		}),
	})

	return root
}
