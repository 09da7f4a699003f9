package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirocco-cloud/sirocco/pkg/actions"
	"github.com/sirocco-cloud/sirocco/pkg/config"
	"github.com/sirocco-cloud/sirocco/pkg/storage"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

// actionDescriptions documents the shipped action types for the registry
// rows seeded at upgrade time.
var actionDescriptions = map[string]string{
	actions.TypeMigrate:      "Migrate an instance to another compute node (live or cold)",
	actions.TypeResize:       "Resize an instance to a different flavor",
	actions.TypeStart:        "Start a stopped instance",
	actions.TypeStop:         "Stop a running instance",
	actions.TypeServiceState: "Enable or disable a compute service",
	actions.TypeVolumeMigrate: "Move a volume to another storage pool or type " +
		"(migrate, swap or retype)",
	actions.TypeNop:   "Log a message without touching the cloud",
	actions.TypeSleep: "Pause plan execution for a fixed duration",
}

var dbUpgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Migrate(); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		// Seed the action registry rows so operators can discover the
		// shipped action types.
		for _, actionType := range actions.DefaultRegistry().Types() {
			desc := actionDescriptions[actionType]
			if desc == "" {
				desc = actionType
			}
			if _, err := store.UpsertActionDescription(actionType, desc); err != nil {
				return fmt.Errorf("failed to seed action %s: %w", actionType, err)
			}
		}

		fmt.Println("Database schema is up to date")
		return nil
	},
}

var purgeAge time.Duration

var dbPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Hard-delete soft-deleted rows older than a cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Purge(purgeAge); err != nil {
			return fmt.Errorf("purge failed: %w", err)
		}
		fmt.Printf("Purged tombstones older than %s\n", purgeAge)
		return nil
	},
}

func openStore(ctx context.Context) (*storage.Storage, error) {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg.DBDialect, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, nil
}

func init() {
	dbCmd.AddCommand(dbUpgradeCmd)
	dbCmd.AddCommand(dbPurgeCmd)

	dbPurgeCmd.Flags().DurationVar(&purgeAge, "older-than", 30*24*time.Hour,
		"Age a tombstone must exceed to be removed")
}
