// cmd/exammer-migrate/main.go
package main

import (
	"fmt"
	"os"

	"github.com/ehtbanton/exammer/internal/config"
	internal_storage "github.com/ehtbanton/exammer/internal/storage"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{Use: "exammer-migrate"}

func newMigrator(cmd *cobra.Command) *migrate.Migrate {
	dbPath, _ := cmd.Flags().GetString("db")
	sourceURL, _ := cmd.Flags().GetString("migrations")
	if dbPath == "" || sourceURL == "" {
		// Fall back to the environment (and .env) for anything not given
		// as a flag.
		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		if dbPath == "" {
			dbPath = cfg.DBPath
		}
		if sourceURL == "" {
			sourceURL = cfg.MigrationsURL
		}
	}
	m, err := internal_storage.NewMigrator(dbPath, sourceURL)
	if err != nil {
		fmt.Printf("Failed to initialize migrations: %v\n", err)
		os.Exit(1)
	}
	return m
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Run: func(cmd *cobra.Command, args []string) {
		m := newMigrator(cmd)
		defer m.Close()
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			fmt.Printf("Failed to apply migrations: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations applied successfully")
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	Run: func(cmd *cobra.Command, args []string) {
		m := newMigrator(cmd)
		defer m.Close()
		if err := m.Steps(-1); err != nil {
			fmt.Printf("Failed to roll back migration: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Rolled back one migration")
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current migration version",
	Run: func(cmd *cobra.Command, args []string) {
		m := newMigrator(cmd)
		defer m.Close()
		version, dirty, err := m.Version()
		if err == migrate.ErrNilVersion {
			fmt.Println("No migrations applied yet")
			return
		}
		if err != nil {
			fmt.Printf("Failed to read migration version: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Version: %d, dirty: %v\n", version, dirty)
	},
}

func main() {
	rootCmd.AddCommand(upCmd, downCmd, versionCmd)
	rootCmd.PersistentFlags().String("db", "", "Database file path (defaults to EXAMMER_DB_PATH)")
	rootCmd.PersistentFlags().String("migrations", "", "Migrations source URL (defaults to EXAMMER_MIGRATIONS_URL)")
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
