package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ehtbanton/exammer/internal/access"
	"github.com/ehtbanton/exammer/internal/ai"
	"github.com/ehtbanton/exammer/internal/config"
	internal_http "github.com/ehtbanton/exammer/internal/http"
	"github.com/ehtbanton/exammer/internal/log"
	"github.com/ehtbanton/exammer/internal/pipeline"
	internal_storage "github.com/ehtbanton/exammer/internal/storage"
	"github.com/ehtbanton/exammer/pkg/queue"
	"github.com/ehtbanton/exammer/pkg/storage"
	"github.com/spf13/cobra"
)

func SetupCLI(rootCmd *cobra.Command) {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Exammer API server",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			log.SetLevel(cfg.LogLevel)
			runServer(cfg)
		},
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one access sync cycle",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			log.SetLevel(cfg.LogLevel)
			fromFile, err := cmd.Flags().GetBool("from-file")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving from-file flag: %v", err)
				os.Exit(1)
			}
			store := openStore(cfg)
			defer store.Close()
			syncer := access.NewSyncer(store, log.GetLogger(),
				access.WithFilePath(cfg.AccessFile))
			runSync(syncer, fromFile)
		},
	}
	syncCmd.Flags().Bool("from-file", false,
		"Apply the access file to the database instead of regenerating the file")

	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect and manage users",
	}

	usersListCmd := &cobra.Command{
		Use:   "list",
		Short: "List all users",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			log.SetLevel(cfg.LogLevel)
			store := openStore(cfg)
			defer store.Close()
			listUsers(store)
		},
	}

	setAccessCmd := &cobra.Command{
		Use:   "set-access [id] [level]",
		Short: "Set a user's access level and revoke their sessions",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			log.SetLevel(cfg.LogLevel)
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				log.GetLogger().Errorf("Error parsing id as number: %v", err)
				fmt.Fprintf(os.Stderr, "Error: id must be a number: %v\n", err)
				os.Exit(1)
			}
			level, err := strconv.Atoi(args[1])
			if err != nil {
				log.GetLogger().Errorf("Error parsing level as number: %v", err)
				fmt.Fprintf(os.Stderr, "Error: level must be a number: %v\n", err)
				os.Exit(1)
			}
			store := openStore(cfg)
			defer store.Close()
			syncer := access.NewSyncer(store, log.GetLogger(),
				access.WithFilePath(cfg.AccessFile))
			setAccess(syncer, id, level)
		},
	}

	usersCmd.AddCommand(usersListCmd, setAccessCmd)
	rootCmd.AddCommand(serveCmd, syncCmd, usersCmd)
}

func runServer(cfg *config.Config) {
	logger := log.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := openStore(cfg)
	defer store.Close()

	q := queue.New(logger)
	defer q.Close()

	gen, err := ai.NewOllamaGenerator(cfg.OllamaModel)
	if err != nil {
		logger.Errorf("Failed to initialize generator: %v", err)
		os.Exit(1)
	}
	svc := pipeline.NewService(store, q, gen, logger)

	syncer := access.NewSyncer(store, logger,
		access.WithFilePath(cfg.AccessFile),
		access.WithDebounce(cfg.SyncDebounce))
	if err := syncer.Initialize(ctx); err != nil {
		logger.Errorf("Failed to initialize access sync: %v", err)
		os.Exit(1)
	}
	defer syncer.Close()
	if err := syncer.StartPeriodicReconcile(ctx, cfg.ReconcileSchedule); err != nil {
		logger.Errorf("Failed to start periodic reconcile: %v", err)
		os.Exit(1)
	}

	srv := internal_http.NewServer(cfg.Addr(), svc, syncer, store)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Forced shutdown: %v", err)
		}
		<-errCh
	case err := <-errCh:
		if err != nil {
			logger.Errorf("Server error: %v", err)
			os.Exit(1)
		}
	}
}

func runSync(syncer *access.Syncer, fromFile bool) {
	var err error
	if fromFile {
		err = syncer.SyncFileToDatabase(context.Background())
	} else {
		err = syncer.SyncDatabaseToFile(context.Background())
	}
	if err != nil {
		log.GetLogger().Errorf("Failed to sync: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to sync: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "Sync complete.\n")
}

func listUsers(store storage.Store) {
	users, err := store.ListUsers()
	if err != nil {
		log.GetLogger().Errorf("Failed to list users: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to list users: %v\n", err)
		os.Exit(1)
	}
	if len(users) == 0 {
		fmt.Fprintf(os.Stdout, "No users found.\n")
		return
	}
	fmt.Fprintf(os.Stdout, "Users:\n")
	for _, u := range users {
		name := ""
		if u.Name != nil {
			name = *u.Name
		}
		fmt.Fprintf(os.Stdout, "- ID: %d, Email: %s, Name: %s, Access: %d, Created: %s\n",
			u.ID, u.Email, name, u.AccessLevel, u.CreatedAt.Format(time.RFC3339))
	}
}

func setAccess(syncer *access.Syncer, id int64, level int) {
	if err := syncer.UpdateUserAccessLevel(context.Background(), id, level); err != nil {
		log.GetLogger().Errorf("Failed to update access level: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to update access level: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "Updated access level of user %d to %d\n", id, level)
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.GetLogger().Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	return cfg
}

func openStore(cfg *config.Config) *internal_storage.SQLiteStore {
	if !cfg.SkipMigrations {
		if err := internal_storage.MigrateFile(cfg.DBPath, cfg.MigrationsURL); err != nil {
			log.GetLogger().Errorf("Failed to apply migrations: %v", err)
			os.Exit(1)
		}
	}
	store, err := internal_storage.InitStore(cfg.DBPath)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}
