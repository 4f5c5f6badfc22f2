package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/framewall/internal/config"
	"github.com/andresmejia3/framewall/internal/logging"
	"github.com/andresmejia3/framewall/internal/render"
	"github.com/andresmejia3/framewall/internal/store"
	"github.com/spf13/cobra"
)

// dbAnnotation tells PersistentPreRunE whether a command needs the session journal.
const dbAnnotation = "framewall/db"

const (
	dbRequired = "required"
	dbOptional = "optional"
)

var (
	// DB is the global journal connection shared by subcommands. It stays nil
	// when the running command does not use the journal.
	DB *store.Store
	// cfg is the merged configuration (defaults, file, env, flags)
	cfg config.Config

	configPath string
	dbURL      string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "framewall",
	Short:   "Render live JPEG frame streams onto named surfaces",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Configure()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dbURL != "" {
			cfg.DB = dbURL
		}

		switch cmd.Annotations[dbAnnotation] {
		case dbRequired:
			return ensureDB(cmd.Context())
		case dbOptional:
			if cfg.DB != "" {
				return ensureDB(cmd.Context())
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
	},
}

// ensureDB connects the journal once, falling back to a local default database.
func ensureDB(ctx context.Context) error {
	if DB != nil {
		return nil
	}
	url := cfg.DB
	if url == "" {
		url = "postgres://localhost:5432/framewall"
	}

	var err error
	DB, err = store.New(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

// journal returns DB as a render.Journal, or nil when no journal is connected.
func journal() render.Journal {
	if DB == nil {
		return nil
	}
	return DB
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the session journal (default: $POSTGRES_* or none)")
}
