// Package main is the entry point for the members-only board.
//
// The binary has three commands:
//
//	server serve              run the web server (the default)
//	server migrate            apply pending database migrations and exit
//	server promote --email X  make an existing account an admin
//
// Configuration comes from the environment (optionally a .env file) and
// the flags below; see internal/config for the keys. All real work lives
// in internal/.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/members-only/internal/auth"
	"github.com/sakif/members-only/internal/config"
	"github.com/sakif/members-only/internal/logging"
	"github.com/sakif/members-only/internal/server"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalFlags are shared by every command.
type globalFlags struct {
	envFile  string
	logLevel string
	logJSON  bool
	dbDriver string
	dbDSN    string
}

// load reads the configuration, applying only the flags the user set so
// the environment is not shadowed by flag defaults.
func (g *globalFlags) load(cmd *cobra.Command, extra map[string]any) (*config.Config, *slog.Logger, error) {
	overrides := map[string]any{}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		overrides["log.level"] = g.logLevel
	}
	if flags.Changed("log-json") {
		overrides["log.json"] = g.logJSON
	}
	if flags.Changed("db-driver") {
		overrides["db.driver"] = g.dbDriver
	}
	if flags.Changed("db-dsn") {
		overrides["db.dsn"] = g.dbDSN
	}
	for k, v := range extra {
		overrides[k] = v
	}

	cfg, err := config.Load(config.Options{EnvFile: g.envFile, Overrides: overrides})
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(os.Stderr, logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	return cfg, logger, nil
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	serve := serveCmd(g)
	root := &cobra.Command{
		Use:          "server",
		Short:        "Members-only message board",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	pf.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	pf.BoolVar(&g.logJSON, "log-json", false, "log as JSON instead of text")
	pf.StringVar(&g.dbDriver, "db-driver", "sqlite", "database driver: sqlite or postgres")
	pf.StringVar(&g.dbDSN, "db-dsn", "", "database file (sqlite) or connection URL (postgres)")

	// The root command runs serve, so it needs serve's flags too.
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve, migrateCmd(g), promoteCmd(g))
	return root
}

func serveCmd(g *globalFlags) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			extra := map[string]any{}
			if cmd.Flags().Changed("port") {
				extra["server.port"] = port
			}
			cfg, logger, err := g.load(cmd, extra)
			if err != nil {
				return err
			}

			srv, err := server.New(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("failed to create server", slog.String("error", err.Error()))
				return err
			}
			if err := srv.Start(cmd.Context()); err != nil {
				logger.Error("server error", slog.String("error", err.Error()))
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on")
	return cmd
}

func migrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load(cmd, map[string]any{"db.auto_migrate": false})
			if err != nil {
				return err
			}
			db, err := server.OpenDB(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("migrations applied", slog.String("driver", cfg.DB.Driver))
			return nil
		},
	}
}

func promoteCmd(g *globalFlags) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Make an existing account an admin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load(cmd, nil)
			if err != nil {
				return err
			}
			return promote(cmd.Context(), cfg, logger, email, cmd)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address of the account")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func promote(ctx context.Context, cfg *config.Config, logger *slog.Logger, email string, cmd *cobra.Command) error {
	db, err := server.OpenDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	passwords := auth.NewPasswordService(cfg.Auth.BcryptCost, cfg.Auth.HashConcurrency)
	accounts := server.NewAccountService(cfg, db, passwords, logger)

	user, err := accounts.Promote(ctx, email)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s <%s> is now an admin\n", user.FirstName, user.LastName, user.Email)
	return nil
}
