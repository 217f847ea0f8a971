// Command mailprobectl is the operator CLI for mailprobe: schema
// migrations, account management, relay settings, one-off test sends and
// the activity log, all against the same database the server uses.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/DukeRupert/mailprobe/internal"
	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/DukeRupert/mailprobe/internal/repository"
	"github.com/DukeRupert/mailprobe/internal/service"
	"github.com/DukeRupert/mailprobe/internal/session"
	"github.com/charmbracelet/log"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	debug   bool

	logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mailprobectl",
	Short: "Operate a mailprobe installation",
	Long: `mailprobectl manages a mailprobe installation from the shell.

It reads the same environment (and .env file) as the server, so
DATABASE_URL, SESSION_STORE and MAIL_TRANSPORT must point at the
deployment you want to operate on.

Example:
  mailprobectl migrate
  mailprobectl user create --username admin --password 'a long passphrase'
  mailprobectl config set --host email-smtp.us-east-1.amazonaws.com --username AKIA... --password ...
  mailprobectl send --as admin --to you@example.com --subject Hi --body 'Relay check'
  mailprobectl logs --status failed`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch {
		case debug:
			logger.SetLevel(log.DebugLevel)
		case verbose:
			logger.SetLevel(log.InfoLevel)
		default:
			logger.SetLevel(log.WarnLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(bulkCmd)
	rootCmd.AddCommand(logsCmd)
}

// app bundles the services a command needs. Close releases connections.
type app struct {
	cfg      *internal.Config
	db       *sql.DB
	users    service.UserService
	settings service.SettingsService
	mail     service.MailService
	activity service.ActivityService

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Debug("close failed", "error", err)
		}
	}
}

// openDB loads configuration and opens the database without migrating.
func openDB(ctx context.Context) (*internal.Config, *sql.DB, error) {
	cfg, err := internal.NewConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("database ping failed: %w", err)
	}

	return cfg, db, nil
}

// openApp wires the services the same way the server does.
func openApp(ctx context.Context) (*app, error) {
	cfg, db, err := openDB(ctx)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, db: db, closers: []func() error{db.Close}}

	// Services log through the CLI logger so output stays consistent.
	slogger := slog.New(logger)
	store := repository.NewStore(db, "pgx")

	var sessions session.Store
	switch cfg.SessionStore {
	case "redis":
		rc, err := session.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		sessions = session.NewRedisStore(rc)
	default:
		sessions = session.NewPostgresStore(store.Queries)
	}

	transport, err := internal.NewMailTransport(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Debug("mail transport ready", "transport", transport.Name())

	templates := service.NewTemplateService(store.Queries, slogger)
	a.users = service.NewUserService(store.Queries, sessions, service.UserServiceConfig{
		SessionDuration: cfg.SessionDuration,
	}, slogger)
	a.settings = service.NewSettingsService(store, transport, slogger)
	a.mail = service.NewMailService(a.settings, templates, transport, store.Queries, slogger)
	a.activity = service.NewActivityService(store.Queries, cfg.LogsPageSize, slogger)

	return a, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// describe renders err for the terminal. Unlike the web UI, the operator
// sees internal causes too.
func describe(err error) string {
	if domain.ErrorCode(err) == domain.EINTERNAL {
		if cause := errors.Unwrap(err); cause != nil {
			return fmt.Sprintf("%v (%v)", err, cause)
		}
		return err.Error()
	}
	return domain.ErrorMessage(err)
}
