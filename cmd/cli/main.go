package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/streetmed/rounds/cmd/cli/commands"
	"github.com/streetmed/rounds/internal/config"
	"github.com/streetmed/rounds/pkg/clients/gmailclient"
	"github.com/streetmed/rounds/pkg/clients/sheetsclient"
	"github.com/streetmed/rounds/pkg/core/roundlock"
	"github.com/streetmed/rounds/pkg/core/services"
	"github.com/streetmed/rounds/pkg/db"
	"github.com/streetmed/rounds/pkg/identity"
	"github.com/streetmed/rounds/pkg/notify"
	"github.com/streetmed/rounds/pkg/postgres"
	"github.com/streetmed/rounds/pkg/utils"
	"github.com/streetmed/rounds/pkg/utils/logging"
)

const notificationDrainTimeout = 30 * time.Second

var (
	env     string
	verbose bool
	app     = &commands.AppContext{}
	cleanup []func()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rounds",
		Short: "StreetMed rounds - volunteer signups, waitlists and lotteries",
		Long:  `A CLI and HTTP service for scheduling outreach rounds and admitting volunteers to them.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			shutdown()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to the console")
	rootCmd.MarkPersistentFlagRequired("env")

	rootCmd.AddCommand(commands.CreateRoundCmd(app))
	rootCmd.AddCommand(commands.CreateSeriesCmd(app))
	rootCmd.AddCommand(commands.UpdateRoundCmd(app))
	rootCmd.AddCommand(commands.CancelRoundCmd(app))
	rootCmd.AddCommand(commands.CompleteRoundCmd(app))
	rootCmd.AddCommand(commands.GetRoundCmd(app))
	rootCmd.AddCommand(commands.ListRoundsCmd(app))
	rootCmd.AddCommand(commands.CountRoundsCmd(app))
	rootCmd.AddCommand(commands.SignupCmd(app))
	rootCmd.AddCommand(commands.CancelSignupCmd(app))
	rootCmd.AddCommand(commands.ConfirmSignupCmd(app))
	rootCmd.AddCommand(commands.RejectSignupCmd(app))
	rootCmd.AddCommand(commands.AssignRoleCmd(app))
	rootCmd.AddCommand(commands.RunLotteryCmd(app))
	rootCmd.AddCommand(commands.ListSignupsCmd(app))
	rootCmd.AddCommand(commands.UserSignupsCmd(app))
	rootCmd.AddCommand(commands.IsSignedUpCmd(app))
	rootCmd.AddCommand(commands.ReleaseSignupsCmd(app))
	rootCmd.AddCommand(commands.SendRemindersCmd(app))
	rootCmd.AddCommand(commands.GetUserCmd(app))
	rootCmd.AddCommand(commands.ServeCmd(app))
	rootCmd.AddCommand(commands.InteractiveCmd(app))

	if err := rootCmd.Execute(); err != nil {
		shutdown()
		os.Exit(1)
	}
}

// initApp sets up logger, config, clients, store and services
func initApp() error {
	var err error
	app.Ctx = context.Background()

	// Initialize logger
	app.Logger, err = logging.InitLogger(env, logging.Options{Dir: "logs", Verbose: verbose})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := app.Logger

	logger.Info("Starting application", zap.String("environment", env))

	// Load configuration
	logger.Debug("Loading configuration")
	app.Cfg, err = config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Load OAuth client configuration
	logger.Debug("Loading OAuth client configuration")
	oauthCfg, err := config.LoadOAuthClientWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load OAuth client config: %w", err)
	}
	oauthConfig, err := utils.GetOAuthConfig(oauthCfg, utils.RequiredScopes(app.Cfg.EmailEnabled))
	if err != nil {
		return fmt.Errorf("failed to build OAuth config: %w", err)
	}
	token, err := utils.GetTokenWithFlow(app.Ctx, oauthConfig, env, logger)
	if err != nil {
		return fmt.Errorf("failed to get OAuth token: %w", err)
	}

	// Identity roster from the users sheet
	logger.Debug("Initializing sheets client")
	sheetsClient, err := sheetsclient.NewClient(app.Ctx, oauthConfig, token, app.Cfg.UserSheetID, app.Cfg.UsersTab)
	if err != nil {
		return fmt.Errorf("failed to create sheets client: %w", err)
	}
	app.Identity = identity.NewDirectory(sheetsClient, app.Cfg.IdentityTTL(), logger)

	// Notification sink: gmail when enabled, otherwise the log
	var sink notify.Sink
	if app.Cfg.EmailEnabled {
		logger.Debug("Initializing gmail client")
		gmailClient, err := gmailclient.NewClient(app.Ctx, oauthConfig, token, app.Cfg.GmailUserID, app.Cfg.GmailSender)
		if err != nil {
			return fmt.Errorf("failed to create gmail client: %w", err)
		}
		sink = notify.NewEmailSink(gmailClient, logger)
	} else {
		logger.Info("Email disabled, notifications will only be logged")
		sink = notify.NewLogSink(logger)
	}
	app.Notifications = notify.NewDispatcher(sink, logger, app.Cfg.NotificationWorkers, app.Cfg.NotificationQueueSize)
	cleanup = append(cleanup, func() {
		ctx, cancel := context.WithTimeout(context.Background(), notificationDrainTimeout)
		defer cancel()
		if err := app.Notifications.Close(ctx); err != nil {
			logger.Warn("Notifications not fully delivered before exit", zap.Error(err))
		}
	})

	// Store
	var database db.Database
	if app.Cfg.DatabaseURL == "" {
		logger.Warn("No databaseURL configured, using the in-memory store")
		database = db.NewMemoryDB()
	} else {
		logger.Debug("Connecting to database")
		pg, err := postgres.NewDB(app.Ctx, app.Cfg.DatabaseURL, int32(app.Cfg.RequestWorkers))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		cleanup = append(cleanup, pg.Close)
		if err := pg.RunMigrations(app.Ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		database = pg
	}

	// Services share one round lock table
	locks := roundlock.New()
	opts := []services.Option{services.WithCancellationCutoff(app.Cfg.CancellationCutoff())}
	app.Registry = services.NewRoundRegistry(database, locks, logger, opts...)
	app.Engine = services.NewSignupEngine(database, locks, app.Identity, app.Notifications, logger, opts...)
	app.Registry.SetRoleAssigner(app.Engine)

	logger.Info("Application initialized successfully")
	return nil
}

// shutdown runs cleanup in reverse order; safe to call more than once
func shutdown() {
	for i := len(cleanup) - 1; i >= 0; i-- {
		cleanup[i]()
	}
	cleanup = nil
	if app.Logger != nil {
		_ = app.Logger.Sync()
	}
}
