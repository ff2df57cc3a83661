package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-rota/cmd/cli/commands"
	"github.com/jakechorley/volunteer-rota/internal/config"
	"github.com/jakechorley/volunteer-rota/pkg/clients/gmailclient"
	"github.com/jakechorley/volunteer-rota/pkg/core/services"
	"github.com/jakechorley/volunteer-rota/pkg/notify"
	"github.com/jakechorley/volunteer-rota/pkg/postgres"
	"github.com/jakechorley/volunteer-rota/pkg/utils"
	"github.com/jakechorley/volunteer-rota/pkg/utils/logging"
)

var (
	env      string
	app      = &commands.AppContext{}
	database *postgres.DB
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rota",
		Short: "Volunteer rota - schedule members into recurring slots",
		Long: `A CLI for defining slots, collecting availability, generating schedules
and coordinating swaps between members.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if database != nil {
				database.Close()
			}
			if app.Logger != nil {
				app.Logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	rootCmd.PersistentFlags().StringVar(&app.CallerID, "as", "", "Member ID to act as (required)")
	rootCmd.PersistentFlags().StringVarP(&app.GroupID, "group", "g", "", "Group ID to operate on")
	rootCmd.MarkPersistentFlagRequired("env")
	rootCmd.MarkPersistentFlagRequired("as")

	rootCmd.AddCommand(commands.MigrateCmd(app))
	rootCmd.AddCommand(commands.DefineSlotCmd(app))
	rootCmd.AddCommand(commands.ListSlotsCmd(app))
	rootCmd.AddCommand(commands.DeleteSlotCmd(app))
	rootCmd.AddCommand(commands.AddMemberCmd(app))
	rootCmd.AddCommand(commands.RemoveMemberCmd(app))
	rootCmd.AddCommand(commands.ListMembersCmd(app))
	rootCmd.AddCommand(commands.MarkAvailabilityCmd(app))
	rootCmd.AddCommand(commands.SetPreferencesCmd(app))
	rootCmd.AddCommand(commands.GenerateScheduleCmd(app))
	rootCmd.AddCommand(commands.ListAssignmentsCmd(app))
	rootCmd.AddCommand(commands.AssignCmd(app))
	rootCmd.AddCommand(commands.UnassignCmd(app))
	rootCmd.AddCommand(commands.RequestSwapCmd(app))
	rootCmd.AddCommand(commands.RespondSwapCmd(app))
	rootCmd.AddCommand(commands.CancelSwapCmd(app))
	rootCmd.AddCommand(commands.ListSwapsCmd(app))
	rootCmd.AddCommand(commands.ViewMemberLoadCmd(app))
	rootCmd.AddCommand(commands.InteractiveCmd(app))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp loads config and sets up the logger, database and notification gateways
func initApp() error {
	var err error
	app.Ctx = context.Background()
	app.Now = time.Now

	app.Cfg, err = config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app.Logger, err = logging.InitLogger(env, logging.Options{Dir: app.Cfg.Log.Dir, Level: app.Cfg.Log.Level})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger.Info("Starting application",
		zap.String("environment", env),
		zap.String("caller_id", app.CallerID))

	app.Location, err = app.Cfg.Location()
	if err != nil {
		return fmt.Errorf("failed to load timezone: %w", err)
	}

	app.Logger.Info("Connecting to database")
	database, err = postgres.NewDB(app.Ctx, app.Cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.Database = database
	app.Migrator = database
	app.Logger.Debug("Database connected")

	gateways := notify.Fanout{notify.NewLogGateway(app.Logger)}
	if app.Cfg.Notifications.Email.Enabled {
		emailGateway, err := newEmailGateway()
		if err != nil {
			return err
		}
		gateways = append(gateways, emailGateway)
	}
	app.Gateway = gateways

	app.Swaps = services.NewSwapCoordinator(app.Database, app.Gateway, app.Logger, app.Location, app.Now)

	return nil
}

// newEmailGateway authorises against Gmail and sends notifications as email
func newEmailGateway() (*notify.EmailGateway, error) {
	app.Logger.Info("Loading OAuth client configuration")
	oauthCfg, err := config.LoadOAuthClientWithEnv(env)
	if err != nil {
		return nil, fmt.Errorf("failed to load OAuth client config: %w", err)
	}

	oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
	if err != nil {
		return nil, err
	}

	tokens, err := utils.NewTokenStore(env)
	if err != nil {
		return nil, err
	}
	token, err := tokens.Token(app.Ctx, oauthConfig, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth token: %w", err)
	}

	emailCfg := app.Cfg.Notifications.Email
	client, err := gmailclient.NewClient(app.Ctx, oauthConfig, token, emailCfg.GmailUserID, emailCfg.Sender)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail client: %w", err)
	}
	app.Logger.Debug("Gmail client initialized successfully")

	return notify.NewEmailGateway(client, app.Database), nil
}
