package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jinhwansong/konnect-back-sub000/internal/app"
	"github.com/jinhwansong/konnect-back-sub000/internal/models"
	"github.com/jinhwansong/konnect-back-sub000/internal/service"
	"github.com/jinhwansong/konnect-back-sub000/pkg/config"
	"github.com/jinhwansong/konnect-back-sub000/pkg/database"
	"github.com/jinhwansong/konnect-back-sub000/pkg/logger"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	rootCmd = &cobra.Command{
		Use:           "reservationctl",
		Short:         "Operator tooling for the reservation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
	migrateStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE:  runMigrateStatus,
	}
	sweepCmd = &cobra.Command{
		Use:       "sweep [expire_holds|start_sessions|complete_sessions]",
		Short:     "Run one reservation sweep immediately",
		Long:      `Runs a single time-driven sweep against the database and prints the reservations it moved. Events are flushed before exit.`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(models.SweepExpireHolds), string(models.SweepStartSessions), string(models.SweepCompleteSessions)},
		RunE:      runSweep,
	}
	flushTimeout time.Duration

	tokenCmd = &cobra.Command{
		Use:   "token [user-id]",
		Short: "Mint an access token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}
	tokenRole  string
	tokenEmail string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().DurationVar(&flushTimeout, "flush-timeout", 5*time.Second, "How long to wait for queued events before exiting")

	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(models.RoleMentee), "Role claim (MENTEE, MENTOR, ADMIN)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Email claim")

	rootCmd.AddCommand(versionCmd)
}

func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logr, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logr, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signalContext(cmd)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	return database.Migrate(ctx, db.DB, logr)
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	cfg, logr, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signalContext(cmd)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	v, err := database.MigrationVersion(ctx, db.DB)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, logr, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signalContext(cmd)
	defer stop()

	application, err := app.New(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer application.Close()

	application.Events.Start(ctx)
	defer application.Events.Stop()

	result, err := application.Scheduler.RunNow(ctx, models.SweepName(args[0]))
	if err != nil {
		return err
	}
	if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}

	if !waitForEvents(ctx, application.Events, flushTimeout) {
		logr.Warn("exiting with undelivered events", zap.Int("pending", application.Events.Pending()))
	}
	return nil
}

type pendingCounter interface {
	Pending() int
}

// waitForEvents polls until the dispatcher buffer is empty or timeout elapses.
func waitForEvents(ctx context.Context, events pendingCounter, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for events.Pending() > 0 {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-tick.C:
		}
	}
	return true
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	role := models.UserRole(tokenRole)
	switch role {
	case models.RoleMentee, models.RoleMentor, models.RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", tokenRole)
	}

	auth := service.NewAuthService(nil, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	token, expiresAt, err := auth.IssueToken(models.UserInfo{ID: args[0], Email: tokenEmail, Role: role})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
		"access_token": token,
		"expires_at":   expiresAt,
	})
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
