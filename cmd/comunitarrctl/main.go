// comunitarrctl is the operator CLI: indexes, outbox replay, data backfills
// and development tokens.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"comunitarr/internal/config"
	"comunitarr/internal/database"
	"comunitarr/internal/logger"
)

var (
	verbose bool
	timeout time.Duration

	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:           "comunitarrctl",
	Short:         "Operate a ComuniTarr backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		log = logger.NewWithOutput(cmd.ErrOrStderr(), cfg.Environment, level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout")

	rootCmd.AddCommand(indexesCmd, replayCmd, backfillPointsCmd, backfillRolesCmd, tokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withMongo connects, runs fn under the global timeout and disconnects.
func withMongo(cmd *cobra.Command, fn func(ctx context.Context, db *database.MongoDB) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	db, err := database.NewMongoDB(cfg, logger.Component(log, "mongodb"))
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, db)
}

func expiration() time.Duration {
	return time.Duration(cfg.JWTExpiration) * time.Hour
}
