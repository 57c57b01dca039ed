package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"comunitarr/internal/database"
	"comunitarr/internal/fallback"
	"comunitarr/internal/logger"
	"comunitarr/internal/models"
	"comunitarr/internal/repository"
	"comunitarr/pkg/auth"
	"comunitarr/pkg/validator"
)

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "Create the MongoDB indexes of every collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMongo(cmd, func(ctx context.Context, db *database.MongoDB) error {
			if err := db.CreateIndexes(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexes created on %d collections\n", len(database.Indexes()))
			return nil
		})
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Drain the local fallback outbox into MongoDB",
	Long: `Replays queued documents in insertion order until the outbox is empty
or MongoDB rejects a write.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outbox, err := fallback.Open(cfg.OutboxPath)
		if err != nil {
			return err
		}
		defer outbox.Close()

		return withMongo(cmd, func(ctx context.Context, db *database.MongoDB) error {
			r := fallback.NewReplayer(outbox, fallback.MongoRemote{DB: db.Database}, cfg.OutboxBatchSize, logger.Component(log, "replay"))

			total := 0
			for {
				n, err := r.Drain(ctx)
				total += n
				if err != nil {
					return fmt.Errorf("replayed %d entries before failing: %w", total, err)
				}
				if n == 0 {
					break
				}
			}

			stats, err := outbox.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d entries, %d pending\n", total, stats.Pending)
			return nil
		})
	},
}

var backfillPointsCmd = &cobra.Command{
	Use:   "backfill-points",
	Short: "Set comuni_points and karma to zero where missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMongo(cmd, func(ctx context.Context, db *database.MongoDB) error {
			n, err := repository.NewMongo(db.Database, nil).BackfillCounters(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %d users\n", n)
			return nil
		})
	},
}

var backfillRolesCmd = &cobra.Command{
	Use:   "backfill-roles",
	Short: "Assign USER or MODERATOR to users without a role",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMongo(cmd, func(ctx context.Context, db *database.MongoDB) error {
			n, err := repository.NewMongo(db.Database, nil).BackfillRoles(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %d users\n", n)
			return nil
		})
	},
}

var (
	tokenUserID       string
	tokenName         string
	tokenNeighborhood string
	tokenRole         string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development JWT",
	Long: `Signs a token with the configured secret. Useful against a local server:

  comunitarrctl token --name Marta --neighborhood serrallo --role MODERATOR`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		validator.SetNeighborhoods(cfg.Neighborhoods)
		if !validator.IsKnownNeighborhood(tokenNeighborhood) {
			return fmt.Errorf("unknown neighborhood %q", tokenNeighborhood)
		}
		role, ok := models.ParseRole(tokenRole)
		if !ok {
			return fmt.Errorf("unknown role %q", tokenRole)
		}

		userID := primitive.NewObjectID()
		if tokenUserID != "" {
			id, err := primitive.ObjectIDFromHex(tokenUserID)
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			userID = id
		}

		jwt := auth.NewJWTManager(cfg.JWTSecret, expiration())
		token, err := jwt.GenerateToken(auth.Identity{
			UserID:       userID,
			Name:         tokenName,
			Neighborhood: tokenNeighborhood,
			Role:         role.String(),
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user-id", "", "user ObjectID (random when empty)")
	tokenCmd.Flags().StringVar(&tokenName, "name", "Vecino", "display name")
	tokenCmd.Flags().StringVar(&tokenNeighborhood, "neighborhood", "serrallo", "neighborhood slug")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "USER", "USER, MODERATOR, ADMIN or SUPER_ADMIN")
}
