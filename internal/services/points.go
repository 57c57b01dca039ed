package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"comunitarr/internal/models"
)

const (
	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 50
)

// PointsService keeps ComuniPoints and Karma.
type PointsService struct {
	users UserStore
	log   *logrus.Entry
}

func NewPointsService(users UserStore, log *logrus.Entry) *PointsService {
	return &PointsService{users: users, log: log}
}

// Award applies the reward of action to the user in a single increment.
func (s *PointsService) Award(ctx context.Context, userID primitive.ObjectID, action models.PointAction) (models.Reward, error) {
	reward, ok := models.RewardFor(action)
	if !ok {
		return models.Reward{}, fmt.Errorf("%w: unknown point action %q", ErrInvalidInput, action)
	}
	if err := s.users.IncrementCounters(ctx, userID, reward.Points, reward.Karma); err != nil {
		return models.Reward{}, fmt.Errorf("failed to award %s: %w", action, err)
	}
	return reward, nil
}

// awardQuietly is used after the main write succeeded; a lost reward is logged, not returned.
func (s *PointsService) awardQuietly(ctx context.Context, userID primitive.ObjectID, action models.PointAction) {
	if _, err := s.Award(ctx, userID, action); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id": userID.Hex(),
			"action":  action,
		}).Warn("points not awarded")
	}
}

// Profile is the gamified view of a user.
type Profile struct {
	*models.User
	Level             int `json:"level"`
	PointsToNextLevel int `json:"points_to_next_level"`
}

func newProfile(u *models.User) Profile {
	return Profile{User: u, Level: u.Level(), PointsToNextLevel: u.PointsToNextLevel()}
}

func (s *PointsService) Profile(ctx context.Context, userID primitive.ObjectID) (Profile, error) {
	u, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return newProfile(u), nil
}

type LeaderboardEntry struct {
	Rank         int                `json:"rank"`
	UserID       primitive.ObjectID `json:"user_id"`
	DisplayName  string             `json:"display_name"`
	AvatarURL    string             `json:"avatar_url,omitempty"`
	ComuniPoints int                `json:"comuni_points"`
	Karma        int                `json:"karma"`
	Level        int                `json:"level"`
}

func (s *PointsService) Leaderboard(ctx context.Context, neighborhood string, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}
	if limit > maxLeaderboardSize {
		limit = maxLeaderboardSize
	}

	users, err := s.users.TopUsers(ctx, neighborhood, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(users))
	for i, u := range users {
		entries = append(entries, LeaderboardEntry{
			Rank:         i + 1,
			UserID:       u.ID,
			DisplayName:  u.DisplayName,
			AvatarURL:    u.AvatarURL,
			ComuniPoints: u.ComuniPoints,
			Karma:        u.Karma,
			Level:        u.Level(),
		})
	}
	return entries, nil
}
