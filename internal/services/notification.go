package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"comunitarr/internal/models"
	"comunitarr/pkg/validator"
)

const (
	fcmBatchSize             = 1000
	defaultNotificationLimit = 50
)

type NotificationInput struct {
	Type      string
	Title     string
	Body      string
	RelatedID *primitive.ObjectID
	Data      map[string]interface{}
}

type RegisterDeviceInput struct {
	FCMToken string `json:"fcm_token" binding:"required,max=4096"`
	Platform string `json:"platform" binding:"required,oneof=android ios web"`
}

// Pusher sends a push notification and returns the tokens the provider rejected.
type Pusher interface {
	Push(ctx context.Context, tokens []string, title, body string, data map[string]interface{}) ([]string, error)
}

type FCMMessage struct {
	RegistrationIDs []string               `json:"registration_ids,omitempty"`
	Notification    FCMNotification        `json:"notification"`
	Data            map[string]interface{} `json:"data,omitempty"`
	Priority        string                 `json:"priority"`
	TimeToLive      int                    `json:"time_to_live,omitempty"`
}

type FCMNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Sound string `json:"sound,omitempty"`
	Color string `json:"color,omitempty"`
}

type FCMResponse struct {
	MulticastID int64       `json:"multicast_id"`
	Success     int         `json:"success"`
	Failure     int         `json:"failure"`
	Results     []FCMResult `json:"results"`
}

type FCMResult struct {
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FCMPusher talks to the legacy FCM HTTP endpoint.
type FCMPusher struct {
	client   *resty.Client
	endpoint string
	key      string
}

func NewFCMPusher(endpoint, serverKey string) *FCMPusher {
	client := resty.New().
		SetTimeout(30*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Content-Type", "application/json")

	return &FCMPusher{client: client, endpoint: endpoint, key: serverKey}
}

func (p *FCMPusher) Push(ctx context.Context, tokens []string, title, body string, data map[string]interface{}) ([]string, error) {
	var invalid []string

	// FCM accepts at most 1000 registration ids per request
	for i := 0; i < len(tokens); i += fcmBatchSize {
		end := i + fcmBatchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[i:end]

		resp, err := p.client.R().
			SetContext(ctx).
			SetHeader("Authorization", "key="+p.key).
			SetBody(FCMMessage{
				RegistrationIDs: batch,
				Notification: FCMNotification{
					Title: title,
					Body:  body,
					Icon:  "ic_notification",
					Sound: "default",
					Color: "#E4572E",
				},
				Data:       data,
				Priority:   "high",
				TimeToLive: 3600,
			}).
			SetResult(&FCMResponse{}).
			Post(p.endpoint)
		if err != nil {
			return invalid, fmt.Errorf("failed to send FCM request: %w", err)
		}
		if resp.IsError() {
			return invalid, fmt.Errorf("FCM request failed with status: %d", resp.StatusCode())
		}

		result, ok := resp.Result().(*FCMResponse)
		if !ok {
			continue
		}
		for j, r := range result.Results {
			if j >= len(batch) {
				break
			}
			if r.Error == "NotRegistered" || r.Error == "InvalidRegistration" {
				invalid = append(invalid, batch[j])
			}
		}
	}

	return invalid, nil
}

type NotificationService struct {
	store  NotificationStore
	users  UserStore
	pusher Pusher
	log    *logrus.Entry
	now    func() time.Time
}

// NewNotificationService stores notifications; pusher may be nil when push is not configured.
func NewNotificationService(store NotificationStore, users UserStore, pusher Pusher, log *logrus.Entry) *NotificationService {
	return &NotificationService{store: store, users: users, pusher: pusher, log: log, now: time.Now}
}

func (s *NotificationService) NotifyUser(ctx context.Context, userID primitive.ObjectID, n NotificationInput) error {
	return s.send(ctx, []primitive.ObjectID{userID}, n)
}

// NotifyNeighborhood notifies every resident of the neighborhood except one user (usually the author).
func (s *NotificationService) NotifyNeighborhood(ctx context.Context, neighborhood string, except primitive.ObjectID, n NotificationInput) error {
	ids, err := s.users.UserIDsInNeighborhood(ctx, neighborhood)
	if err != nil {
		return fmt.Errorf("failed to load neighborhood users: %w", err)
	}

	recipients := ids[:0]
	for _, id := range ids {
		if id != except {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return nil
	}
	return s.send(ctx, recipients, n)
}

func (s *NotificationService) send(ctx context.Context, userIDs []primitive.ObjectID, n NotificationInput) error {
	now := s.now().UTC().Truncate(time.Millisecond)
	batch := make([]*models.Notification, 0, len(userIDs))
	ids := make([]primitive.ObjectID, 0, len(userIDs))
	for _, userID := range userIDs {
		notification := &models.Notification{
			ID:        primitive.NewObjectID(),
			UserID:    userID,
			Type:      n.Type,
			Title:     n.Title,
			Body:      n.Body,
			RelatedID: n.RelatedID,
			Data:      n.Data,
			CreatedAt: now,
		}
		batch = append(batch, notification)
		ids = append(ids, notification.ID)
	}

	if err := s.store.InsertNotifications(ctx, batch); err != nil {
		return fmt.Errorf("failed to save notifications: %w", err)
	}

	if s.pusher == nil {
		return nil
	}

	tokens, err := s.store.ActiveDeviceTokens(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("failed to get device tokens: %w", err)
	}

	if len(tokens) > 0 {
		invalid, err := s.pusher.Push(ctx, tokens, n.Title, n.Body, n.Data)
		if len(invalid) > 0 {
			if derr := s.store.DeactivateDeviceTokens(ctx, invalid); derr != nil {
				s.log.WithError(derr).Warn("failed to deactivate invalid device tokens")
			}
		}
		if err != nil {
			return fmt.Errorf("failed to push notification: %w", err)
		}
	}

	// no tokens still counts as sent
	if err := s.store.MarkNotificationsSent(ctx, ids); err != nil {
		return fmt.Errorf("failed to mark notifications sent: %w", err)
	}
	return nil
}

func (s *NotificationService) List(ctx context.Context, userID primitive.ObjectID, unreadOnly bool, limit int) ([]*models.Notification, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultNotificationLimit
	}
	items, err := s.store.ListNotifications(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return items, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id primitive.ObjectID) error {
	ok, err := s.store.MarkNotificationRead(ctx, id, userID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	n, err := s.store.MarkAllNotificationsRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return n, nil
}

func (s *NotificationService) RegisterDevice(ctx context.Context, userID primitive.ObjectID, in RegisterDeviceInput) error {
	if err := validator.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	now := s.now().UTC()
	err := s.store.UpsertDeviceToken(ctx, &models.DeviceToken{
		UserID:    userID,
		FCMToken:  in.FCMToken,
		Platform:  in.Platform,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}
