package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"comunitarr/internal/logger"
	"comunitarr/internal/models"
)

type sentNotification struct {
	neighborhood string
	except       primitive.ObjectID
	userID       primitive.ObjectID
	input        NotificationInput
}

type fakeNotifier struct {
	sent []sentNotification
}

func (n *fakeNotifier) NotifyNeighborhood(_ context.Context, neighborhood string, except primitive.ObjectID, in NotificationInput) error {
	n.sent = append(n.sent, sentNotification{neighborhood: neighborhood, except: except, input: in})
	return nil
}

func (n *fakeNotifier) NotifyUser(_ context.Context, userID primitive.ObjectID, in NotificationInput) error {
	n.sent = append(n.sent, sentNotification{userID: userID, input: in})
	return nil
}

func newIncidents(f *fixture) (*IncidentService, *fakeNotifier) {
	n := &fakeNotifier{}
	svc := NewIncidentService(f.store, f.points, n, logger.Discard())
	svc.now = f.now
	return svc, n
}

func coords(lat, lng float64) (*float64, *float64) {
	return &lat, &lng
}

func validIncident(severity string, lat, lng float64) ReportIncidentInput {
	la, lo := coords(lat, lng)
	return ReportIncidentInput{
		Title:       "Farola apagada",
		Description: "La farola de la esquina lleva tres noches apagada.",
		Category:    models.IncidentCategoryInfrastructure,
		Severity:    severity,
		Latitude:    la,
		Longitude:   lo,
	}
}

func TestReportIncident(t *testing.T) {
	f := newFixture()
	svc, notifier := newIncidents(f)
	marta := f.user("Marta", models.RoleUser)

	incident, queued, err := svc.Report(context.Background(), marta, validIncident("", 41.1078, 1.2392))
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, models.IncidentStatusOpen, incident.Status)
	assert.Equal(t, models.SeverityMedium, incident.Severity)
	assert.InDelta(t, 41.1078, incident.Location.Lat(), 1e-9)
	assert.Equal(t, 15, f.profile(t, marta.UserID).ComuniPoints)
	assert.Empty(t, notifier.sent)

	critical, _, err := svc.Report(context.Background(), marta, validIncident(models.SeverityCritical, 41.1078, 1.2392))
	require.NoError(t, err)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, barrio, notifier.sent[0].neighborhood)
	assert.Equal(t, marta.UserID, notifier.sent[0].except)
	assert.Equal(t, critical.ID, *notifier.sent[0].input.RelatedID)

	bad := validIncident("", 120, 1)
	_, _, err = svc.Report(context.Background(), marta, bad)
	assert.ErrorIs(t, err, ErrInvalidInput)

	missing := validIncident("", 41, 1)
	missing.Latitude = nil
	_, _, err = svc.Report(context.Background(), marta, missing)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNearbyIncidentsSortedByDistance(t *testing.T) {
	f := newFixture()
	svc, _ := newIncidents(f)
	marta := f.user("Marta", models.RoleUser)

	far, _, err := svc.Report(context.Background(), marta, validIncident("", 41.1150, 1.2392)) // ~0.8 km north
	require.NoError(t, err)
	near, _, err := svc.Report(context.Background(), marta, validIncident("", 41.1080, 1.2392))
	require.NoError(t, err)
	_, _, err = svc.Report(context.Background(), marta, validIncident("", 41.1600, 1.2392)) // ~5.8 km
	require.NoError(t, err)

	found, err := svc.Nearby(context.Background(), barrio, 41.1078, 1.2392, 1, 0)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, near.ID, found[0].ID)
	assert.Equal(t, far.ID, found[1].ID)
	require.NotNil(t, found[0].DistanceKm)
	assert.Less(t, *found[0].DistanceKm, *found[1].DistanceKm)

	_, err = svc.Nearby(context.Background(), barrio, 95, 0, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNearbyIncidentsBeyondLimit(t *testing.T) {
	f := newFixture()
	svc, _ := newIncidents(f)
	marta := f.user("Marta", models.RoleUser)

	for i := 0; i < 80; i++ {
		_, _, err := svc.Report(context.Background(), marta, validIncident("", 41.2000, 1.2392)) // ~10 km
		require.NoError(t, err)
	}
	here, _, err := svc.Report(context.Background(), marta, validIncident("", 41.1078, 1.2392))
	require.NoError(t, err)

	found, err := svc.Nearby(context.Background(), barrio, 41.1078, 1.2392, 1, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, here.ID, found[0].ID)
}

func TestUpvoteAwardsKarmaOncePerVoter(t *testing.T) {
	f := newFixture()
	svc, _ := newIncidents(f)
	marta := f.user("Marta", models.RoleUser)
	joan := f.user("Joan", models.RoleUser)

	incident, _, err := svc.Report(context.Background(), marta, validIncident("", 41.1, 1.2))
	require.NoError(t, err)

	updated, err := svc.Upvote(context.Background(), joan, incident.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.UpvoteCount())

	updated, err = svc.Upvote(context.Background(), joan, incident.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.UpvoteCount())
	assert.Equal(t, 1, f.profile(t, marta.UserID).Karma)

	_, err = svc.Upvote(context.Background(), marta, incident.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err = svc.RemoveUpvote(context.Background(), joan, incident.ID)
	require.NoError(t, err)
	assert.Zero(t, updated.UpvoteCount())
	assert.Zero(t, f.profile(t, marta.UserID).Karma)

	_, err = svc.RemoveUpvote(context.Background(), joan, incident.ID)
	require.NoError(t, err)
	assert.Zero(t, f.profile(t, marta.UserID).Karma)
}

func TestChangeIncidentStatus(t *testing.T) {
	f := newFixture()
	svc, notifier := newIncidents(f)
	marta := f.user("Marta", models.RoleUser)
	mod := f.user("Mod", models.RoleModerator)

	incident, _, err := svc.Report(context.Background(), marta, validIncident("", 41.1, 1.2))
	require.NoError(t, err)

	_, err = svc.ChangeStatus(context.Background(), marta, incident.ID, models.IncidentStatusInProgress)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.ChangeStatus(context.Background(), mod, incident.ID, models.IncidentStatusResolved)
	assert.ErrorIs(t, err, ErrConflict, "open cannot jump to resolved")

	updated, err := svc.ChangeStatus(context.Background(), mod, incident.ID, models.IncidentStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.IncidentStatusInProgress, updated.Status)

	f.clock = f.clock.Add(time.Hour)
	updated, err = svc.ChangeStatus(context.Background(), mod, incident.ID, models.IncidentStatusResolved)
	require.NoError(t, err)
	require.NotNil(t, updated.ResolvedAt)
	assert.Equal(t, f.clock, *updated.ResolvedAt)
	assert.Equal(t, 15+25, f.profile(t, marta.UserID).ComuniPoints)

	_, err = svc.ChangeStatus(context.Background(), mod, incident.ID, models.IncidentStatusDismissed)
	assert.ErrorIs(t, err, ErrConflict, "resolved is terminal")

	require.Len(t, notifier.sent, 2)
	assert.Equal(t, marta.UserID, notifier.sent[1].userID)
	assert.Equal(t, models.IncidentStatusResolved, notifier.sent[1].input.Data["status"])
}

func TestListAndDeleteIncidents(t *testing.T) {
	f := newFixture()
	svc, _ := newIncidents(f)
	marta := f.user("Marta", models.RoleUser)
	joan := f.user("Joan", models.RoleUser)

	a, _, err := svc.Report(context.Background(), marta, validIncident("", 41.1, 1.2))
	require.NoError(t, err)
	noise := validIncident("", 41.1, 1.2)
	noise.Category = models.IncidentCategoryNoise
	_, _, err = svc.Report(context.Background(), marta, noise)
	require.NoError(t, err)

	items, total, err := svc.List(context.Background(), models.IncidentFilter{Neighborhood: barrio, Category: models.IncidentCategoryNoise})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, items, 1)

	assert.ErrorIs(t, svc.Delete(context.Background(), joan, a.ID), ErrForbidden)
	assert.NoError(t, svc.Delete(context.Background(), marta, a.ID))

	_, total, err = svc.List(context.Background(), models.IncidentFilter{Neighborhood: barrio})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}
