package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comunitarr/internal/logger"
	"comunitarr/internal/models"
)

func newAnnouncements(f *fixture) *AnnouncementService {
	svc := NewAnnouncementService(f.store, f.points, logger.Discard())
	svc.now = f.now
	return svc
}

func validAnnouncement(title string) CreateAnnouncementInput {
	return CreateAnnouncementInput{
		Title:    title,
		Body:     "Mañana cortan el agua de 9 a 14h en toda la calle.",
		Category: models.AnnouncementCategoryAlert,
	}
}

func TestCreateAnnouncement(t *testing.T) {
	f := newFixture()
	svc := newAnnouncements(f)
	marta := f.user("Marta", models.RoleUser)

	a, queued, err := svc.Create(context.Background(), marta, validAnnouncement("Corte de agua"))
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, barrio, a.Neighborhood)
	assert.Equal(t, marta.UserID, a.AuthorID)
	assert.Equal(t, f.clock.Add(models.DefaultAnnouncementTTL), a.ExpiresAt)
	assert.Equal(t, 10, f.profile(t, marta.UserID).ComuniPoints)

	past := f.clock.Add(-time.Hour)
	in := validAnnouncement("Corte de agua")
	in.ExpiresAt = &past
	_, _, err = svc.Create(context.Background(), marta, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = validAnnouncement("Hola")
	_, _, err = svc.Create(context.Background(), marta, in)
	assert.ErrorIs(t, err, ErrInvalidInput, "title too short")

	in = validAnnouncement("Corte de agua")
	in.Category = "party"
	_, _, err = svc.Create(context.Background(), marta, in)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListAnnouncementsPinnedFirstAndSkipsExpired(t *testing.T) {
	f := newFixture()
	svc := newAnnouncements(f)
	marta := f.user("Marta", models.RoleUser)
	mod := f.user("Mod", models.RoleModerator)

	old, _, err := svc.Create(context.Background(), marta, validAnnouncement("Primer aviso"))
	require.NoError(t, err)

	f.clock = f.clock.Add(time.Hour)
	soon := f.clock.Add(2 * time.Hour)
	in := validAnnouncement("Aviso que caduca")
	in.ExpiresAt = &soon
	_, _, err = svc.Create(context.Background(), marta, in)
	require.NoError(t, err)

	f.clock = f.clock.Add(time.Hour)
	newest, _, err := svc.Create(context.Background(), marta, validAnnouncement("Último aviso"))
	require.NoError(t, err)

	_, err = svc.SetPinned(context.Background(), mod, old.ID, true)
	require.NoError(t, err)

	items, total, err := svc.List(context.Background(), barrio, "", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, items, 3)
	assert.Equal(t, old.ID, items[0].ID)
	assert.Equal(t, newest.ID, items[1].ID)

	f.clock = f.clock.Add(3 * time.Hour)
	items, total, err = svc.List(context.Background(), barrio, "", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, items, 2)

	items, _, err = svc.List(context.Background(), barrio, models.AnnouncementCategoryEvent, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, _, err = svc.List(context.Background(), "eixample", "", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestUpdateAnnouncementOnlyByAuthor(t *testing.T) {
	f := newFixture()
	svc := newAnnouncements(f)
	marta := f.user("Marta", models.RoleUser)
	mod := f.user("Mod", models.RoleModerator)

	a, _, err := svc.Create(context.Background(), marta, validAnnouncement("Corte de agua"))
	require.NoError(t, err)

	title := "Corte de agua aplazado"
	_, err = svc.Update(context.Background(), mod, a.ID, UpdateAnnouncementInput{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)

	f.clock = f.clock.Add(time.Minute)
	updated, err := svc.Update(context.Background(), marta, a.ID, UpdateAnnouncementInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, f.clock, updated.UpdatedAt)

	stored, err := svc.Get(context.Background(), marta, a.ID)
	require.NoError(t, err)
	assert.Equal(t, title, stored.Title)

	short := "no"
	_, err = svc.Update(context.Background(), marta, a.ID, UpdateAnnouncementInput{Title: &short})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDeleteAndPinAnnouncement(t *testing.T) {
	f := newFixture()
	svc := newAnnouncements(f)
	marta := f.user("Marta", models.RoleUser)
	joan := f.user("Joan", models.RoleUser)
	mod := f.user("Mod", models.RoleModerator)

	a, _, err := svc.Create(context.Background(), marta, validAnnouncement("Corte de agua"))
	require.NoError(t, err)

	_, err = svc.SetPinned(context.Background(), marta, a.ID, true)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.ErrorIs(t, svc.Delete(context.Background(), joan, a.ID), ErrForbidden)
	assert.NoError(t, svc.Delete(context.Background(), mod, a.ID))
	_, err = svc.Get(context.Background(), marta, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetAnnouncementOtherNeighborhood(t *testing.T) {
	f := newFixture()
	svc := newAnnouncements(f)
	marta := f.user("Marta", models.RoleUser)
	a, _, err := svc.Create(context.Background(), marta, validAnnouncement("Corte de agua"))
	require.NoError(t, err)

	outsider := marta
	outsider.Neighborhood = "eixample"
	_, err = svc.Get(context.Background(), outsider, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
