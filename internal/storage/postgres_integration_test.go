//go:build integration

package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vigilant-eye/facewatch/internal/models"
)

func setupPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "facewatch",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil || container == nil {
		t.Skipf("docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/facewatch?sslmode=disable", host, port.Port())
	store, err := NewPostgresStoreDSN(ctx, dsn, 5)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.Migrate(ctx))
	return store
}

func newCitizen(name, nationalID string) *models.Citizen {
	return &models.Citizen{
		Name:       name,
		NationalID: nationalID,
		Address:    "1 Main St",
		PictureKey: "citizens/" + nationalID + ".jpg",
	}
}

func TestPostgresCitizens(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	alice := newCitizen("Alice", "NID-1")
	require.NoError(t, store.CreateCitizen(ctx, alice))
	assert.NotEqual(t, uuid.Nil, alice.ID)
	assert.Equal(t, models.CitizenStatusFree, alice.Status)

	err := store.CreateCitizen(ctx, newCitizen("Alice Again", "NID-1"))
	assert.ErrorIs(t, err, ErrDuplicateNationalID)

	updated, err := store.UpdateCitizenStatus(ctx, alice.ID, models.CitizenStatusWanted)
	require.NoError(t, err)
	assert.Equal(t, models.CitizenStatusWanted, updated.Status)

	_, err = store.UpdateCitizenStatus(ctx, uuid.New(), models.CitizenStatusFree)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetCitizen(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := store.ListCitizens(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "NID-1", list[0].NationalID)
}

func TestPostgresDetectionRoundTrip(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	bob := newCitizen("Bob", "NID-2")
	require.NoError(t, store.CreateCitizen(ctx, bob))
	_, err := store.UpdateCitizenStatus(ctx, bob.ID, models.CitizenStatusWanted)
	require.NoError(t, err)

	user := "officer-7"
	ev := &models.DetectionEvent{
		ImageName:         "street.jpg",
		ImageKey:          "detections/2026/10/19/x.jpg",
		TotalFaces:        2,
		KnownFaces:        1,
		UnknownFaces:      1,
		ProcessingSeconds: 0.412,
		Method:            models.MethodImageUpload,
		UserID:            &user,
	}
	matches := []models.DetectionMatch{
		{Confidence: 0, IsMatch: false, Box: models.BoundingBox{Top: 1, Right: 20, Bottom: 30, Left: 2}},
		{MatchedPersonID: &bob.ID, Confidence: 95, IsMatch: true,
			Box: models.BoundingBox{Top: 40, Right: 90, Bottom: 100, Left: 50}, Embedding: []float32{0.1, 0.2, 0.3}},
	}
	before := time.Now().Add(-time.Minute)
	require.NoError(t, store.SaveDetection(ctx, ev, matches))
	assert.NotEqual(t, uuid.Nil, ev.ID)
	assert.Equal(t, ev.ID, matches[1].EventID)

	gotEv, gotMatches, err := store.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, gotEv.TotalFaces)
	require.NotNil(t, gotEv.UserID)
	assert.Equal(t, user, *gotEv.UserID)
	require.Len(t, gotMatches, 2)
	assert.False(t, gotMatches[0].IsMatch)
	assert.Nil(t, gotMatches[0].MatchedPersonID)
	assert.True(t, gotMatches[1].IsMatch)
	assert.Equal(t, models.BoundingBox{Top: 40, Right: 90, Bottom: 100, Left: 50}, gotMatches[1].Box)

	events, total, err := store.ListEvents(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, events, 1)

	since, err := store.ListEventsSince(ctx, before)
	require.NoError(t, err)
	assert.Len(t, since, 1)

	hits, err := store.ListPersonMatchesSince(ctx, before)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, bob.ID, hits[0].PersonID)
	assert.Equal(t, ev.ID, hits[0].EventID)
	assert.Equal(t, models.CitizenStatusWanted, hits[0].Status)

	_, _, err = store.GetEvent(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresRejectsInconsistentCounts(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	ev := &models.DetectionEvent{
		ImageName:  "bad.jpg",
		ImageKey:   "detections/bad.jpg",
		TotalFaces: 1,
		KnownFaces: 1,
		// unknown missing: known + unknown != total
		Method: models.MethodImageUpload,
	}
	err := store.SaveDetection(ctx, ev, nil)
	assert.Error(t, err)

	_, total, err := store.ListEvents(ctx, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := setupPostgres(t)
	assert.NoError(t, store.Migrate(context.Background()))
}
