package postgres

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgContainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/RMahshie/labfit/internal/repository"
	"github.com/RMahshie/labfit/pkg/models"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	pg, err := pgContainer.Run(ctx,
		"postgres:15-alpine",
		pgContainer.WithDatabase("labfit_test"),
		pgContainer.WithUsername("testuser"),
		pgContainer.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, pg.Terminate(context.Background())) })

	dbURL, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	files, err := filepath.Glob("../../../migrations/*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	sort.Strings(files)
	for _, f := range files {
		stmt, err := os.ReadFile(f)
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, string(stmt))
		require.NoError(t, err, f)
	}
	return db
}

func newAnalysis(created time.Time) *models.Analysis {
	return &models.Analysis{
		ID:        uuid.New().String(),
		Profile:   "noise-psd",
		Kind:      "noise-psd",
		Status:    models.StatusPending,
		InputKeys: []string{"inputs/a/noise_1k.txt"},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestAnalysisRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	repo := NewPostgresAnalysisRepository(setupDB(t))
	ctx := context.Background()

	_, err := repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	base := time.Now().Add(-time.Hour)
	older, newer := newAnalysis(base), newAnalysis(base.Add(time.Minute))
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	list, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, []string{"inputs/a/noise_1k.txt"}, list[0].InputKeys)

	id := uuid.MustParse(older.ID)
	require.NoError(t, repo.UpdateStatus(ctx, id, models.StatusProcessing, 50))
	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Progress)
	assert.Nil(t, got.CompletedAt)

	_, err = repo.GetResults(ctx, id)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	results := &models.AnalysisResults{
		ID:         uuid.New().String(),
		AnalysisID: older.ID,
		Parameters: []models.Parameter{{Name: "Boltzmann Constant", Symbol: "k_B", Value: 1.38e-23, StdErr: 2e-25, Unit: "J/K"}},
		Artifacts:  []models.Artifact{{Name: "noise_fit.png", Key: "results/x/noise_fit.png", ContentType: "image/png"}},
		CreatedAt:  time.Now(),
	}
	require.NoError(t, repo.StoreResults(ctx, results))
	require.NoError(t, repo.UpdateStatus(ctx, id, models.StatusCompleted, 100))

	got, err = repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	stored, err := repo.GetResults(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, results.Parameters, stored.Parameters)
	assert.Equal(t, results.Artifacts, stored.Artifacts)
	assert.Empty(t, stored.Notes)

	failed := uuid.MustParse(newer.ID)
	require.NoError(t, repo.UpdateError(ctx, failed, "noise_1k.txt: no data rows"))
	got, err = repo.GetByID(ctx, failed)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMsg)
	assert.Equal(t, "noise_1k.txt: no data rows", *got.ErrorMsg)
}
