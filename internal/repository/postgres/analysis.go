package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/RMahshie/labfit/internal/repository"
	"github.com/RMahshie/labfit/pkg/models"
	"github.com/google/uuid"
)

const analysisColumns = `id, profile, kind, status, progress, input_keys, error_message, created_at, updated_at, completed_at`

// PostgresAnalysisRepository implements AnalysisRepository for PostgreSQL
type PostgresAnalysisRepository struct {
	db *sql.DB
}

// NewPostgresAnalysisRepository creates a new PostgreSQL analysis repository
func NewPostgresAnalysisRepository(db *sql.DB) repository.AnalysisRepository {
	return &PostgresAnalysisRepository{db: db}
}

// Create inserts a new analysis record
func (r *PostgresAnalysisRepository) Create(ctx context.Context, analysis *models.Analysis) error {
	inputKeys, err := json.Marshal(nonNil(analysis.InputKeys))
	if err != nil {
		return fmt.Errorf("failed to marshal input keys: %w", err)
	}

	query := `
		INSERT INTO analyses (id, profile, kind, status, progress, input_keys, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.ExecContext(ctx, query,
		analysis.ID,
		analysis.Profile,
		analysis.Kind,
		analysis.Status,
		analysis.Progress,
		string(inputKeys),
		analysis.CreatedAt,
		analysis.UpdatedAt)

	return err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(s rowScanner) (*models.Analysis, error) {
	var analysis models.Analysis
	var inputKeys []byte
	var errorMsg sql.NullString
	var completedAt sql.NullTime

	err := s.Scan(
		&analysis.ID,
		&analysis.Profile,
		&analysis.Kind,
		&analysis.Status,
		&analysis.Progress,
		&inputKeys,
		&errorMsg,
		&analysis.CreatedAt,
		&analysis.UpdatedAt,
		&completedAt)
	if err != nil {
		return nil, err
	}

	if len(inputKeys) > 0 {
		if err := json.Unmarshal(inputKeys, &analysis.InputKeys); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input keys: %w", err)
		}
	}
	if errorMsg.Valid {
		analysis.ErrorMsg = &errorMsg.String
	}
	if completedAt.Valid {
		analysis.CompletedAt = &completedAt.Time
	}

	return &analysis, nil
}

// GetByID retrieves an analysis by ID
func (r *PostgresAnalysisRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM analyses WHERE id = $1`

	analysis, err := scanAnalysis(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", id, repository.ErrNotFound)
	}
	return analysis, err
}

// List returns the most recent analyses, newest first
func (r *PostgresAnalysisRepository) List(ctx context.Context, limit int) ([]*models.Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM analyses ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	analyses := []*models.Analysis{}
	for rows.Next() {
		analysis, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, analysis)
	}

	return analyses, rows.Err()
}

// UpdateStatus updates the status and progress of an analysis
func (r *PostgresAnalysisRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, progress int) error {
	query := `
		UPDATE analyses
		SET status = $1, progress = $2, error_message = NULL, updated_at = NOW(),
		    completed_at = CASE WHEN $3 THEN NOW() ELSE completed_at END
		WHERE id = $4`

	_, err := r.db.ExecContext(ctx, query, status, progress, status == models.StatusCompleted, id)
	return err
}

// UpdateError marks an analysis as failed with a message
func (r *PostgresAnalysisRepository) UpdateError(ctx context.Context, id uuid.UUID, errorMsg string) error {
	query := `
		UPDATE analyses
		SET status = 'failed', error_message = $1, updated_at = NOW()
		WHERE id = $2`

	_, err := r.db.ExecContext(ctx, query, errorMsg, id)
	return err
}

// StoreResults stores analysis results
func (r *PostgresAnalysisRepository) StoreResults(ctx context.Context, results *models.AnalysisResults) error {
	parameters, err := json.Marshal(nonNil(results.Parameters))
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}

	artifacts, err := json.Marshal(nonNil(results.Artifacts))
	if err != nil {
		return fmt.Errorf("failed to marshal artifacts: %w", err)
	}

	notes, err := json.Marshal(nonNil(results.Notes))
	if err != nil {
		return fmt.Errorf("failed to marshal notes: %w", err)
	}

	query := `
		INSERT INTO analysis_results (id, analysis_id, parameters, artifacts, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.db.ExecContext(ctx, query,
		results.ID,
		results.AnalysisID,
		string(parameters),
		string(artifacts),
		string(notes),
		results.CreatedAt)

	return err
}

// GetResults retrieves analysis results
func (r *PostgresAnalysisRepository) GetResults(ctx context.Context, analysisID uuid.UUID) (*models.AnalysisResults, error) {
	query := `
		SELECT id, analysis_id, parameters, artifacts, notes, created_at
		FROM analysis_results
		WHERE analysis_id = $1`

	var results models.AnalysisResults
	var parameters, artifacts, notes []byte

	err := r.db.QueryRowContext(ctx, query, analysisID).Scan(
		&results.ID,
		&results.AnalysisID,
		&parameters,
		&artifacts,
		&notes,
		&results.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("results of %s: %w", analysisID, repository.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(parameters, &results.Parameters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parameters: %w", err)
	}
	if err := json.Unmarshal(artifacts, &results.Artifacts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifacts: %w", err)
	}
	if err := json.Unmarshal(notes, &results.Notes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notes: %w", err)
	}

	return &results, nil
}

// nonNil stores empty lists as [] rather than null
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
