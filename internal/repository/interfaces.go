package repository

import (
	"context"
	"errors"

	"github.com/RMahshie/labfit/pkg/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no analysis or result matches the ID
var ErrNotFound = errors.New("not found")

// AnalysisRepository defines the interface for analysis data operations
type AnalysisRepository interface {
	Create(ctx context.Context, analysis *models.Analysis) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Analysis, error)
	List(ctx context.Context, limit int) ([]*models.Analysis, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, progress int) error
	UpdateError(ctx context.Context, id uuid.UUID, errorMsg string) error
	StoreResults(ctx context.Context, results *models.AnalysisResults) error
	GetResults(ctx context.Context, analysisID uuid.UUID) (*models.AnalysisResults, error)
}
