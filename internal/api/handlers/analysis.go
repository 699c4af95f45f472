package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/labfit/internal/config"
	"github.com/RMahshie/labfit/internal/processing"
	"github.com/RMahshie/labfit/internal/repository"
	"github.com/RMahshie/labfit/internal/storage"
	"github.com/RMahshie/labfit/pkg/models"
)

// uploadExpiry matches the lifetime of pre-signed upload URLs
const uploadExpiry = 15 * time.Minute

// AnalysisHandler handles analysis-related HTTP requests
type AnalysisHandler struct {
	repo          repository.AnalysisRepository
	s3Service     storage.S3Service
	processingSvc processing.ProcessingService
	profiles      config.Profiles
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(repo repository.AnalysisRepository, s3Service storage.S3Service, processingSvc processing.ProcessingService, profiles config.Profiles) *AnalysisHandler {
	return &AnalysisHandler{
		repo:          repo,
		s3Service:     s3Service,
		processingSvc: processingSvc,
		profiles:      profiles,
	}
}

// ListProfiles returns the configured analysis profiles
func (h *AnalysisHandler) ListProfiles(ctx context.Context, _ *struct{}) (*models.ListProfilesResponse, error) {
	resp := &models.ListProfilesResponse{}
	resp.Body.Profiles = make([]models.ProfileSummary, 0, len(h.profiles))
	for _, name := range h.profiles.Names() {
		p := h.profiles[name]
		resp.Body.Profiles = append(resp.Body.Profiles, models.ProfileSummary{
			Name:   name,
			Kind:   p.Kind,
			Inputs: processing.InputNames(p),
		})
	}
	return resp, nil
}

// CreateAnalysis creates a pending analysis and returns one upload URL per input
func (h *AnalysisHandler) CreateAnalysis(ctx context.Context, req *models.CreateAnalysisRequest) (*models.CreateAnalysisResponse, error) {
	log.Info().Str("profile", req.Body.Profile).Int("inputs", len(req.Body.Inputs)).Msg("Creating new analysis")

	profile, err := h.profiles.Get(req.Body.Profile)
	if err != nil {
		return nil, huma.Error400BadRequest(fmt.Sprintf("Unknown profile %q", req.Body.Profile), err)
	}

	names := processing.InputNames(profile)
	contentTypes := make(map[string]string, len(names))
	for _, name := range names {
		contentTypes[name] = storage.ContentTypeText
	}
	for _, in := range req.Body.Inputs {
		if _, ok := contentTypes[in.Name]; !ok {
			return nil, huma.Error400BadRequest(fmt.Sprintf("Profile %s has no input %q", profile.Name, in.Name), nil)
		}
		if in.ContentType != "" {
			contentTypes[in.Name] = in.ContentType
		}
	}

	// Generate unique analysis ID
	analysisID := uuid.New()

	uploads := make([]models.UploadTarget, 0, len(names))
	keys := make([]string, 0, len(names))
	for _, name := range names {
		key := processing.InputKey(analysisID.String(), name)
		uploadURL, err := h.s3Service.GenerateUploadURL(ctx, key, contentTypes[name])
		if err != nil {
			if strings.Contains(err.Error(), "invalid content type") {
				return nil, huma.Error400BadRequest("File format not supported.", err)
			}
			return nil, huma.Error500InternalServerError("Failed to prepare upload", err)
		}
		uploads = append(uploads, models.UploadTarget{Name: name, Key: key, URL: uploadURL})
		keys = append(keys, key)
	}

	now := time.Now()
	analysis := &models.Analysis{
		ID:        analysisID.String(),
		Profile:   profile.Name,
		Kind:      profile.Kind,
		Status:    models.StatusPending,
		Progress:  0,
		InputKeys: keys,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repo.Create(ctx, analysis); err != nil {
		return nil, huma.Error500InternalServerError("Failed to create analysis", err)
	}

	log.Info().Str("analysisID", analysis.ID).Str("kind", analysis.Kind).Int("uploads", len(uploads)).Msg("Analysis created, returning upload URLs")
	return &models.CreateAnalysisResponse{
		Body: models.CreateAnalysisResponseBody{
			ID:        analysis.ID,
			Kind:      analysis.Kind,
			Uploads:   uploads,
			ExpiresIn: int(uploadExpiry.Seconds()),
		},
	}, nil
}

// GetAnalysisStatus returns the current status of an analysis
func (h *AnalysisHandler) GetAnalysisStatus(ctx context.Context, req *models.GetAnalysisStatusRequest) (*models.GetAnalysisStatusResponse, error) {
	analysisID, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid analysis ID", err)
	}

	analysis, err := h.repo.GetByID(ctx, analysisID)
	if err != nil {
		return nil, lookupError(err)
	}

	var resultsID *string
	if analysis.Status == models.StatusCompleted {
		results, err := h.repo.GetResults(ctx, analysisID)
		if err == nil && results != nil {
			resultsID = &results.ID
		}
	}

	return &models.GetAnalysisStatusResponse{
		Body: models.GetAnalysisStatusResponseBody{
			ID:        analysis.ID,
			Status:    analysis.Status,
			Progress:  analysis.Progress,
			Message:   statusMessage(analysis.Status, analysis.Progress),
			Error:     analysis.ErrorMsg,
			ResultsID: resultsID,
		},
	}, nil
}

// GetAnalysisResults returns the parameters of a completed analysis with
// download URLs for its artifacts
func (h *AnalysisHandler) GetAnalysisResults(ctx context.Context, req *models.GetAnalysisResultsRequest) (*models.GetAnalysisResultsResponse, error) {
	analysisID, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid analysis ID", err)
	}

	analysis, err := h.repo.GetByID(ctx, analysisID)
	if err != nil {
		return nil, lookupError(err)
	}

	if analysis.Status != models.StatusCompleted {
		return nil, huma.Error409Conflict("Analysis not yet completed",
			fmt.Errorf("analysis status is %s", analysis.Status))
	}

	results, err := h.repo.GetResults(ctx, analysisID)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to get results", err)
	}

	for i := range results.Artifacts {
		a := &results.Artifacts[i]
		url, err := h.s3Service.GenerateDownloadURL(ctx, a.Key)
		if err != nil {
			log.Warn().Err(err).Str("key", a.Key).Msg("Failed to sign artifact download")
			continue
		}
		a.URL = url
	}

	return &models.GetAnalysisResultsResponse{
		Body: models.GetAnalysisResultsResponseBody{
			ID:         results.ID,
			AnalysisID: analysis.ID,
			Profile:    analysis.Profile,
			Kind:       analysis.Kind,
			Parameters: results.Parameters,
			Artifacts:  results.Artifacts,
			Notes:      results.Notes,
			CreatedAt:  results.CreatedAt,
		},
	}, nil
}

// StartProcessing starts processing the uploaded inputs of an analysis
func (h *AnalysisHandler) StartProcessing(ctx context.Context, req *models.StartProcessingRequest) (*models.StartProcessingResponse, error) {
	log.Info().Str("analysisID", req.ID).Msg("Processing start request received")
	analysisID, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid analysis ID", err)
	}

	analysis, err := h.repo.GetByID(ctx, analysisID)
	if err != nil {
		return nil, lookupError(err)
	}
	switch analysis.Status {
	case models.StatusPending, models.StatusFailed:
	default:
		return nil, huma.Error409Conflict(fmt.Sprintf("Analysis is already %s", analysis.Status), nil)
	}

	// Start processing in background (don't wait for completion)
	go func() {
		if err := h.processingSvc.ProcessAnalysis(context.Background(), analysisID); err != nil {
			log.Error().Err(err).Str("analysisID", analysisID.String()).Msg("Processing failed")
		}
	}()

	return &models.StartProcessingResponse{
		Body: struct {
			Message string `json:"message" doc:"Confirmation message"`
		}{
			Message: "Processing started successfully",
		},
	}, nil
}

// ListAnalyses returns the most recent analyses
func (h *AnalysisHandler) ListAnalyses(ctx context.Context, req *models.ListAnalysesRequest) (*models.ListAnalysesResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	analyses, err := h.repo.List(ctx, limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list analyses", err)
	}
	resp := &models.ListAnalysesResponse{}
	resp.Body.Analyses = analyses
	return resp, nil
}

// lookupError maps a repository lookup failure to an HTTP error
func lookupError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return huma.Error404NotFound("Analysis not found", err)
	}
	return huma.Error500InternalServerError("Failed to load analysis", err)
}

// statusMessage creates a human-readable status message
func statusMessage(status string, progress int) string {
	switch status {
	case models.StatusPending:
		return "Waiting for input uploads..."
	case models.StatusProcessing:
		if progress < 20 {
			return "Starting analysis..."
		} else if progress < 50 {
			return "Downloading input files..."
		} else if progress < 80 {
			return "Fitting data..."
		} else {
			return "Rendering results..."
		}
	case models.StatusCompleted:
		return "Analysis complete!"
	case models.StatusFailed:
		return "Analysis failed. Check the error and start processing again."
	default:
		return "Unknown status"
	}
}
