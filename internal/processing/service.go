package processing

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/RMahshie/labfit/internal/analysis"
	"github.com/RMahshie/labfit/internal/config"
	"github.com/RMahshie/labfit/internal/report"
	"github.com/RMahshie/labfit/internal/repository"
	"github.com/RMahshie/labfit/internal/storage"
	"github.com/RMahshie/labfit/pkg/models"
)

// maxConcurrentDownloads bounds the input fetches of one analysis
const maxConcurrentDownloads = 4

var tracer = otel.Tracer("github.com/RMahshie/labfit/internal/processing")

type ProcessingService interface {
	ProcessAnalysis(ctx context.Context, analysisID uuid.UUID) error
}

type processingService struct {
	s3         storage.S3Service
	repository repository.AnalysisRepository
	profiles   config.Profiles
	registry   *analysis.Registry
	dpi        int // default figure resolution
}

func NewProcessingService(s3Service storage.S3Service, repo repository.AnalysisRepository, profiles config.Profiles, registry *analysis.Registry, dpi int) ProcessingService {
	return &processingService{
		s3:         s3Service,
		repository: repo,
		profiles:   profiles,
		registry:   registry,
		dpi:        dpi,
	}
}

// InputKey returns the object key an input of analysis id is uploaded to
func InputKey(id, name string) string {
	return path.Join("inputs", id, name)
}

// ResultPrefix returns the key prefix of the artifacts of analysis id
func ResultPrefix(id string) string {
	return path.Join("results", id)
}

// InputNames returns the distinct input paths of p in profile order
func InputNames(p *config.Profile) []string {
	seen := make(map[string]bool, len(p.Inputs))
	var names []string
	for _, in := range p.Inputs {
		if !seen[in.Path] {
			seen[in.Path] = true
			names = append(names, in.Path)
		}
	}
	return names
}

// ProcessAnalysis runs a pending analysis end to end. A failure of the
// analysis itself is recorded on the job and nil is returned; an error is
// returned only when the job could not be updated.
func (s *processingService) ProcessAnalysis(ctx context.Context, analysisID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "processing.analysis",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("analysis.id", analysisID.String())),
	)
	defer span.End()
	start := time.Now()

	// Step 1: Update to processing status
	if err := s.repository.UpdateStatus(ctx, analysisID, models.StatusProcessing, 10); err != nil {
		return err
	}

	// Step 2: Get analysis details
	a, err := s.repository.GetByID(ctx, analysisID)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("analysis.profile", a.Profile),
		attribute.String("analysis.kind", a.Kind),
	)
	logger := log.With().Str("analysisID", a.ID).Str("profile", a.Profile).Logger()

	results, err := s.run(ctx, analysisID, a)
	analysisDuration.WithLabelValues(a.Kind).Observe(time.Since(start).Seconds())
	if err != nil {
		analysesTotal.WithLabelValues(a.Kind, models.StatusFailed).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("Analysis failed")
		if uerr := s.repository.UpdateError(ctx, analysisID, err.Error()); uerr != nil {
			return errors.Join(err, uerr)
		}
		return nil
	}

	// Step 7: Mark complete
	if err := s.repository.UpdateStatus(ctx, analysisID, models.StatusCompleted, 100); err != nil {
		return err
	}
	analysesTotal.WithLabelValues(a.Kind, models.StatusCompleted).Inc()
	span.SetStatus(codes.Ok, "")
	logger.Info().
		Str("resultsID", results.ID).
		Int("artifacts", len(results.Artifacts)).
		Dur("elapsed", time.Since(start)).
		Msg("Analysis completed")
	return nil
}

func (s *processingService) run(ctx context.Context, analysisID uuid.UUID, a *models.Analysis) (*models.AnalysisResults, error) {
	profile, err := s.profiles.Get(a.Profile)
	if err != nil {
		return nil, err
	}

	// Step 3: Download inputs
	if err := s.repository.UpdateStatus(ctx, analysisID, models.StatusProcessing, 20); err != nil {
		return nil, err
	}
	files, err := s.fetchInputs(ctx, a.ID, profile)
	if err != nil {
		return nil, err
	}

	// Step 4: Run the analyzer
	if err := s.repository.UpdateStatus(ctx, analysisID, models.StatusProcessing, 50); err != nil {
		return nil, err
	}
	out, err := s.analyze(ctx, profile, files)
	if err != nil {
		return nil, err
	}

	// Step 5: Render and upload artifacts
	if err := s.repository.UpdateStatus(ctx, analysisID, models.StatusProcessing, 80); err != nil {
		return nil, err
	}
	artifacts, err := s.publish(ctx, a.ID, profile, out)
	if err != nil {
		return nil, err
	}

	// Step 6: Store results
	if err := s.repository.UpdateStatus(ctx, analysisID, models.StatusProcessing, 90); err != nil {
		return nil, err
	}
	results := &models.AnalysisResults{
		ID:         uuid.New().String(),
		AnalysisID: a.ID,
		Parameters: out.Parameters,
		Artifacts:  artifacts,
		Notes:      out.Notes,
		CreatedAt:  time.Now(),
	}
	if err := s.repository.StoreResults(ctx, results); err != nil {
		return nil, fmt.Errorf("failed to store results: %w", err)
	}
	return results, nil
}

// fetchInputs downloads every input of p concurrently, keyed by its profile path
func (s *processingService) fetchInputs(ctx context.Context, id string, p *config.Profile) (storage.Files, error) {
	ctx, span := tracer.Start(ctx, "processing.fetch_inputs")
	defer span.End()

	names := InputNames(p)
	span.SetAttributes(attribute.Int("inputs", len(names)))

	files := make(storage.Files, len(names))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDownloads)
	for _, name := range names {
		g.Go(func() error {
			data, err := s.s3.DownloadFile(ctx, InputKey(id, name))
			if err != nil {
				return fmt.Errorf("input %s: %w", name, err)
			}
			mu.Lock()
			files[name] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return files, nil
}

func (s *processingService) analyze(ctx context.Context, p *config.Profile, files storage.Files) (*analysis.Outcome, error) {
	ctx, span := tracer.Start(ctx, "processing.analyze", trace.WithAttributes(attribute.String("analysis.kind", p.Kind)))
	defer span.End()

	out, err := analysis.Run(ctx, s.registry, p, files)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("parameters", len(out.Parameters)),
		attribute.Int("figures", len(out.Figures)),
	)
	return out, nil
}

// publish renders the outcome and uploads every file under the result prefix
func (s *processingService) publish(ctx context.Context, id string, p *config.Profile, out *analysis.Outcome) ([]models.Artifact, error) {
	ctx, span := tracer.Start(ctx, "processing.publish")
	defer span.End()

	files, err := report.Render(out, report.Options{
		DPI:          s.dpi,
		Workbook:     p.Output.Workbook,
		WorkbookName: p.Output.WorkbookName,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to render artifacts: %w", err)
	}

	sink := storage.Bucket{S3: s.s3, Prefix: ResultPrefix(id)}
	artifacts := make([]models.Artifact, 0, len(files))
	for _, f := range files {
		key, err := sink.Put(ctx, f.Name, f.ContentType, f.Data)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to upload %s: %w", f.Name, err)
		}
		artifacts = append(artifacts, models.Artifact{Name: f.Name, Key: key, ContentType: f.ContentType})
	}
	span.SetAttributes(attribute.Int("artifacts", len(artifacts)))
	return artifacts, nil
}
