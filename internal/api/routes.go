package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RMahshie/labfit/internal/api/handlers"
	"github.com/RMahshie/labfit/internal/config"
	"github.com/RMahshie/labfit/internal/processing"
	"github.com/RMahshie/labfit/internal/repository"
	"github.com/RMahshie/labfit/internal/storage"
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(router chi.Router, api huma.API, s3Service storage.S3Service, analysisRepo repository.AnalysisRepository, processingSvc processing.ProcessingService, profiles config.Profiles) {
	// Initialize handlers
	analysisHandler := handlers.NewAnalysisHandler(analysisRepo, s3Service, processingSvc, profiles)

	router.Handle("/metrics", promhttp.Handler())

	huma.Register(api, huma.Operation{
		OperationID: "listProfiles",
		Method:      http.MethodGet,
		Path:        "/api/profiles",
		Summary:     "List analysis profiles",
		Description: "Returns the configured profiles with their kind and expected input files",
		Tags:        []string{"Profiles"},
	}, analysisHandler.ListProfiles)

	// Register analysis routes
	huma.Register(api, huma.Operation{
		OperationID: "createAnalysis",
		Method:      http.MethodPost,
		Path:        "/api/analyses",
		Summary:     "Create a new analysis",
		Description: "Creates a pending analysis for a profile and returns upload URLs for its inputs",
		Tags:        []string{"Analysis"},
	}, analysisHandler.CreateAnalysis)

	huma.Register(api, huma.Operation{
		OperationID: "listAnalyses",
		Method:      http.MethodGet,
		Path:        "/api/analyses",
		Summary:     "List analyses",
		Description: "Returns the most recent analyses, newest first",
		Tags:        []string{"Analysis"},
	}, analysisHandler.ListAnalyses)

	huma.Register(api, huma.Operation{
		OperationID: "getAnalysisStatus",
		Method:      http.MethodGet,
		Path:        "/api/analyses/{id}/status",
		Summary:     "Get analysis status",
		Description: "Returns the current status and progress of an analysis",
		Tags:        []string{"Analysis"},
	}, analysisHandler.GetAnalysisStatus)

	huma.Register(api, huma.Operation{
		OperationID: "getAnalysisResults",
		Method:      http.MethodGet,
		Path:        "/api/analyses/{id}/results",
		Summary:     "Get analysis results",
		Description: "Returns fitted parameters, notes and download URLs for plots and tables",
		Tags:        []string{"Analysis"},
	}, analysisHandler.GetAnalysisResults)

	huma.Register(api, huma.Operation{
		OperationID: "startProcessing",
		Method:      http.MethodPost,
		Path:        "/api/analyses/{id}/process",
		Summary:     "Start processing analysis",
		Description: "Starts processing the uploaded input files in the background",
		Tags:        []string{"Analysis"},
	}, analysisHandler.StartProcessing)
}
