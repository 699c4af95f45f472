package models

import (
	"time"
)

// Analysis status values
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// InputUpload describes one measurement file the client intends to upload
type InputUpload struct {
	Name        string `json:"name" minLength:"1" maxLength:"200" required:"true" doc:"Input name as referenced by the profile (e.g. 'scan_transfer_0.1.dat')"`
	ContentType string `json:"content_type,omitempty" enum:"text/plain,text/csv,text/tab-separated-values,application/octet-stream" doc:"Upload content type"`
}

// UploadTarget is a pre-signed upload location for one input
type UploadTarget struct {
	Name string `json:"name" doc:"Input name"`
	Key  string `json:"key" doc:"Object storage key"`
	URL  string `json:"url" doc:"Pre-signed S3 URL for file upload"`
}

// CreateAnalysisRequest represents a request to create a new analysis
type CreateAnalysisRequest struct {
	Body struct {
		Profile string        `json:"profile" minLength:"1" maxLength:"100" required:"true" doc:"Name of the analysis profile to run"`
		Inputs  []InputUpload `json:"inputs,omitempty" maxItems:"32" doc:"Input files to upload; defaults to the profile's inputs"`
	}
}

// CreateAnalysisResponseBody is the body of the create analysis response
type CreateAnalysisResponseBody struct {
	ID        string         `json:"id" doc:"Analysis unique identifier"`
	Kind      string         `json:"kind" doc:"Analysis kind resolved from the profile"`
	Uploads   []UploadTarget `json:"uploads" doc:"Pre-signed upload locations, one per input"`
	ExpiresIn int            `json:"expires_in" doc:"URL expiration time in seconds"`
}

// CreateAnalysisResponse represents the response from creating an analysis
type CreateAnalysisResponse struct {
	Body CreateAnalysisResponseBody
}

// GetAnalysisStatusRequest represents a request to get analysis status
type GetAnalysisStatusRequest struct {
	ID string `path:"id" doc:"Analysis ID"`
}

// GetAnalysisStatusResponseBody is the body of the status response
type GetAnalysisStatusResponseBody struct {
	ID        string  `json:"id" doc:"Analysis ID"`
	Status    string  `json:"status" enum:"pending,processing,completed,failed" doc:"Analysis status"`
	Progress  int     `json:"progress" minimum:"0" maximum:"100" doc:"Analysis progress percentage"`
	Message   string  `json:"message,omitempty" doc:"Human-readable status message"`
	Error     *string `json:"error,omitempty" doc:"Failure reason when status is failed"`
	ResultsID *string `json:"results_id,omitempty" doc:"Results ID when analysis completes"`
}

// GetAnalysisStatusResponse represents the current status of an analysis
type GetAnalysisStatusResponse struct {
	Body GetAnalysisStatusResponseBody
}

// GetAnalysisResultsRequest represents a request to get analysis results
type GetAnalysisResultsRequest struct {
	ID string `path:"id" doc:"Analysis ID"`
}

// GetAnalysisResultsResponseBody is the body of the results response
type GetAnalysisResultsResponseBody struct {
	ID         string      `json:"id" doc:"Results ID"`
	AnalysisID string      `json:"analysis_id" doc:"Analysis ID"`
	Profile    string      `json:"profile" doc:"Profile the analysis ran with"`
	Kind       string      `json:"kind" doc:"Analysis kind"`
	Parameters []Parameter `json:"parameters" doc:"Fitted and derived parameters"`
	Artifacts  []Artifact  `json:"artifacts,omitempty" doc:"Rendered plots, tables and workbooks"`
	Notes      []string    `json:"notes,omitempty" doc:"Diagnostics produced while processing"`
	CreatedAt  time.Time   `json:"created_at" doc:"Results creation timestamp"`
}

// GetAnalysisResultsResponse represents the complete analysis results
type GetAnalysisResultsResponse struct {
	Body GetAnalysisResultsResponseBody
}

// StartProcessingRequest represents a request to start processing uploaded files
type StartProcessingRequest struct {
	ID string `path:"id" doc:"Analysis ID"`
}

// StartProcessingResponse represents the response from starting processing
type StartProcessingResponse struct {
	Body struct {
		Message string `json:"message" doc:"Confirmation message"`
	}
}

// ListAnalysesRequest represents a request to list recent analyses
type ListAnalysesRequest struct {
	Limit int `query:"limit" default:"20" minimum:"1" maximum:"200" doc:"Maximum number of analyses to return"`
}

// ListAnalysesResponse lists recent analyses, newest first
type ListAnalysesResponse struct {
	Body struct {
		Analyses []*Analysis `json:"analyses" doc:"Recent analyses"`
	}
}

// Analysis represents the core analysis entity
type Analysis struct {
	ID          string     `json:"id"`
	Profile     string     `json:"profile"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	InputKeys   []string   `json:"input_keys"`
	ErrorMsg    *string    `json:"error_message,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Artifact is a file produced by an analysis and kept in object storage
type Artifact struct {
	Name        string `json:"name" doc:"File name (e.g. 'fit_forward.png')"`
	Key         string `json:"key" doc:"Object storage key"`
	ContentType string `json:"content_type" doc:"MIME type"`
	URL         string `json:"url,omitempty" doc:"Pre-signed download URL"`
}

// AnalysisResults represents the stored analysis results
type AnalysisResults struct {
	ID         string      `json:"id"`
	AnalysisID string      `json:"analysis_id"`
	Parameters []Parameter `json:"parameters"`
	Artifacts  []Artifact  `json:"artifacts,omitempty"`
	Notes      []string    `json:"notes,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
