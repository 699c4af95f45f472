package models

import (
	"time"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Body struct {
		Status  string    `json:"status" example:"healthy" doc:"Service health status"`
		Version string    `json:"version" example:"1.0.0" doc:"API version"`
		Time    time.Time `json:"time" doc:"Current server time"`
	}
}

// ProfileSummary describes a configured analysis profile
type ProfileSummary struct {
	Name   string   `json:"name" doc:"Profile name"`
	Kind   string   `json:"kind" doc:"Analysis kind"`
	Inputs []string `json:"inputs" doc:"Input file names expected by the profile"`
}

// ListProfilesResponse lists the configured analysis profiles
type ListProfilesResponse struct {
	Body struct {
		Profiles []ProfileSummary `json:"profiles" doc:"Configured profiles sorted by name"`
	}
}
