package operations

import (
	"context"
	"time"

	"codeberg.org/docforge/server/internal/pipeline"
)

// runs one request through the pipeline
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type ParamInfo struct {
	Name     string   `json:"name"`
	Required bool     `json:"required"`
	Default  string   `json:"default,omitempty"`
	Allowed  []string `json:"allowed,omitempty"`
}

type OperationInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Feature     string      `json:"feature"`
	Available   bool        `json:"available"`
	Mode        string      `json:"mode"`
	Delivery    string      `json:"delivery"`
	Extensions  []string    `json:"extensions,omitempty"`
	Params      []ParamInfo `json:"params"`
}

type ListResponse struct {
	Tier       string          `json:"tier"`
	Operations []OperationInfo `json:"operations"`
}

// returned when outputs were packaged for a later download
type StagedResponse struct {
	ArtifactID   string    `json:"artifact_id"`
	DownloadURL  string    `json:"download_url"`
	DownloadName string    `json:"download_name"`
	FileCount    int       `json:"file_count"`
	Size         int64     `json:"size"`
	ExpiresAt    time.Time `json:"expires_at"`
}
