package artifacts

import (
	"context"

	"codeberg.org/docforge/server/internal/artifact"
)

// claims an artifact for its single download
type Opener interface {
	Open(ctx context.Context, id string) (*artifact.Download, error)
}

// default throttle for the download endpoints, in limiter's "<n>-<unit>" notation
const DefaultRate = "30-M"
