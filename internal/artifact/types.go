package artifact

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// packaging was asked to build a container with nothing in it
	ErrEmptyResult = errors.New("empty result")
	// unknown, expired, already downloaded or deleted
	ErrNotFound = errors.New("artifact not found")
)

type State string

const (
	StateBuilding  State = "building"
	StateReady     State = "ready"
	StateDelivered State = "delivered"
	StateExpired   State = "expired"
	StateDeleted   State = "deleted"
)

// a packaged result waiting to be downloaded once
type Artifact struct {
	ID           string    `json:"id"`
	StoragePath  string    `json:"storage_path"`
	DownloadName string    `json:"download_name"`
	Size         int64     `json:"size"`
	FileCount    int       `json:"file_count"`
	Owner        string    `json:"owner,omitempty"`
	Sources      []string  `json:"sources,omitempty"`
	State        State     `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (a Artifact) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

type PackageOptions struct {
	DownloadName string
	Owner        string
	// local files and directories destroyed together with the artifact
	Sources []string
}

// blob storage for packaged containers
type Blobs interface {
	Put(ctx context.Context, key string, body io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// artifact metadata shared by every instance.
// Take must be atomic: exactly one concurrent caller receives the record
type Index interface {
	Put(ctx context.Context, a Artifact) error
	Take(ctx context.Context, id string) (Artifact, error)
	// ids whose expiry is at or before now
	ExpiredIDs(ctx context.Context, now time.Time) ([]string, error)
}
