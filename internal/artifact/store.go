package artifact

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"codeberg.org/docforge/server/internal/logger"
	"codeberg.org/docforge/server/internal/metrics"
)

const destroyTimeout = 30 * time.Second

// packages outputs into zip containers and hands each out exactly once
type Store struct {
	blobs  Blobs
	index  Index
	ttl    time.Duration
	tmpDir string
	now    func() time.Time
}

func NewStore(blobs Blobs, index Index, ttl time.Duration, tmpDir string) *Store {
	return &Store{
		blobs:  blobs,
		index:  index,
		ttl:    ttl,
		tmpDir: tmpDir,
		now:    time.Now,
	}
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

// writes files into one compressed container and registers it as ready.
// zero files yields ErrEmptyResult and creates nothing
func (s *Store) Package(ctx context.Context, files []string, opts PackageOptions) (*Artifact, error) {
	if len(files) == 0 {
		return nil, ErrEmptyResult
	}

	id := uuid.NewString()
	now := s.now().UTC()

	a := Artifact{
		ID:           id,
		StoragePath:  id + ".zip",
		DownloadName: opts.DownloadName,
		FileCount:    len(files),
		Owner:        opts.Owner,
		Sources:      opts.Sources,
		State:        StateBuilding,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}

	if a.DownloadName == "" {
		a.DownloadName = "result.zip"
	}

	tmp, err := os.CreateTemp(s.tmpDir, "artifact-*.zip")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	defer os.Remove(tmp.Name()) //nolint:errcheck // temp container is copied to blobs
	defer tmp.Close()           //nolint:errcheck // closed explicitly on the happy path

	if err := writeZip(tmp, files); err != nil {
		return nil, err
	}

	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to size container: %w", err)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind container: %w", err)
	}

	if err := s.blobs.Put(ctx, a.StoragePath, tmp, size); err != nil {
		return nil, fmt.Errorf("failed to store container: %w", err)
	}

	a.Size = size
	a.State = StateReady

	if err := s.index.Put(ctx, a); err != nil {
		s.blobs.Delete(context.WithoutCancel(ctx), a.StoragePath) //nolint:errcheck,gosec // unreachable without an index entry
		return nil, fmt.Errorf("failed to register artifact: %w", err)
	}

	metrics.ArtifactsPackaged.Inc()

	logger.Debug("artifact packaged",
		"artifact_id", a.ID,
		"files", a.FileCount,
		"size", a.Size,
		"expires_at", a.ExpiresAt,
	)

	return &a, nil
}

func writeZip(w io.Writer, files []string) error {
	zw := zip.NewWriter(w)
	used := make(map[string]int, len(files))

	for _, path := range files {
		if err := addToZip(zw, path, uniqueName(used, filepath.Base(path))); err != nil {
			zw.Close() //nolint:errcheck,gosec // already failing
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish container: %w", err)
	}

	return nil
}

func addToZip(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path) //nolint:gosec // G304: paths come from the invoker's output dir
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", name, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", name, err)
	}

	header.Name = name
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}

	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("failed to compress %s: %w", name, err)
	}

	return nil
}

// disambiguates entries that share a base name: a.png, a-1.png, ...
func uniqueName(used map[string]int, name string) string {
	n, seen := used[name]
	used[name] = n + 1

	if !seen {
		return name
	}

	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "-" + strconv.Itoa(n) + ext
}

// hands out the container exactly once. closing the returned Download
// destroys the artifact whether or not the stream was read to the end
func (s *Store) Open(ctx context.Context, id string) (*Download, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	a, err := s.index.Take(ctx, id)
	if err != nil {
		return nil, err
	}

	if a.Expired(s.now()) {
		s.destroy(ctx, a, "expired")
		return nil, ErrNotFound
	}

	body, err := s.blobs.Get(ctx, a.StoragePath)
	if err != nil {
		s.destroy(ctx, a, "unreadable")
		logger.WarnErr(err, "artifact blob missing", "artifact_id", a.ID)
		return nil, ErrNotFound
	}

	a.State = StateDelivered

	return &Download{Artifact: a, body: body, store: s, ctx: context.WithoutCancel(ctx)}, nil
}

// deletes every ready artifact past its expiry and returns how many went
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	ids, err := s.index.ExpiredIDs(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired artifacts: %w", err)
	}

	swept := 0

	for _, id := range ids {
		a, err := s.index.Take(ctx, id)
		if err != nil {
			// downloaded or swept elsewhere in the meantime
			continue
		}

		s.destroy(ctx, a, "expired")
		swept++
	}

	return swept, nil
}

// removes the blob and every source path. failures are logged only
func (s *Store) destroy(ctx context.Context, a Artifact, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), destroyTimeout)
	defer cancel()

	if err := s.blobs.Delete(ctx, a.StoragePath); err != nil {
		logger.WarnErr(err, "failed to delete artifact blob", "artifact_id", a.ID)
	}

	for _, src := range a.Sources {
		if err := os.RemoveAll(src); err != nil {
			logger.WarnErr(err, "failed to delete artifact source", "artifact_id", a.ID, "path", src)
		}
	}

	metrics.ArtifactsDestroyed.WithLabelValues(reason).Inc()

	logger.Debug("artifact destroyed", "artifact_id", a.ID, "reason", reason)
}

// a claimed artifact being streamed to one client
type Download struct {
	Artifact
	body  io.ReadCloser
	store *Store
	ctx   context.Context
	once  sync.Once
}

func (d *Download) Read(p []byte) (int, error) {
	return d.body.Read(p)
}

// closes the stream and destroys the artifact. safe to call more than once
func (d *Download) Close() error {
	var err error

	d.once.Do(func() {
		err = d.body.Close()
		d.State = StateDeleted
		d.store.destroy(d.ctx, d.Artifact, "delivered")
	})

	return err
}
