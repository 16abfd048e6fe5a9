package main

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/docforge/server/api/rest/artifacts"
	"codeberg.org/docforge/server/internal/admission"
	"codeberg.org/docforge/server/internal/artifact"
	"codeberg.org/docforge/server/internal/config"
	"codeberg.org/docforge/server/internal/counter"
	"codeberg.org/docforge/server/internal/invoker"
	"codeberg.org/docforge/server/internal/ledger"
	"codeberg.org/docforge/server/internal/logger"
	"codeberg.org/docforge/server/internal/pipeline"
	"codeberg.org/docforge/server/internal/progress"
	"github.com/gin-gonic/gin"
)

const maxMultipartMemory = 32 << 20

// creates and configures a new server instance with all dependencies
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	policies, err := cfg.Policies()
	if err != nil {
		return nil, err
	}

	s := &Server{config: cfg, policies: policies}

	if err := s.initStores(ctx); err != nil {
		s.Close()
		return nil, err
	}

	if err := s.initPipeline(ctx); err != nil {
		s.Close()
		return nil, err
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.MaxMultipartMemory = maxMultipartMemory
	s.router = router

	RegisterRoutes(router, s)

	return s, nil
}

// counter store and ledger. each falls back to memory when its URL is unset
func (s *Server) initStores(ctx context.Context) error {
	cfg := s.config

	if cfg.RedisURL != "" {
		rs, err := counter.NewRedisStoreFromURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to initialize counter store: %w", err)
		}

		s.counter = rs
		s.redis = rs.Client()
	} else {
		logger.Warn("REDIS_URL not set, using in-process counters (single instance only)")
		s.counter = counter.NewMemoryStore()
	}

	var store ledger.Store

	if cfg.DatabaseURL != "" {
		pool, err := ledger.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}

		s.db = pool

		pg := ledger.NewPostgresStore(pool, ledger.QuotaMode(cfg.QuotaMode))
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}

		if pg.Mode() == ledger.QuotaModeFallback {
			logger.Warn("quota increments use read-modify-write; concurrent requests may undercount")
		}

		store = pg
	} else {
		logger.Warn("DATABASE_URL not set, usage ledger is in memory and lost on restart")
		store = ledger.NewMemoryStore()
	}

	s.ledger = ledger.New(store)

	return nil
}

func (s *Server) initPipeline(ctx context.Context) error {
	cfg := s.config

	catalog, err := loadCatalog(cfg.OperationsFile)
	if err != nil {
		return err
	}

	s.catalog = catalog

	inv, err := invoker.New(cfg.WorkDir, cfg.ScriptsDir, cfg.InvokeTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize invoker: %w", err)
	}

	s.invoker = inv

	blobs, err := newBlobs(ctx, cfg)
	if err != nil {
		return err
	}

	var index artifact.Index = artifact.NewMemoryIndex()
	if s.redis != nil {
		index = artifact.NewRedisIndex(s.redis)
	} else if cfg.ArtifactBackend == "s3" {
		logger.Warn("artifact blobs are shared but the index is in memory; downloads only work on the packaging instance")
	}

	s.artifacts = artifact.NewStore(blobs, index, cfg.ArtifactTTL, "")

	// workspaces of staged results live as long as their artifact
	horizon := cfg.ArtifactTTL + cfg.InvokeTimeout + cfg.SweepInterval
	s.sweeper = artifact.NewSweeper(s.artifacts, inv, cfg.SweepInterval, horizon)

	s.admission = admission.NewController(s.counter, s.ledger, s.policies)
	s.orchestrator = pipeline.NewOrchestrator(catalog, s.admission, s.ledger, inv, s.artifacts)
	s.hub = progress.NewHub()

	s.downloads, err = artifacts.NewLimiter(cfg.DownloadRate, s.redis)
	if err != nil {
		return err
	}

	logger.Info("pipeline initialized",
		"operations", len(catalog.List()),
		"artifact_backend", cfg.ArtifactBackend,
		"artifact_ttl", cfg.ArtifactTTL,
		"work_dir", inv.WorkDir(),
	)

	return nil
}

func loadCatalog(path string) (*invoker.Catalog, error) {
	if path == "" {
		return invoker.NewCatalog(invoker.DefaultOperations())
	}

	catalog, err := invoker.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load operations file: %w", err)
	}

	return catalog, nil
}

func newBlobs(ctx context.Context, cfg *config.Config) (artifact.Blobs, error) {
	if cfg.ArtifactBackend != "s3" {
		blobs, err := artifact.NewLocalBlobs(cfg.ArtifactDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize artifact dir: %w", err)
		}

		return blobs, nil
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	blobs, err := artifact.NewS3BlobsFromOptions(initCtx, artifact.S3Options{
		Endpoint:  cfg.S3.Endpoint,
		Bucket:    cfg.S3.Bucket,
		Region:    cfg.S3.Region,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Prefix:    cfg.S3.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize s3 artifact storage: %w", err)
	}

	return blobs, nil
}

// releases store connections. safe on a partially built server
func (s *Server) Close() {
	if s.counter != nil {
		s.counter.Close() //nolint:errcheck,gosec // best-effort cleanup on shutdown
	}

	if s.db != nil {
		s.db.Close()
	}
}
