package main

import (
	"codeberg.org/docforge/server/internal/admission"
	"codeberg.org/docforge/server/internal/artifact"
	"codeberg.org/docforge/server/internal/config"
	"codeberg.org/docforge/server/internal/counter"
	"codeberg.org/docforge/server/internal/invoker"
	"codeberg.org/docforge/server/internal/ledger"
	"codeberg.org/docforge/server/internal/pipeline"
	"codeberg.org/docforge/server/internal/progress"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
)

// holds all dependencies and state for the API server
type Server struct {
	config   *config.Config
	policies *config.Policies

	// nil when running without redis or postgres
	redis *redis.Client
	db    *pgxpool.Pool

	counter      counter.Store
	ledger       *ledger.Ledger
	admission    *admission.Controller
	catalog      *invoker.Catalog
	invoker      *invoker.Invoker
	artifacts    *artifact.Store
	sweeper      *artifact.Sweeper
	orchestrator *pipeline.Orchestrator
	hub          *progress.Hub
	downloads    *limiter.Limiter
	router       *gin.Engine
}
