package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"caselore/internal/api/handlers"
	mw "caselore/internal/api/middleware"
	"caselore/internal/config"
	"caselore/internal/domain"
	"caselore/internal/embedding"
	"caselore/internal/service"
	"caselore/internal/store"
	"caselore/internal/tier"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router  *chi.Mux
	Queue   *service.InvestigationQueue
	Sweeper *service.SweeperService

	cache        *tier.ResultCache
	vault        *tier.ColdVault
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, policy config.Policy, logger *zap.Logger) (*App, error) {
	// Stores
	entityStore := store.NewEntityStore(db)
	relationshipStore := store.NewRelationshipStore(db)
	contradictionStore := store.NewContradictionStore(db)
	patternStore := store.NewPatternStore(db)
	timelineStore := store.NewTimelineStore(db)
	investigationStore := store.NewInvestigationStore(db)
	discoveryStore := store.NewDiscoveryStore(db)
	corpusStore := store.NewCorpusStore(db)
	versionStore := store.NewVersionStore(db)

	// Embedding client via provider factory; absence disables the vector
	// tier rather than failing startup.
	var embeddingClient domain.EmbeddingClient
	if provider := config.EmbeddingProvider(); provider == "" {
		logger.Info("no embedding provider configured, vector tier disabled")
	} else {
		client, err := embedding.NewClient(provider, config.OpenAIAPIKey())
		if err != nil {
			logger.Warn("embedding client initialization failed",
				zap.String("provider", provider), zap.Error(err))
		} else {
			logger.Info("embedding client initialized", zap.String("provider", provider))
			embeddingClient = client
		}
	}

	// Tier sidecar state under the data dir
	dataDir := config.DataDir()
	pinned, err := tier.NewPinnedStore(filepath.Join(dataDir, "pinned"), policy.PinnedCapacity, logger)
	if err != nil {
		return nil, err
	}
	cache, err := tier.NewResultCache(filepath.Join(dataDir, "cache"), policy.CacheTTL, policy.TokenPricePerMillion, logger)
	if err != nil {
		return nil, err
	}
	vault, err := tier.NewColdVault(filepath.Join(dataDir, "vault"), config.VaultKeyPath(), logger)
	if err != nil {
		return nil, err
	}
	graphTier := tier.NewGraphTier(entityStore, contradictionStore, timelineStore, logger)

	// Services
	queue := service.NewInvestigationQueue(investigationStore, policy, logger)
	graphSvc := service.NewKnowledgeGraphService(
		entityStore, relationshipStore, contradictionStore, patternStore,
		timelineStore, discoveryStore, versionStore, queue, policy, logger)

	providers := map[domain.Tier]service.TierProvider{
		domain.TierPinned: func() (domain.TierManager, error) { return pinned, nil },
		domain.TierGraph:  func() (domain.TierManager, error) { return graphTier, nil },
		domain.TierCache:  func() (domain.TierManager, error) { return cache, nil },
		domain.TierVault:  func() (domain.TierManager, error) { return vault, nil },
		domain.TierVector: func() (domain.TierManager, error) {
			return tier.NewVectorIndex(corpusStore, embeddingClient, logger)
		},
	}
	coordinator := service.NewMemoryCoordinator(providers, cache, policy, logger)
	sweeper := service.NewSweeperService(queue, cache, policy, logger)

	// Handlers
	memoryHandler := handlers.NewMemoryHandler(coordinator)
	graphHandler := handlers.NewGraphHandler(graphSvc)
	investigationHandler := handlers.NewInvestigationHandler(queue, investigationStore)
	vaultHandler := handlers.NewVaultHandler(vault)
	cacheHandler := handlers.NewCacheHandler(cache)
	statusHandler := handlers.NewStatusHandler(graphSvc, queue, coordinator, investigationStore)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Queue:     queue,
		Sweeper:   sweeper,
		cache:     cache,
		vault:     vault,
		startTime: time.Now(),
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Metrics(&app.requestCount, &app.errorCount))
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health
	r.Get("/healthz", healthHandler(db))

	// Process metrics
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		// Memory hierarchy
		r.Post("/ingest", memoryHandler.Ingest)
		r.Post("/query", memoryHandler.Query)
		r.Route("/memory", func(r chi.Router) {
			r.Get("/metrics", memoryHandler.Metrics)
			r.Get("/tiers", memoryHandler.TierStatuses)
		})

		// Knowledge graph
		r.Route("/graph", func(r chi.Router) {
			r.Post("/entities", graphHandler.AddEntity)
			r.Post("/relationships", graphHandler.AddRelationship)
			r.Post("/contradictions", graphHandler.AddContradiction)
			r.Post("/patterns", graphHandler.AddPattern)
			r.Post("/events", graphHandler.AddTimelineEvent)

			r.Get("/context", graphHandler.TopicContext)
			r.Get("/contradictions", graphHandler.Contradictions)
			r.Get("/timeline", graphHandler.Timeline)
			r.Get("/suspicious", graphHandler.Suspicious)
			r.Get("/discoveries", graphHandler.Discoveries)
			r.Get("/network/{id}", graphHandler.Network)
			r.Get("/patterns/{id}/history", graphHandler.PatternHistory)
		})

		// Investigation queue
		r.Route("/investigations", func(r chi.Router) {
			r.Get("/", investigationHandler.List)
			r.Post("/", investigationHandler.Spawn)
			r.Post("/pop", investigationHandler.Pop)
			r.Get("/status", investigationHandler.QueueStatus)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", investigationHandler.GetByID)
				r.Post("/complete", investigationHandler.Complete)
				r.Get("/children", investigationHandler.Children)
			})
		})

		// Cold vault
		r.Route("/vault", func(r chi.Router) {
			r.Post("/retrieve", vaultHandler.Retrieve)
			r.Post("/verify", vaultHandler.Verify)
			r.Get("/{docID}/audit", vaultHandler.AuditTrail)
		})

		// Result cache
		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", cacheHandler.Stats)
			r.Post("/purge", cacheHandler.Purge)
		})

		// Combined status
		r.Get("/status", statusHandler.Status)
	})

	return app, nil
}

// Close releases the tier sidecar stores. Call after the HTTP server and
// sweeper have stopped.
func (app *App) Close() error {
	if err := app.cache.Close(); err != nil {
		return err
	}
	return app.vault.Close()
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.EntityStore        = (*store.EntityStore)(nil)
	_ domain.RelationshipStore  = (*store.RelationshipStore)(nil)
	_ domain.ContradictionStore = (*store.ContradictionStore)(nil)
	_ domain.PatternStore       = (*store.PatternStore)(nil)
	_ domain.TimelineStore      = (*store.TimelineStore)(nil)
	_ domain.InvestigationStore = (*store.InvestigationStore)(nil)
	_ domain.DiscoveryStore     = (*store.DiscoveryStore)(nil)
	_ domain.CorpusStore        = (*store.CorpusStore)(nil)
	_ domain.EmbeddingClient    = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient    = (*embedding.MockClient)(nil)
	_ domain.TierManager        = (*tier.PinnedStore)(nil)
	_ domain.TierManager        = (*tier.VectorIndex)(nil)
	_ domain.TierManager        = (*tier.GraphTier)(nil)
	_ domain.TierManager        = (*tier.ColdVault)(nil)
	_ domain.TierManager        = (*tier.ResultCache)(nil)
)
