package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/dvloznov/statement-reconciler/internal/api/handlers"
	"github.com/dvloznov/statement-reconciler/internal/api/middleware"
	"github.com/dvloznov/statement-reconciler/internal/classify"
	"github.com/dvloznov/statement-reconciler/internal/config"
	"github.com/dvloznov/statement-reconciler/internal/jobs"
	"github.com/dvloznov/statement-reconciler/internal/jobs/inmemory"
	"github.com/dvloznov/statement-reconciler/internal/logger"
	"github.com/dvloznov/statement-reconciler/internal/provenance"
	"github.com/dvloznov/statement-reconciler/internal/reconcile"
	"github.com/dvloznov/statement-reconciler/internal/storage"
	"github.com/dvloznov/statement-reconciler/internal/store"
	bqstore "github.com/dvloznov/statement-reconciler/internal/store/bigquery"
	memstore "github.com/dvloznov/statement-reconciler/internal/store/memory"
)

func main() {
	cfg := config.Load()
	log := logger.NewWithLevel(cfg.LogLevel)

	ctx := context.Background()

	// Ledger store: BigQuery when a project is configured, in-memory for
	// local runs.
	var (
		txStore  store.TransactionStore
		docStore store.DocumentStore
		lister   classify.CategoryLister
	)
	if cfg.ProjectID != "" {
		bq, err := bqstore.NewStore(ctx, cfg.ProjectID, cfg.DatasetID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery store")
		}
		defer bq.Close()
		txStore, docStore, lister = bq, bq, bq
	} else {
		log.Warn().Msg("No BQ_PROJECT_ID configured - using in-memory store")
		mem := memstore.NewStore()
		txStore, docStore, lister = mem, mem, mem
	}

	var fileStore storage.FileStore
	if cfg.Bucket != "" {
		fileStore = storage.NewGCSFileStore(cfg.Bucket)
	} else {
		log.Warn().Msg("No GCS_BUCKET configured - parser temp files will not be cleaned up remotely")
		fileStore = storage.NewMemoryFileStore()
	}

	prov := provenance.NewService(docStore, fileStore, log)

	rules := classify.NewKeywordRuleEngine(classify.DefaultRules())
	classifier := classify.NewGeminiClassifier(cfg.ClassifierModel, lister)

	// Background categorization infrastructure.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 2, jobStore)

	limiter := rate.NewLimiter(rate.Limit(cfg.CategoryUpdatesPerSecond), 1)
	categorizer := jobs.NewCategorizer(classifier, txStore, jobStore, jobQueue, limiter, log)
	// Parser temp files held for a background batch are released once the
	// job settles, whether it completed or gave up.
	jobQueue.OnJobDone(func(ctx context.Context, job *jobs.CategorizationJob) {
		if job.DocumentID != "" {
			prov.Release(ctx, job.DocumentID)
		}
	})

	coordinator := reconcile.NewCoordinator(txStore, rules, classifier, categorizer, reconcile.Options{
		CurrencyEpsilon:          cfg.CurrencyEpsilon,
		MinorDiscrepancyMax:      cfg.MinorDiscrepancyMax,
		BackgroundThreshold:      cfg.BackgroundThreshold,
		DedupWindowPad:           cfg.DedupWindowPad,
		MinYear:                  cfg.MinYear,
		MaxYear:                  cfg.MaxYear,
		CategoryUpdatesPerSecond: cfg.CategoryUpdatesPerSecond,
	}, log)

	// Start worker in background to process categorization jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	go func() {
		log.Info().Msg("Starting categorization worker")
		if err := jobQueue.Start(workerCtx, categorizer.Run); err != nil {
			log.Error().Err(err).Msg("Categorization worker stopped with error")
		}
	}()

	// Initialize handlers
	importsHandler := handlers.NewImportsHandler(coordinator, prov)
	jobsHandler := handlers.NewJobsHandler(jobStore)
	healthHandler := &handlers.HealthHandler{}

	// Create router
	mux := http.NewServeMux()

	mux.Handle("/api/imports", middleware.UserID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			importsHandler.Import(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})))

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/healthz", healthHandler.Health)

	// Apply middleware. RequestID runs outside Logger so the request-scoped
	// logger picks the id up.
	handler := middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
