package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/dvloznov/statement-reconciler/internal/classify"
	"github.com/dvloznov/statement-reconciler/internal/config"
	"github.com/dvloznov/statement-reconciler/internal/domain"
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

func newImportCommand() *cobra.Command {
	var userID string
	var wait bool

	cmd := &cobra.Command{
		Use:   "import <parse-result.json>",
		Short: "Run one parsed statement batch through the reconciliation pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), args[0], userID, wait)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id owning the statement (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll any deferred categorization job until it settles")

	return cmd
}

func runImport(ctx context.Context, path, userID string, wait bool) error {
	cfg := config.Load()
	log := logger.NewWithLevel(cfg.LogLevel)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading parse result: %w", err)
	}
	var parse domain.ParseResult
	if err := json.Unmarshal(data, &parse); err != nil {
		return fmt.Errorf("decoding parse result: %w", err)
	}

	var (
		txStore  store.TransactionStore
		docStore store.DocumentStore
		lister   classify.CategoryLister
	)
	if cfg.ProjectID != "" {
		bq, err := bqstore.NewStore(ctx, cfg.ProjectID, cfg.DatasetID)
		if err != nil {
			return fmt.Errorf("creating BigQuery store: %w", err)
		}
		defer bq.Close()
		txStore, docStore, lister = bq, bq, bq
	} else {
		log.Warn().Msg("No BQ_PROJECT_ID configured - using in-memory store, nothing will persist")
		mem := memstore.NewStore()
		txStore, docStore, lister = mem, mem, mem
	}

	var fileStore storage.FileStore
	if cfg.Bucket != "" {
		fileStore = storage.NewGCSFileStore(cfg.Bucket)
	} else {
		fileStore = storage.NewMemoryFileStore()
	}
	prov := provenance.NewService(docStore, fileStore, log)

	rules := classify.NewKeywordRuleEngine(classify.DefaultRules())
	classifier := classify.NewGeminiClassifier(cfg.ClassifierModel, lister)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 1, jobStore)

	limiter := rate.NewLimiter(rate.Limit(cfg.CategoryUpdatesPerSecond), 1)
	categorizer := jobs.NewCategorizer(classifier, txStore, jobStore, jobQueue, limiter, log)
	jobQueue.OnJobDone(func(ctx context.Context, job *jobs.CategorizationJob) {
		if job.DocumentID != "" {
			prov.Release(ctx, job.DocumentID)
		}
	})

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	go func() {
		if err := jobQueue.Start(workerCtx, categorizer.Run); err != nil {
			log.Error().Err(err).Msg("Categorization worker stopped with error")
		}
	}()
	defer jobQueue.Close()

	coordinator := reconcile.NewCoordinator(txStore, rules, classifier, categorizer, reconcile.Options{
		CurrencyEpsilon:          cfg.CurrencyEpsilon,
		MinorDiscrepancyMax:      cfg.MinorDiscrepancyMax,
		BackgroundThreshold:      cfg.BackgroundThreshold,
		DedupWindowPad:           cfg.DedupWindowPad,
		MinYear:                  cfg.MinYear,
		MaxYear:                  cfg.MaxYear,
		CategoryUpdatesPerSecond: cfg.CategoryUpdatesPerSecond,
	}, log)

	doc, runID, err := prov.Open(ctx, userID, &parse)
	if err != nil {
		return fmt.Errorf("recording document: %w", err)
	}

	result, importErr := coordinator.Import(ctx, userID, parse.Transactions, parse.Metadata, doc.DocumentID)
	if result != nil && result.BackgroundCategorization != nil && result.BackgroundCategorization.Started {
		prov.Retain(doc.DocumentID)
	}
	prov.Finish(ctx, doc, runID, result, importErr)
	prov.Release(ctx, doc.DocumentID)
	if importErr != nil {
		return fmt.Errorf("import: %w", importErr)
	}

	if err := printJSON(result); err != nil {
		return err
	}

	if wait && result.BackgroundCategorization != nil && result.BackgroundCategorization.Started {
		poller := jobs.NewPoller(jobStore, cfg.PollInterval, cfg.PollAttempts)
		view, err := poller.Wait(ctx, result.BackgroundCategorization.JobID)
		if err != nil {
			return fmt.Errorf("waiting for categorization: %w", err)
		}
		if err := printJSON(view); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
