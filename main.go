package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"margarita-listings/config"
	"margarita-listings/gazetteer"
	"margarita-listings/geocode"
	"margarita-listings/models"
	"margarita-listings/scraper/feed"
	"margarita-listings/services"
	"margarita-listings/storage"
	"margarita-listings/utils"
)

// rawTee saves every fetched batch to CSV before it is processed.
type rawTee struct {
	src    storage.RecordSource
	writer storage.RawRecordWriter
	path   string
	logger *utils.Logger
}

func (t *rawTee) Fetch(ctx context.Context) ([]*models.RawRecord, error) {
	records, err := t.src.Fetch(ctx)
	if len(records) > 0 {
		if werr := t.writer.WriteRaw(records); werr != nil {
			t.logger.Error("CSV write failed: %v", werr)
		} else {
			t.logger.Info("Raw records saved to %s", t.path)
		}
	}
	return records, err
}

func main() {
	cfg := config.Load()
	logger := utils.NewLoggerWithLevel(cfg.LogLevel)

	logger.Info("=== Margarita Listings pipeline starting ===")
	logger.Info("Config: feeds: %d | posts/feed: %d | concurrency: %d | rate: %dms | zone policy: %s",
		len(cfg.FeedURLs), cfg.PostsPerFeed, cfg.MaxConcurrency, cfg.RateLimitMs, cfg.UnknownZonePolicy)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	usage := utils.NewUsageCounter()

	csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
	if err != nil {
		logger.Error("Failed to create CSV writer: %v", err)
		os.Exit(1)
	}
	defer csvWriter.Close()

	var store storage.CorpusStore
	store, err = storage.NewPostgresStore(cfg.DSN())
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL: %v", err)
		logger.Error("Make sure Docker is running: docker compose up -d")
		os.Exit(1)
	}
	defer store.Close()

	corpus, err := store.FetchAll()
	if err != nil {
		logger.Error("Failed to load corpus: %v", err)
		os.Exit(1)
	}
	logger.Info("Loaded corpus: %d listings", len(corpus))

	var src storage.RecordSource
	if cfg.InputPath != "" {
		logger.Info("Reading records from %s", cfg.InputPath)
		src = storage.NewJSONRecordReader(cfg.InputPath)
	} else {
		src = feed.New(cfg, logger, usage)
	}

	var geocoder services.Geocoder
	if cfg.GeocoderEnabled {
		geocoder = geocode.NewNominatim(cfg, logger, usage)
	}

	pipeline := services.NewPipeline(gazetteer.Default(), geocoder, cfg.UnknownZonePolicy, cfg.Tuning, logger)

	var lastStage services.ProgressStage
	progress := func(p services.Progress) {
		if p.Stage != lastStage {
			logger.Info("[progress] %s (%d listings)", p.Stage, p.Discovered)
			lastStage = p.Stage
		}
		if logger.DebugEnabled() {
			logger.Debug("[progress] %s %d%% (%d listings)", p.Stage, p.Percent, p.Discovered)
		}
	}

	result, err := pipeline.RunSource(ctx, &rawTee{src: src, writer: csvWriter, path: cfg.CSVOutputPath, logger: logger},
		corpus, progress)
	if err != nil {
		logger.Error("Pipeline failed: %v", err)
		os.Exit(1)
	}
	for _, e := range result.Errors {
		logger.Warn("Record failed: %v", e)
	}

	if err := store.Save(result.Corpus); err != nil {
		logger.Error("PostgreSQL write failed: %v", err)
	} else {
		logger.Info("Corpus stored in PostgreSQL (table: listings)")
	}

	reports := services.NewReportService(logger)
	reports.Print(reports.Generate(result.Corpus, result.Zones, result.Estimates))

	for _, name := range usage.Names() {
		logger.Info("[usage] %s: %d", name, usage.Get(name))
	}

	fmt.Printf("  Done. %d received | %d rejected | %d new | %d merged | %d errors\n\n",
		result.Received, result.Rejected(), result.Reconcile.Inserted, result.Reconcile.Skipped, len(result.Errors))
}
