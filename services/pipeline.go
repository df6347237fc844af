package services

import (
	"context"
	"errors"
	"fmt"

	"margarita-listings/config"
	"margarita-listings/gazetteer"
	"margarita-listings/models"
	"margarita-listings/utils"
)

// ProgressStage is one of the fixed stages reported while a batch runs.
type ProgressStage string

const (
	ProgressScraping   ProgressStage = "scraping"
	ProgressExtracting ProgressStage = "extracting"
	ProgressGeocoding  ProgressStage = "geocoding"
	ProgressAnalyzing  ProgressStage = "analyzing"
	ProgressComplete   ProgressStage = "complete"
	ProgressError      ProgressStage = "error"
)

// Progress is a single observation of a running batch.
type Progress struct {
	Stage      ProgressStage
	Percent    int
	Discovered int
}

// ProgressFunc receives progress updates. It must not block.
type ProgressFunc func(Progress)

// RecordSource produces raw records, e.g. a scraper or a file.
type RecordSource interface {
	Fetch(ctx context.Context) ([]*models.RawRecord, error)
}

// BatchResult summarises one pipeline run. Corpus is the reconciled corpus
// with every entry carrying valid island coordinates.
type BatchResult struct {
	Corpus    []*models.Listing
	Zones     []models.Zone
	Estimates map[string]*models.PriceEstimate

	Received        int
	Malformed       int
	Duplicates      int
	Candidates      int
	BatchDuplicates int
	Rejections      map[string]int
	Tiers           map[Tier]int
	Reconcile       ReconcileStats
	Repaired        int
	Discarded       int
	Errors          []error
}

// Rejected is the total number of records rejected by any stage.
func (r *BatchResult) Rejected() int {
	n := 0
	for _, c := range r.Rejections {
		n += c
	}
	return n
}

// Pipeline sequences cleaning, extraction, deduplication, coordinate
// resolution and analytics over a batch.
type Pipeline struct {
	cleaner   *Cleaner
	extractor *Extractor
	resolver  *Resolver
	dedup     *Deduplicator
	zones     *ZoneAnalyzer
	estimator *PriceEstimator
	logger    *utils.Logger
}

// NewPipeline wires the pipeline stages. geocoder may be nil.
func NewPipeline(gaz *gazetteer.Gazetteer, geocoder Geocoder, policy config.UnknownZonePolicy,
	tuning config.Tuning, logger *utils.Logger) *Pipeline {
	return &Pipeline{
		cleaner:   NewCleaner(logger),
		extractor: NewExtractor(gaz, logger),
		resolver:  NewResolver(gaz, geocoder, policy, tuning.Resolver, logger),
		dedup:     NewDeduplicator(tuning.Dedup, logger),
		zones:     NewZoneAnalyzer(tuning.Zones, logger),
		estimator: NewPriceEstimator(tuning.Estimator, logger),
		logger:    logger,
	}
}

// RunSource fetches records from src and runs them through the pipeline.
func (p *Pipeline) RunSource(ctx context.Context, src RecordSource, corpus []*models.Listing,
	progress ProgressFunc) (*BatchResult, error) {
	emit(progress, ProgressScraping, 0, 0)
	records, err := src.Fetch(ctx)
	if err != nil {
		emit(progress, ProgressError, 0, 0)
		return nil, fmt.Errorf("pipeline: fetch records: %w", err)
	}
	emit(progress, ProgressScraping, 100, len(records))
	return p.Run(ctx, records, corpus, progress)
}

// Run processes records against corpus. One bad record never aborts the
// batch: rejections are counted and failures land in BatchResult.Errors.
// Only cancellation of ctx stops a run early.
func (p *Pipeline) Run(ctx context.Context, records []*models.RawRecord, corpus []*models.Listing,
	progress ProgressFunc) (*BatchResult, error) {
	result := &BatchResult{
		Received:   len(records),
		Rejections: make(map[string]int),
		Tiers:      make(map[Tier]int),
	}

	emit(progress, ProgressExtracting, 0, 0)
	cleaned, cstats := p.cleaner.Clean(records)
	result.Malformed = cstats.Malformed
	result.Duplicates = cstats.Duplicates
	result.Rejections[StageMalformed] += cstats.Malformed

	var candidates []*models.Listing
	for i, rec := range cleaned {
		l, rej, err := p.extractOne(i, rec)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, err)
		case rej != nil:
			result.Rejections[rej.Stage]++
		default:
			candidates = append(candidates, l)
		}
		emit(progress, ProgressExtracting, percent(i+1, len(cleaned)), len(candidates))
	}
	result.Candidates = len(candidates)

	unique := p.dedup.DedupeBatch(candidates)
	result.BatchDuplicates = len(candidates) - len(unique)

	emit(progress, ProgressGeocoding, 0, len(unique))
	located := make([]*models.Listing, 0, len(unique))
	for i, l := range unique {
		if err := ctx.Err(); err != nil {
			emit(progress, ProgressError, percent(i, len(unique)), len(located))
			return result, fmt.Errorf("pipeline: geocoding: %w", err)
		}
		ok, err := p.locate(ctx, l, l.Address, result)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, err)
		case ok:
			located = append(located, l)
		default:
			result.Rejections[StageLocation]++
		}
		emit(progress, ProgressGeocoding, percent(i+1, len(unique)), len(located))
	}

	emit(progress, ProgressAnalyzing, 0, len(located))
	corpus, result.Reconcile = p.dedup.ReconcileAll(corpus, located)
	result.Corpus = p.repair(ctx, corpus, result)
	emit(progress, ProgressAnalyzing, 40, len(result.Corpus))

	result.Zones = p.zones.Analyze(result.Corpus)
	emit(progress, ProgressAnalyzing, 70, len(result.Corpus))
	result.Estimates = p.estimator.EstimateAll(result.Corpus)

	p.logger.Info("[pipeline] Batch done: %d received, %d candidates, %d rejected, %d inserted, %d errors",
		result.Received, result.Candidates, result.Rejected(), result.Reconcile.Inserted, len(result.Errors))
	emit(progress, ProgressComplete, 100, result.Reconcile.Inserted)
	return result, nil
}

func (p *Pipeline) extractOne(i int, rec *models.RawRecord) (l *models.Listing, rej *Rejection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline: extract record %d: panic: %v", i, r)
			l, rej = nil, nil
		}
	}()
	l, rej = p.extractor.FromRecord(rec)
	return l, rej, nil
}

// locate attaches resolved coordinates to l. It reports false without an
// error when the zone is unknown under the reject policy.
func (p *Pipeline) locate(ctx context.Context, l *models.Listing, address string, result *BatchResult) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline: resolve %s: panic: %v", l.ID, r)
			ok = false
		}
	}()

	res, err := p.resolver.Resolve(ctx, l.Coords, l.Zone, address)
	if errors.Is(err, ErrUnresolvedZone) {
		p.logger.Debug("[pipeline] %s rejected: zone %q not in gazetteer", l.ID, l.Zone)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pipeline: resolve %s: %w", l.ID, err)
	}

	coords := res.Coords
	l.Coords = &coords
	if res.Zone != "" {
		l.Zone = res.Zone
	}
	result.Tiers[res.Tier]++
	return true, nil
}

// repair gives corpus entries without valid coordinates a gazetteer or
// fallback point. Entries that cannot be placed are dropped from the corpus
// so they never reach the analytics.
func (p *Pipeline) repair(ctx context.Context, corpus []*models.Listing, result *BatchResult) []*models.Listing {
	kept := corpus[:0:0]
	for _, l := range corpus {
		if p.resolver.gaz.IsValid(l.Coords) {
			kept = append(kept, l)
			continue
		}
		ok, err := p.locate(ctx, l, "", result)
		if err != nil {
			result.Errors = append(result.Errors, err)
		}
		if !ok {
			result.Discarded++
			p.logger.Warn("[pipeline] Dropping corpus entry %s without a usable location", l.ID)
			continue
		}
		result.Repaired++
		kept = append(kept, l)
	}
	if result.Repaired > 0 {
		p.logger.Info("[pipeline] Repaired coordinates of %d corpus entries", result.Repaired)
	}
	return kept
}

func emit(fn ProgressFunc, stage ProgressStage, pct, discovered int) {
	if fn != nil {
		fn(Progress{Stage: stage, Percent: pct, Discovered: discovered})
	}
}

func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return done * 100 / total
}
