package services

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"margarita-listings/config"
	"margarita-listings/gazetteer"
	"margarita-listings/models"
)

type stubSource struct {
	records []*models.RawRecord
	err     error
}

func (s *stubSource) Fetch(_ context.Context) ([]*models.RawRecord, error) {
	return s.records, s.err
}

func newTestPipeline(policy config.UnknownZonePolicy) *Pipeline {
	p := NewPipeline(gazetteer.Default(), nil, policy, config.DefaultTuning(), newTestLogger())
	p.resolver.WithRand(rand.New(rand.NewSource(1)))
	return p
}

func batchRecords() []*models.RawRecord {
	posted := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rec := func(url, caption string) *models.RawRecord {
		return &models.RawRecord{Platform: "instagram", SourceURL: url, Caption: caption, PostedAt: posted}
	}
	return []*models.RawRecord{
		rec("https://example.com/p/1", "Casa en venta en Pampatar, 3 habitaciones, 2 baños, 150m2, piscina, precio $85.000 USD"),
		rec("https://example.com/p/2", "Se alquila apartamento en Porlamar $500/mes"),
		rec("https://example.com/p/3", "Casa en venta en Pampatar, 3 habitaciones, 2 baños, 150m2, piscina, precio $85.000 USD"),
		rec("https://example.com/p/4", "   "),
		rec("https://example.com/p/1", "Casa en venta en Pampatar, precio $90.000"),
		rec("https://example.com/p/6", "Apartamento en venta en Costa Azul, 2 habitaciones, 80m2, $60.000"),
		rec("https://example.com/p/7", "Terreno en venta en la isla, 1.000 m2, precio $30.000"),
	}
}

func TestPipelineRun(t *testing.T) {
	p := newTestPipeline(config.PolicyFallback)

	var events []Progress
	res, err := p.Run(context.Background(), batchRecords(), nil, func(pr Progress) { events = append(events, pr) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Received != 7 || res.Malformed != 1 || res.Duplicates != 1 {
		t.Errorf("ingestion counts: received %d malformed %d duplicates %d", res.Received, res.Malformed, res.Duplicates)
	}
	if res.Rejections[StageSaleIntent] != 1 {
		t.Errorf("sale-intent rejections: got %d, want 1", res.Rejections[StageSaleIntent])
	}
	if res.Candidates != 4 || res.BatchDuplicates != 1 {
		t.Errorf("candidates %d, batch duplicates %d; want 4 and 1", res.Candidates, res.BatchDuplicates)
	}
	if res.Reconcile.Inserted != 3 || len(res.Corpus) != 3 {
		t.Errorf("inserted %d, corpus %d; want 3 and 3", res.Reconcile.Inserted, len(res.Corpus))
	}
	if res.Tiers[TierGazetteer] != 2 || res.Tiers[TierFallback] != 1 {
		t.Errorf("tiers: got %v", res.Tiers)
	}
	if len(res.Errors) != 0 {
		t.Errorf("unexpected errors: %v", res.Errors)
	}

	g := gazetteer.Default()
	for _, l := range res.Corpus {
		if !g.IsValid(l.Coords) {
			t.Errorf("%s (%s) reached analytics without valid coordinates", l.ID, l.Zone)
		}
	}
	if len(res.Zones) != 3 {
		t.Errorf("zones: got %d, want 3", len(res.Zones))
	}
	if res.Estimates == nil {
		t.Error("estimates must be computed")
	}

	if len(events) == 0 {
		t.Fatal("no progress reported")
	}
	last := events[len(events)-1]
	if last.Stage != ProgressComplete || last.Percent != 100 || last.Discovered != 3 {
		t.Errorf("final progress: got %+v", last)
	}
	order := map[ProgressStage]int{ProgressExtracting: 1, ProgressGeocoding: 2, ProgressAnalyzing: 3, ProgressComplete: 4}
	prev := 0
	for _, ev := range events {
		if ev.Percent < 0 || ev.Percent > 100 {
			t.Errorf("percent out of range: %+v", ev)
		}
		if order[ev.Stage] < prev {
			t.Errorf("stage %s reported after a later stage", ev.Stage)
		}
		prev = order[ev.Stage]
	}
}

func TestPipelineRerunIsStable(t *testing.T) {
	p := newTestPipeline(config.PolicyFallback)

	first, err := p.Run(context.Background(), batchRecords(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Run(context.Background(), batchRecords(), first.Corpus, nil)
	if err != nil {
		t.Fatal(err)
	}
	if second.Reconcile.Inserted != 0 || len(second.Corpus) != len(first.Corpus) {
		t.Errorf("re-running a batch must not grow the corpus: inserted %d, corpus %d",
			second.Reconcile.Inserted, len(second.Corpus))
	}
}

func TestPipelineRepairsCorpus(t *testing.T) {
	corpus := func() []*models.Listing {
		return []*models.Listing{
			{ID: "missing", Zone: "Pampatar", Category: models.CategoryHouse},
			{ID: "offshore", Zone: "Caracas", Category: models.CategoryHouse, Coords: &models.Coordinates{}},
			{ID: "fine", Zone: "Porlamar", Category: models.CategoryHouse, Coords: &models.Coordinates{Lat: 10.96, Lng: -63.85}},
		}
	}

	res, err := newTestPipeline(config.PolicyFallback).Run(context.Background(), nil, corpus(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Corpus) != 3 || res.Repaired != 2 || res.Discarded != 0 {
		t.Errorf("fallback: corpus %d repaired %d discarded %d", len(res.Corpus), res.Repaired, res.Discarded)
	}

	res, err = newTestPipeline(config.PolicyReject).Run(context.Background(), nil, corpus(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Corpus) != 2 || res.Repaired != 1 || res.Discarded != 1 {
		t.Errorf("reject: corpus %d repaired %d discarded %d", len(res.Corpus), res.Repaired, res.Discarded)
	}
	if res.Rejected() != 0 {
		t.Errorf("discarded corpus entries must not count as rejected records: %+v", res.Rejections)
	}
	for _, l := range res.Corpus {
		if l.ID == "offshore" {
			t.Error("unplaceable entry must not reach analytics")
		}
	}
}

func TestPipelineRejectPolicyCountsLocation(t *testing.T) {
	p := newTestPipeline(config.PolicyReject)
	recs := []*models.RawRecord{{
		SourceURL: "https://example.com/p/9",
		Caption:   "Casa en venta $70.000",
		ZoneHint:  "Caracas",
	}}

	res, err := p.Run(context.Background(), recs, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	// the caption names no zone and the hint is unknown, so it lands island-wide
	if res.Rejections[StageLocation] != 0 || len(res.Corpus) != 1 {
		t.Errorf("island-wide listing should survive reject policy: %+v", res.Rejections)
	}
}

func TestPipelineCancelled(t *testing.T) {
	p := newTestPipeline(config.PolicyFallback)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var lastStage ProgressStage
	_, err := p.Run(ctx, batchRecords(), nil, func(pr Progress) { lastStage = pr.Stage })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if lastStage != ProgressError {
		t.Errorf("last stage: got %s, want error", lastStage)
	}
}

func TestPipelineRunSource(t *testing.T) {
	p := newTestPipeline(config.PolicyFallback)

	var stages []ProgressStage
	res, err := p.RunSource(context.Background(), &stubSource{records: batchRecords()}, nil,
		func(pr Progress) { stages = append(stages, pr.Stage) })
	if err != nil {
		t.Fatal(err)
	}
	if stages[0] != ProgressScraping || len(res.Corpus) != 3 {
		t.Errorf("first stage %s, corpus %d", stages[0], len(res.Corpus))
	}

	stages = nil
	_, err = p.RunSource(context.Background(), &stubSource{err: errors.New("feed down")}, nil,
		func(pr Progress) { stages = append(stages, pr.Stage) })
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if stages[len(stages)-1] != ProgressError {
		t.Errorf("last stage: got %s, want error", stages[len(stages)-1])
	}
}

func TestExtractOneRecoversPanic(t *testing.T) {
	p := newTestPipeline(config.PolicyFallback)
	l, rej, err := p.extractOne(3, nil)
	if err == nil || l != nil || rej != nil {
		t.Errorf("expected recovered panic as error, got %v / %v / %v", l, rej, err)
	}
}
