package services

import (
	"fmt"
	"math"
	"testing"

	"margarita-listings/config"
	"margarita-listings/models"
	"margarita-listings/utils"
)

func newTestEstimator() *PriceEstimator {
	return NewPriceEstimator(config.DefaultTuning().Estimator, utils.NewDiscardLogger())
}

func property(id, zone string, cat models.Category, price, area float64, beds, baths int) *models.Listing {
	l := &models.Listing{ID: id, Zone: zone, Category: cat}
	if price > 0 {
		l.PriceUSD = models.Float(price)
	}
	if area > 0 {
		l.AreaM2 = models.Float(area)
	}
	if beds > 0 {
		l.Bedrooms = models.Int(beds)
	}
	if baths > 0 {
		l.Bathrooms = models.Int(baths)
	}
	return l
}

func TestSimilarity(t *testing.T) {
	e := newTestEstimator()
	base := property("a", "Pampatar", models.CategoryHouse, 0, 150, 3, 2)

	tests := []struct {
		name  string
		other *models.Listing
		want  float64
	}{
		{"identical", property("b", "pampatar", models.CategoryHouse, 90000, 150, 3, 2), 1.0},
		{"bedroom off by one", property("b", "Pampatar", models.CategoryHouse, 0, 150, 4, 2), 0.925},
		{"bedroom off by two", property("b", "Pampatar", models.CategoryHouse, 0, 150, 5, 2), 0.85},
		{"half the area", property("b", "Pampatar", models.CategoryHouse, 0, 300, 3, 2), 0.9},
		{"other zone and category", property("b", "Porlamar", models.CategoryLand, 0, 150, 3, 2), 0.45},
		{"only category and zone known", property("b", "Pampatar", models.CategoryHouse, 0, 0, 0, 0), 1.0},
		{"only category known, differs", property("b", "", models.CategoryLand, 0, 0, 0, 0), 0},
	}

	for _, tt := range tests {
		if got := e.Similarity(base, tt.other); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: Similarity = %.4f; want %.4f", tt.name, got, tt.want)
		}
	}
}

func TestSimilarityIdenticalIsExactlyOne(t *testing.T) {
	e := newTestEstimator()
	a := property("a", "El Yaque", models.CategoryApartment, 70000, 85, 2, 1)
	b := property("b", "El Yaque", models.CategoryApartment, 72000, 85, 2, 1)
	if got := e.Similarity(a, b); got != 1.0 {
		t.Errorf("Similarity(identical) = %v; want 1.0", got)
	}
}

func estimatorCorpus() []*models.Listing {
	return []*models.Listing{
		property("target", "Pampatar", models.CategoryHouse, 80000, 150, 3, 2),
		property("twin", "Pampatar", models.CategoryHouse, 100000, 150, 3, 2),
		property("bigger", "Pampatar", models.CategoryHouse, 120000, 150, 4, 2),
		property("far", "Porlamar", models.CategoryApartment, 60000, 0, 1, 0),
		property("unpriced", "Pampatar", models.CategoryHouse, 0, 150, 3, 2),
	}
}

func TestEstimate(t *testing.T) {
	e := newTestEstimator()
	corpus := estimatorCorpus()

	est := e.Estimate(corpus[0], corpus)
	if est == nil {
		t.Fatal("expected an estimate")
	}
	if est.ListingID != "target" || est.Comparables != 2 {
		t.Errorf("got listing %q with %d comparables; want target with 2", est.ListingID, est.Comparables)
	}

	// (1.0*100000 + 0.925*120000) / 1.925
	if math.Abs(est.EstimatedPrice-109610.39) > 0.01 {
		t.Errorf("EstimatedPrice = %.2f; want 109610.39", est.EstimatedPrice)
	}
	if math.Abs(est.EstimatedPricePerM2-730.74) > 0.01 {
		t.Errorf("EstimatedPricePerM2 = %.2f; want 730.74", est.EstimatedPricePerM2)
	}
	// 0.5 * 2/10 + 0.5 * (1 + 0.925)/2
	if est.Confidence != 58 {
		t.Errorf("Confidence = %d; want 58", est.Confidence)
	}
	if est.ZoneAvgPrice != 110000 {
		t.Errorf("ZoneAvgPrice = %.2f; want 110000", est.ZoneAvgPrice)
	}
	if math.Abs(est.ZoneAvgPricePerM2-733.33) > 0.01 {
		t.Errorf("ZoneAvgPricePerM2 = %.2f; want 733.33", est.ZoneAvgPricePerM2)
	}
	if est.Fairness != models.FairnessBelowMarket {
		t.Errorf("Fairness = %s; want below-market", est.Fairness)
	}
}

func TestEstimateFairnessBands(t *testing.T) {
	e := newTestEstimator()
	comp := property("comp", "Pampatar", models.CategoryHouse, 100000, 150, 3, 2)

	tests := []struct {
		price float64
		want  models.Fairness
	}{
		{85000, models.FairnessBelowMarket},
		{90000, models.FairnessBelowMarket},
		{100000, models.FairnessFair},
		{109999, models.FairnessFair},
		{110000, models.FairnessAboveMarket},
		{0, models.FairnessFair},
	}

	for _, tt := range tests {
		l := property("l", "Pampatar", models.CategoryHouse, tt.price, 150, 3, 2)
		est := e.Estimate(l, []*models.Listing{l, comp})
		if est == nil {
			t.Fatalf("price %.0f: expected an estimate", tt.price)
		}
		if est.Fairness != tt.want {
			t.Errorf("price %.0f: Fairness = %s; want %s", tt.price, est.Fairness, tt.want)
		}
	}
}

func TestEstimateNone(t *testing.T) {
	e := newTestEstimator()
	corpus := estimatorCorpus()

	noZone := property("nz", "", models.CategoryHouse, 80000, 150, 3, 2)
	if est := e.Estimate(noZone, corpus); est != nil {
		t.Errorf("listing without zone should not be estimated, got %+v", est)
	}

	alone := property("alone", "Macanao", models.CategoryLand, 20000, 5000, 0, 0)
	if est := e.Estimate(alone, []*models.Listing{alone}); est != nil {
		t.Errorf("a listing cannot be its own comparable, got %+v", est)
	}

	unpricedOnly := []*models.Listing{
		property("x", "Pampatar", models.CategoryHouse, 0, 150, 3, 2),
		property("y", "Pampatar", models.CategoryHouse, 0, 150, 3, 2),
	}
	if est := e.Estimate(unpricedOnly[0], unpricedOnly); est != nil {
		t.Errorf("unpriced neighbours are not comparables, got %+v", est)
	}
}

func TestEstimateCapsComparables(t *testing.T) {
	e := newTestEstimator()
	target := property("t", "Porlamar", models.CategoryApartment, 50000, 80, 2, 1)
	corpus := []*models.Listing{target}
	for i := 0; i < 15; i++ {
		corpus = append(corpus, property(fmt.Sprintf("c%d", i), "Porlamar", models.CategoryApartment, 50000, 80, 2, 1))
	}

	est := e.Estimate(target, corpus)
	if est == nil {
		t.Fatal("expected an estimate")
	}
	if est.Comparables != 10 {
		t.Errorf("Comparables = %d; want 10", est.Comparables)
	}
	if est.Confidence != 100 {
		t.Errorf("Confidence = %d; want 100", est.Confidence)
	}
	if est.EstimatedPrice != 50000 || est.Fairness != models.FairnessFair {
		t.Errorf("got %.2f / %s", est.EstimatedPrice, est.Fairness)
	}
}

func TestEstimateAll(t *testing.T) {
	e := newTestEstimator()
	corpus := estimatorCorpus()

	all := e.EstimateAll(corpus)
	if _, ok := all["target"]; !ok {
		t.Error("target should be estimated")
	}
	if _, ok := all["unpriced"]; !ok {
		t.Error("unpriced listings still receive an estimate")
	}
	if est := all["unpriced"]; est != nil && est.Fairness != models.FairnessFair {
		t.Errorf("unpriced listing fairness = %s; want fair", est.Fairness)
	}
}
