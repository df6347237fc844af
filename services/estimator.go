package services

import (
	"math"
	"sort"

	"margarita-listings/config"
	"margarita-listings/models"
	"margarita-listings/utils"
)

// PriceEstimator derives fair-price estimates from comparable listings.
type PriceEstimator struct {
	tuning config.EstimatorTuning
	logger *utils.Logger
}

// NewPriceEstimator creates a PriceEstimator.
func NewPriceEstimator(tuning config.EstimatorTuning, logger *utils.Logger) *PriceEstimator {
	return &PriceEstimator{tuning: tuning, logger: logger}
}

type match struct {
	listing    *models.Listing
	similarity float64
}

// Similarity scores two listings in [0, 1]. Attributes missing on either side
// drop out of both the score and the normalising weight.
func (e *PriceEstimator) Similarity(a, b *models.Listing) float64 {
	w := e.tuning.Weights
	var score, total float64

	if a.Category != "" && b.Category != "" {
		total += w.Category
		if a.Category == b.Category {
			score += w.Category
		}
	}
	if a.ZoneKey() != "" && b.ZoneKey() != "" {
		total += w.Zone
		if a.ZoneKey() == b.ZoneKey() {
			score += w.Zone
		}
	}
	if a.AreaM2 != nil && b.AreaM2 != nil {
		total += w.Area
		if hi := math.Max(*a.AreaM2, *b.AreaM2); hi > 0 {
			score += w.Area * math.Max(0, 1-math.Abs(*a.AreaM2-*b.AreaM2)/hi)
		}
	}
	if a.Bedrooms != nil && b.Bedrooms != nil {
		total += w.Bedrooms
		switch d := *a.Bedrooms - *b.Bedrooms; {
		case d == 0:
			score += w.Bedrooms
		case d == 1 || d == -1:
			score += w.Bedrooms / 2
		}
	}
	if a.Bathrooms != nil && b.Bathrooms != nil {
		total += w.Bathrooms
		if *a.Bathrooms == *b.Bathrooms {
			score += w.Bathrooms
		}
	}

	if total == 0 {
		return 0
	}
	return score / total
}

// comparables returns the most similar priced listings other than l, best
// first. Ties keep corpus order.
func (e *PriceEstimator) comparables(l *models.Listing, corpus []*models.Listing) []match {
	var out []match
	for _, c := range corpus {
		if c == l || (c.ID != "" && c.ID == l.ID) || !c.HasPrice() {
			continue
		}
		if sim := e.Similarity(l, c); sim >= e.tuning.MinSimilarity {
			out = append(out, match{listing: c, similarity: sim})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].similarity > out[j].similarity })
	if len(out) > e.tuning.MaxComparables {
		out = out[:e.tuning.MaxComparables]
	}
	return out
}

// Estimate prices l against the corpus. It returns nil when l lacks a
// category or zone, or when no priced comparable qualifies.
func (e *PriceEstimator) Estimate(l *models.Listing, corpus []*models.Listing) *models.PriceEstimate {
	if l.Category == "" || l.ZoneKey() == "" {
		return nil
	}
	comps := e.comparables(l, corpus)
	if len(comps) == 0 {
		return nil
	}

	var weight, priceSum, simSum float64
	var ppm2Weight, ppm2Sum float64
	for _, c := range comps {
		weight += c.similarity
		priceSum += c.similarity * *c.listing.PriceUSD
		simSum += c.similarity
		if ppm2, ok := c.listing.PricePerSquareMeter(); ok {
			ppm2Weight += c.similarity
			ppm2Sum += c.similarity * ppm2
		}
	}
	if weight == 0 {
		return nil
	}

	est := &models.PriceEstimate{
		ListingID:      l.ID,
		EstimatedPrice: round2(priceSum / weight),
		Comparables:    len(comps),
		Fairness:       models.FairnessFair,
	}
	if ppm2Weight > 0 {
		est.EstimatedPricePerM2 = round2(ppm2Sum / ppm2Weight)
	}

	n := float64(len(comps))
	coverage := math.Min(1, n/float64(e.tuning.MaxComparables))
	est.Confidence = int(math.Round((0.5*coverage + 0.5*simSum/n) * 100))

	est.ZoneAvgPrice, est.ZoneAvgPricePerM2 = zoneAverages(l, corpus)

	if l.HasPrice() && est.EstimatedPrice > 0 {
		est.PriceRatio = round2(*l.PriceUSD / est.EstimatedPrice)
		switch ratio := *l.PriceUSD / est.EstimatedPrice; {
		case ratio <= e.tuning.BelowMarketRatio:
			est.Fairness = models.FairnessBelowMarket
		case ratio >= e.tuning.AboveMarketRatio:
			est.Fairness = models.FairnessAboveMarket
		}
	}
	return est
}

// zoneAverages are plain means over other same-zone listings.
func zoneAverages(l *models.Listing, corpus []*models.Listing) (avgPrice, avgPPM2 float64) {
	var priceSum, ppm2Sum float64
	var priced, withPPM2 int
	for _, c := range corpus {
		if c == l || (c.ID != "" && c.ID == l.ID) || c.ZoneKey() != l.ZoneKey() {
			continue
		}
		if c.HasPrice() {
			priceSum += *c.PriceUSD
			priced++
		}
		if ppm2, ok := c.PricePerSquareMeter(); ok {
			ppm2Sum += ppm2
			withPPM2++
		}
	}
	return round2(mean(priceSum, priced)), round2(mean(ppm2Sum, withPPM2))
}

// EstimateAll estimates every listing in the corpus, keyed by listing ID.
// Listings without an estimate are absent from the map.
func (e *PriceEstimator) EstimateAll(corpus []*models.Listing) map[string]*models.PriceEstimate {
	out := make(map[string]*models.PriceEstimate, len(corpus))
	for _, l := range corpus {
		if est := e.Estimate(l, corpus); est != nil {
			out[l.ID] = est
		}
	}

	counts := make(map[models.Fairness]int)
	for _, est := range out {
		counts[est.Fairness]++
	}
	e.logger.Info("[estimator] Estimated %d/%d listings (%d below, %d fair, %d above market)",
		len(out), len(corpus), counts[models.FairnessBelowMarket], counts[models.FairnessFair],
		counts[models.FairnessAboveMarket])
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
