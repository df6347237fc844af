package services

import (
	"math"
	"sort"
	"strings"

	"margarita-listings/config"
	"margarita-listings/models"
	"margarita-listings/utils"
)

// ZoneAnalyzer aggregates a corpus into ranked zones. It holds no state
// between calls.
type ZoneAnalyzer struct {
	tuning config.ZoneTuning
	logger *utils.Logger
}

// NewZoneAnalyzer creates a ZoneAnalyzer.
func NewZoneAnalyzer(tuning config.ZoneTuning, logger *utils.Logger) *ZoneAnalyzer {
	return &ZoneAnalyzer{tuning: tuning, logger: logger}
}

// Baseline is the market-wide reference the zone tiers are scored against.
type Baseline struct {
	PricePerM2 float64
	Quality    float64
}

type zoneAcc struct {
	zone              models.Zone
	priceSum, ppm2Sum float64
	priced, withPPM2  int
	qualitySum        int
	latSum, lngSum    float64
	located           int
}

// Analyze groups listings by trimmed zone name and returns the zones ordered
// HIGH, MEDIUM, LOW, each tier by descending average quality.
func (a *ZoneAnalyzer) Analyze(listings []*models.Listing) []models.Zone {
	index := make(map[string]*zoneAcc)
	var order []*zoneAcc

	for _, l := range listings {
		name := strings.TrimSpace(l.Zone)
		if name == "" {
			continue
		}
		acc, ok := index[name]
		if !ok {
			acc = &zoneAcc{zone: models.Zone{Name: name}}
			index[name] = acc
			order = append(order, acc)
		}

		acc.zone.Count++
		acc.qualitySum += l.QualityScore
		if l.HasPrice() {
			acc.priceSum += *l.PriceUSD
			acc.priced++
		}
		if ppm2, ok := l.PricePerSquareMeter(); ok {
			acc.ppm2Sum += ppm2
			acc.withPPM2++
		}
		if l.Coords != nil {
			acc.latSum += l.Coords.Lat
			acc.lngSum += l.Coords.Lng
			acc.located++
		}
	}

	zones := make([]models.Zone, 0, len(order))
	for _, acc := range order {
		z := acc.zone
		z.AvgPrice = mean(acc.priceSum, acc.priced)
		z.AvgPricePerM2 = mean(acc.ppm2Sum, acc.withPPM2)
		z.AvgQuality = mean(float64(acc.qualitySum), z.Count)
		z.Centroid = models.Coordinates{Lat: mean(acc.latSum, acc.located), Lng: mean(acc.lngSum, acc.located)}
		zones = append(zones, z)
	}

	base := Baselines(zones)
	for i := range zones {
		zones[i].Score = a.score(zones[i], base)
		zones[i].Recommendation = a.tier(zones[i].Score)
	}

	sort.SliceStable(zones, func(i, j int) bool {
		ri, rj := zones[i].Recommendation.Rank(), zones[j].Recommendation.Rank()
		if ri != rj {
			return ri < rj
		}
		return zones[i].AvgQuality > zones[j].AvgQuality
	})

	a.logger.Info("[zones] Analyzed %d listings into %d zones (baseline $%.2f/m², quality %.1f)",
		len(listings), len(zones), base.PricePerM2, base.Quality)
	return zones
}

// Baselines averages the zones' price-per-m² and quality. Zones without price
// data count as zero.
func Baselines(zones []models.Zone) Baseline {
	if len(zones) == 0 {
		return Baseline{}
	}
	var ppm2, quality float64
	for _, z := range zones {
		ppm2 += z.AvgPricePerM2
		quality += z.AvgQuality
	}
	n := float64(len(zones))
	return Baseline{PricePerM2: ppm2 / n, Quality: quality / n}
}

func (a *ZoneAnalyzer) score(z models.Zone, base Baseline) float64 {
	t := a.tuning
	density := math.Min(100, float64(z.Count)/float64(t.DensitySaturates)*100)
	return t.PriceWeight*a.priceScore(z.AvgPricePerM2, base.PricePerM2) +
		t.QualityWeight*z.AvgQuality +
		t.DensityWeight*density
}

func (a *ZoneAnalyzer) priceScore(ppm2, baseline float64) float64 {
	t := a.tuning
	if ppm2 <= 0 || baseline <= 0 {
		return t.OtherScore
	}
	switch ratio := ppm2 / baseline; {
	case ratio < t.CheapBand:
		return t.CheapScore
	case ratio <= t.FairBand:
		return t.FairScore
	default:
		return t.OtherScore
	}
}

func (a *ZoneAnalyzer) tier(score float64) models.Recommendation {
	switch {
	case score >= a.tuning.HighCutoff:
		return models.RecommendationHigh
	case score >= a.tuning.MediumCutoff:
		return models.RecommendationMedium
	default:
		return models.RecommendationLow
	}
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
