package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SimilarityWeights weigh the attributes compared between two listings.
type SimilarityWeights struct {
	Category  float64 `yaml:"category"`
	Zone      float64 `yaml:"zone"`
	Area      float64 `yaml:"area"`
	Bedrooms  float64 `yaml:"bedrooms"`
	Bathrooms float64 `yaml:"bathrooms"`
}

// EstimatorTuning controls comparable selection and the fairness band.
type EstimatorTuning struct {
	Weights          SimilarityWeights `yaml:"weights"`
	MinSimilarity    float64           `yaml:"min_similarity"`
	MaxComparables   int               `yaml:"max_comparables"`
	BelowMarketRatio float64           `yaml:"below_market_ratio"`
	AboveMarketRatio float64           `yaml:"above_market_ratio"`
}

// ZoneTuning controls the zone recommendation score.
type ZoneTuning struct {
	PriceWeight      float64 `yaml:"price_weight"`
	QualityWeight    float64 `yaml:"quality_weight"`
	DensityWeight    float64 `yaml:"density_weight"`
	CheapBand        float64 `yaml:"cheap_band"`
	FairBand         float64 `yaml:"fair_band"`
	CheapScore       float64 `yaml:"cheap_score"`
	FairScore        float64 `yaml:"fair_score"`
	OtherScore       float64 `yaml:"other_score"`
	DensitySaturates int     `yaml:"density_saturates"`
	HighCutoff       float64 `yaml:"high_cutoff"`
	MediumCutoff     float64 `yaml:"medium_cutoff"`
}

// DedupTuning controls fuzzy matching against the corpus.
type DedupTuning struct {
	PriceTolerance float64 `yaml:"price_tolerance"`
}

// ResolverTuning controls coordinate jitter, in degrees.
type ResolverTuning struct {
	ZoneJitter   float64 `yaml:"zone_jitter"`
	CenterJitter float64 `yaml:"center_jitter"`
}

// Tuning groups every empirically chosen constant of the analytics.
type Tuning struct {
	Estimator EstimatorTuning `yaml:"estimator"`
	Zones     ZoneTuning      `yaml:"zones"`
	Dedup     DedupTuning     `yaml:"dedup"`
	Resolver  ResolverTuning  `yaml:"resolver"`
}

// DefaultTuning returns the calibrated constants.
func DefaultTuning() Tuning {
	return Tuning{
		Estimator: EstimatorTuning{
			Weights: SimilarityWeights{
				Category:  0.30,
				Zone:      0.25,
				Area:      0.20,
				Bedrooms:  0.15,
				Bathrooms: 0.10,
			},
			MinSimilarity:    0.3,
			MaxComparables:   10,
			BelowMarketRatio: 0.90,
			AboveMarketRatio: 1.10,
		},
		Zones: ZoneTuning{
			PriceWeight:      0.4,
			QualityWeight:    0.4,
			DensityWeight:    0.2,
			CheapBand:        0.9,
			FairBand:         1.1,
			CheapScore:       100,
			FairScore:        70,
			OtherScore:       40,
			DensitySaturates: 10,
			HighCutoff:       70,
			MediumCutoff:     45,
		},
		Dedup: DedupTuning{
			PriceTolerance: 0.10,
		},
		Resolver: ResolverTuning{
			ZoneJitter:   0.003,
			CenterJitter: 0.01,
		},
	}
}

// LoadTuning reads a YAML tuning file. Keys missing from the file keep their
// default values.
func LoadTuning(path string) (Tuning, error) {
	tuning := DefaultTuning()

	data, err := os.ReadFile(path)
	if err != nil {
		return tuning, fmt.Errorf("tuning: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &tuning); err != nil {
		return DefaultTuning(), fmt.Errorf("tuning: parse %q: %w", path, err)
	}
	if err := tuning.Validate(); err != nil {
		return DefaultTuning(), err
	}
	return tuning, nil
}

// Validate rejects tunings that would make the scoring meaningless.
func (t Tuning) Validate() error {
	w := t.Estimator.Weights
	if w.Category < 0 || w.Zone < 0 || w.Area < 0 || w.Bedrooms < 0 || w.Bathrooms < 0 {
		return fmt.Errorf("tuning: similarity weights must be non-negative")
	}
	if t.Estimator.MaxComparables < 1 {
		return fmt.Errorf("tuning: max_comparables must be at least 1")
	}
	if t.Estimator.BelowMarketRatio >= t.Estimator.AboveMarketRatio {
		return fmt.Errorf("tuning: below_market_ratio must be lower than above_market_ratio")
	}
	if t.Zones.DensitySaturates < 1 {
		return fmt.Errorf("tuning: density_saturates must be at least 1")
	}
	if t.Zones.MediumCutoff > t.Zones.HighCutoff {
		return fmt.Errorf("tuning: medium_cutoff must not exceed high_cutoff")
	}
	if t.Dedup.PriceTolerance < 0 || t.Resolver.ZoneJitter < 0 || t.Resolver.CenterJitter < 0 {
		return fmt.Errorf("tuning: tolerances and jitter must be non-negative")
	}
	return nil
}
