package models

// Recommendation is the desirability tier assigned to a zone.
type Recommendation string

const (
	RecommendationHigh   Recommendation = "HIGH"
	RecommendationMedium Recommendation = "MEDIUM"
	RecommendationLow    Recommendation = "LOW"
)

// Rank orders tiers for sorting: HIGH first.
func (r Recommendation) Rank() int {
	switch r {
	case RecommendationHigh:
		return 0
	case RecommendationMedium:
		return 1
	default:
		return 2
	}
}

// Zone is a derived aggregate over the listings sharing a zone name.
type Zone struct {
	Name           string         `json:"name"`
	Centroid       Coordinates    `json:"centroid"`
	Count          int            `json:"count"`
	AvgPrice       float64        `json:"avg_price"`
	AvgPricePerM2  float64        `json:"avg_price_per_m2"`
	AvgQuality     float64        `json:"avg_quality"`
	Score          float64        `json:"score"`
	Recommendation Recommendation `json:"recommendation"`
}

// Fairness classifies a price against its estimate.
type Fairness string

const (
	FairnessBelowMarket Fairness = "below-market"
	FairnessFair        Fairness = "fair"
	FairnessAboveMarket Fairness = "above-market"
)

// PriceEstimate is the derived fair-price record for one listing.
type PriceEstimate struct {
	ListingID           string   `json:"listing_id"`
	EstimatedPrice      float64  `json:"estimated_price"`
	EstimatedPricePerM2 float64  `json:"estimated_price_per_m2"`
	ZoneAvgPrice        float64  `json:"zone_avg_price"`
	ZoneAvgPricePerM2   float64  `json:"zone_avg_price_per_m2"`
	Fairness            Fairness `json:"fairness"`
	PriceRatio          float64  `json:"price_ratio,omitempty"`
	Confidence          int      `json:"confidence"`
	Comparables         int      `json:"comparables"`
}

// Deal pairs a listing with its estimate for reporting.
type Deal struct {
	Listing  *Listing
	Estimate *PriceEstimate
}

// MarketReport holds the computed analytics over the corpus.
type MarketReport struct {
	TotalListings      int
	PricedListings     int
	ByStatus           map[Status]int
	ByCategory         map[Category]int
	AveragePrice       float64
	MinPrice           float64
	MaxPrice           float64
	BaselinePricePerM2 float64
	BaselineQuality    float64
	Zones              []Zone
	BestDeals          []Deal
}
