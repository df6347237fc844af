package models

import (
	"strings"
	"time"
)

// RawRecord is one unprocessed post as returned by a caption source: the
// caption text plus whatever metadata the source could see.
type RawRecord struct {
	Platform     string    `json:"platform"`
	Caption      string    `json:"caption"`
	SourceURL    string    `json:"source_url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	OwnerHandle  string    `json:"owner_handle,omitempty"`
	Address      string    `json:"address,omitempty"`
	ZoneHint     string    `json:"zone_hint,omitempty"`
	PostedAt     time.Time `json:"posted_at"`
	ScrapedAt    time.Time `json:"scraped_at"`
}

// Category is the property category of a listing.
type Category string

const (
	CategoryHouse      Category = "house"
	CategoryApartment  Category = "apartment"
	CategoryLand       Category = "land"
	CategoryCommercial Category = "commercial"
)

// ValidCategories is the set of allowed categories.
var ValidCategories = []Category{CategoryHouse, CategoryApartment, CategoryLand, CategoryCommercial}

// IsValid checks if a category is recognized.
func (c Category) IsValid() bool {
	for _, v := range ValidCategories {
		if c == v {
			return true
		}
	}
	return false
}

// Label returns a human-readable label for the category.
func (c Category) Label() string {
	switch c {
	case CategoryHouse:
		return "House"
	case CategoryApartment:
		return "Apartment"
	case CategoryLand:
		return "Land"
	case CategoryCommercial:
		return "Commercial unit"
	default:
		return string(c)
	}
}

// Status is the lifecycle status of a listing.
type Status string

const (
	StatusAvailable Status = "available"
	StatusReserved  Status = "reserved"
	StatusSold      Status = "sold"
)

// ApprovalStatus is owned by the moderation workflow; the pipeline only
// initializes it.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Listing is a real-estate offer extracted from a caption. Optional
// attributes are pointers: nil means unknown, which is distinct from zero.
type Listing struct {
	ID           string         `json:"id"`
	Platform     string         `json:"platform"`
	SourceURL    string         `json:"source_url"`
	ThumbnailURL string         `json:"thumbnail_url,omitempty"`
	OwnerHandle  string         `json:"owner_handle,omitempty"`
	Caption      string         `json:"caption"`
	Title        string         `json:"title"`
	Category     Category       `json:"category"`
	PriceUSD     *float64       `json:"price_usd,omitempty"`
	PricePerM2   *float64       `json:"price_per_m2,omitempty"`
	Bedrooms     *int           `json:"bedrooms,omitempty"`
	Bathrooms    *int           `json:"bathrooms,omitempty"`
	AreaM2       *float64       `json:"area_m2,omitempty"`
	Parking      *int           `json:"parking,omitempty"`
	Zone         string         `json:"zone"`
	Address      string         `json:"address,omitempty"`
	Coords       *Coordinates   `json:"coords,omitempty"`
	Features     []string       `json:"features"`
	QualityScore int            `json:"quality_score"`
	Confidence   float64        `json:"confidence"`
	Status       Status         `json:"status"`
	Approval     ApprovalStatus `json:"approval"`
	Rationale    string         `json:"rationale"`
	PostedAt     time.Time      `json:"posted_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// HasPrice reports whether the listing carries a price.
func (l *Listing) HasPrice() bool {
	return l.PriceUSD != nil
}

// Price returns the price or zero when unpriced.
func (l *Listing) Price() float64 {
	if l.PriceUSD == nil {
		return 0
	}
	return *l.PriceUSD
}

// PricePerSquareMeter returns the stored price per m², deriving it from
// price and area when it was never stored.
func (l *Listing) PricePerSquareMeter() (float64, bool) {
	if l.PricePerM2 != nil {
		return *l.PricePerM2, true
	}
	if l.PriceUSD != nil && l.AreaM2 != nil && *l.AreaM2 > 0 {
		return *l.PriceUSD / *l.AreaM2, true
	}
	return 0, false
}

// ZoneKey is the zone name used for case-insensitive comparisons.
func (l *Listing) ZoneKey() string {
	return strings.ToLower(strings.TrimSpace(l.Zone))
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
