package services

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"margarita-listings/config"
	"margarita-listings/models"
	"margarita-listings/utils"
)

// MergeKind says how an incoming candidate was reconciled.
type MergeKind string

const (
	MergeInserted MergeKind = "inserted"
	MergeSameURL  MergeKind = "same-url"
	MergeSimilar  MergeKind = "similar"
)

// MergeOutcome describes one reconciliation.
type MergeOutcome struct {
	Kind      MergeKind
	Existing  *models.Listing
	Escalated bool
	Backdated bool
}

// ReconcileStats counts reconciliation outcomes over a batch.
type ReconcileStats struct {
	Inserted  int
	Skipped   int
	Escalated int
	Backdated int
}

// Deduplicator merges candidate listings into a corpus. Reconcile mutates
// corpus entries in place; calls on one Deduplicator are serialized, but
// callers sharing a corpus across Deduplicators must lock themselves.
type Deduplicator struct {
	tolerance float64
	logger    *utils.Logger
	now       func() time.Time
	mu        sync.Mutex
}

// NewDeduplicator creates a Deduplicator.
func NewDeduplicator(tuning config.DedupTuning, logger *utils.Logger) *Deduplicator {
	return &Deduplicator{tolerance: tuning.PriceTolerance, logger: logger, now: time.Now}
}

// DedupeBatch keeps, for each identity key (price, zone, category, bedrooms,
// bathrooms), only the candidate with the highest quality score. Ties keep
// the earliest candidate. Output keeps the order in which keys first appeared.
// The input is never modified.
func (d *Deduplicator) DedupeBatch(candidates []*models.Listing) []*models.Listing {
	best := make(map[string]int, len(candidates))
	result := make([]*models.Listing, 0, len(candidates))

	for _, c := range candidates {
		key := identityKey(c)
		idx, seen := best[key]
		if !seen {
			best[key] = len(result)
			result = append(result, c)
			continue
		}
		if c.QualityScore > result[idx].QualityScore {
			d.logger.Debug("[dedup] %s replaces %s within batch (quality %d > %d)",
				c.ID, result[idx].ID, c.QualityScore, result[idx].QualityScore)
			result[idx] = c
		}
	}

	if dropped := len(candidates) - len(result); dropped > 0 {
		d.logger.Info("[dedup] Batch %d → %d candidates (dropped %d duplicates)",
			len(candidates), len(result), dropped)
	}
	return result
}

func identityKey(l *models.Listing) string {
	price := "-"
	if l.PriceUSD != nil {
		price = fmt.Sprintf("%.2f", *l.PriceUSD)
	}
	return strings.Join([]string{price, l.ZoneKey(), string(l.Category), intKey(l.Bedrooms), intKey(l.Bathrooms)}, "|")
}

func intKey(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

// Reconcile merges one candidate into the corpus and returns the possibly
// grown corpus. A candidate sharing a source URL with an entry, or similar to
// one, is not inserted; it may escalate the entry to sold or move its posted
// date earlier. Re-applying the same candidate changes nothing further.
func (d *Deduplicator) Reconcile(corpus []*models.Listing, candidate *models.Listing) ([]*models.Listing, MergeOutcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reconcile(corpus, candidate)
}

// ReconcileAll applies Reconcile to candidates in arrival order.
func (d *Deduplicator) ReconcileAll(corpus []*models.Listing, candidates []*models.Listing) ([]*models.Listing, ReconcileStats) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var stats ReconcileStats
	for _, c := range candidates {
		var out MergeOutcome
		corpus, out = d.reconcile(corpus, c)
		stats.add(out)
	}

	d.logger.Info("[dedup] Reconciled %d candidates: %d inserted, %d merged (%d sold updates, %d backdated)",
		len(candidates), stats.Inserted, stats.Skipped, stats.Escalated, stats.Backdated)
	return corpus, stats
}

func (s *ReconcileStats) add(out MergeOutcome) {
	if out.Kind == MergeInserted {
		s.Inserted++
	} else {
		s.Skipped++
	}
	if out.Escalated {
		s.Escalated++
	}
	if out.Backdated {
		s.Backdated++
	}
}

func (d *Deduplicator) reconcile(corpus []*models.Listing, c *models.Listing) ([]*models.Listing, MergeOutcome) {
	if url := strings.TrimSpace(c.SourceURL); url != "" {
		for _, existing := range corpus {
			if strings.TrimSpace(existing.SourceURL) != url {
				continue
			}
			out := MergeOutcome{Kind: MergeSameURL, Existing: existing}
			out.Escalated = d.escalate(existing, c)
			return corpus, out
		}
	}

	for _, existing := range corpus {
		if !d.similar(existing, c) {
			continue
		}
		out := MergeOutcome{Kind: MergeSimilar, Existing: existing}
		out.Backdated = d.backdate(existing, c)
		out.Escalated = d.escalate(existing, c)
		d.logger.Debug("[dedup] %s merged into %s (%s)", c.ID, existing.ID, existing.Zone)
		return corpus, out
	}

	return append(corpus, c), MergeOutcome{Kind: MergeInserted}
}

// similar: same zone and category, prices within tolerance, and equal room
// counts wherever both sides know them.
func (d *Deduplicator) similar(a, b *models.Listing) bool {
	if a.ZoneKey() != b.ZoneKey() || a.Category != b.Category {
		return false
	}
	if a.PriceUSD != nil && b.PriceUSD != nil && !withinTolerance(*a.PriceUSD, *b.PriceUSD, d.tolerance) {
		return false
	}
	if a.Bedrooms != nil && b.Bedrooms != nil && *a.Bedrooms != *b.Bedrooms {
		return false
	}
	if a.Bathrooms != nil && b.Bathrooms != nil && *a.Bathrooms != *b.Bathrooms {
		return false
	}
	return true
}

// withinTolerance compares the gap to the larger of the two prices.
func withinTolerance(a, b, tolerance float64) bool {
	hi := math.Max(a, b)
	if hi == 0 {
		return true
	}
	return math.Abs(a-b)/hi <= tolerance
}

func (d *Deduplicator) escalate(existing, c *models.Listing) bool {
	if c.Status != models.StatusSold || existing.Status == models.StatusSold {
		return false
	}
	existing.Status = models.StatusSold
	existing.UpdatedAt = d.now()
	d.logger.Info("[dedup] Listing %s marked sold", existing.ID)
	return true
}

func (d *Deduplicator) backdate(existing, c *models.Listing) bool {
	if c.PostedAt.IsZero() {
		return false
	}
	if !existing.PostedAt.IsZero() && !c.PostedAt.Before(existing.PostedAt) {
		return false
	}
	existing.PostedAt = c.PostedAt
	existing.UpdatedAt = d.now()
	return true
}
