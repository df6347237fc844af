package services

import (
	"net/url"
	"strings"

	"margarita-listings/models"
	"margarita-listings/utils"
)

// CleanStats counts the records dropped by a Clean pass.
type CleanStats struct {
	Malformed  int
	Duplicates int
}

// Cleaner normalises raw records at the ingestion boundary.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean returns normalised copies of the usable records. Records without a
// caption are malformed; records repeating a source URL already seen in the
// batch are duplicates. Records without a URL are kept.
func (c *Cleaner) Clean(raw []*models.RawRecord) ([]*models.RawRecord, CleanStats) {
	var stats CleanStats
	seen := make(map[string]struct{})
	result := make([]*models.RawRecord, 0, len(raw))

	for _, r := range raw {
		if r == nil {
			stats.Malformed++
			continue
		}
		caption := utils.NormaliseText(r.Caption)
		if caption == "" {
			c.logger.Debug("[cleaner] Dropping record without caption: %s", r.SourceURL)
			stats.Malformed++
			continue
		}

		link := canonicalURL(r.SourceURL)
		if link != "" {
			if _, dup := seen[link]; dup {
				c.logger.Debug("[cleaner] Duplicate URL skipped: %s", link)
				stats.Duplicates++
				continue
			}
			seen[link] = struct{}{}
		}

		rec := *r
		rec.Caption = caption
		rec.SourceURL = link
		rec.Platform = normalisePlatform(r.Platform)
		rec.OwnerHandle = strings.TrimPrefix(strings.TrimSpace(r.OwnerHandle), "@")
		rec.Address = utils.NormaliseText(r.Address)
		rec.ZoneHint = utils.NormaliseText(r.ZoneHint)
		rec.ThumbnailURL = strings.TrimSpace(r.ThumbnailURL)
		if rec.PostedAt.IsZero() {
			rec.PostedAt = rec.ScrapedAt
		}
		result = append(result, &rec)
	}

	c.logger.Info("[cleaner] Cleaned %d → %d records (malformed %d, duplicates %d)",
		len(raw), len(result), stats.Malformed, stats.Duplicates)
	return result, stats
}

// canonicalURL drops query strings and fragments (share trackers) and any
// trailing slash so the same post links compare equal.
func canonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

func normalisePlatform(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
