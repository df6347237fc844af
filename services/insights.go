package services

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"margarita-listings/models"
	"margarita-listings/utils"
)

const maxBestDeals = 5

var titleCase = cases.Title(language.English)

// ReportService turns analytics into a MarketReport and renders it.
type ReportService struct {
	logger *utils.Logger
	out    io.Writer
}

// NewReportService creates a ReportService that prints to stdout.
func NewReportService(logger *utils.Logger) *ReportService {
	return &ReportService{logger: logger, out: os.Stdout}
}

// Generate summarises the corpus together with its zones and estimates.
func (s *ReportService) Generate(corpus []*models.Listing, zones []models.Zone,
	estimates map[string]*models.PriceEstimate) *models.MarketReport {
	report := &models.MarketReport{
		ByStatus:   make(map[models.Status]int),
		ByCategory: make(map[models.Category]int),
		Zones:      zones,
	}

	if len(corpus) == 0 {
		return report
	}
	report.TotalListings = len(corpus)

	var total float64
	for _, l := range corpus {
		report.ByStatus[l.Status]++
		report.ByCategory[l.Category]++
		if !l.HasPrice() {
			continue
		}
		p := *l.PriceUSD
		if report.PricedListings == 0 || p < report.MinPrice {
			report.MinPrice = p
		}
		if p > report.MaxPrice {
			report.MaxPrice = p
		}
		total += p
		report.PricedListings++
	}
	if report.PricedListings > 0 {
		report.AveragePrice = round2(total / float64(report.PricedListings))
	}

	base := Baselines(zones)
	report.BaselinePricePerM2 = round2(base.PricePerM2)
	report.BaselineQuality = round2(base.Quality)

	for _, l := range corpus {
		est, ok := estimates[l.ID]
		if !ok || est.Fairness != models.FairnessBelowMarket || l.Status == models.StatusSold {
			continue
		}
		report.BestDeals = append(report.BestDeals, models.Deal{Listing: l, Estimate: est})
	}
	sort.SliceStable(report.BestDeals, func(i, j int) bool {
		return report.BestDeals[i].Estimate.PriceRatio < report.BestDeals[j].Estimate.PriceRatio
	})
	if len(report.BestDeals) > maxBestDeals {
		report.BestDeals = report.BestDeals[:maxBestDeals]
	}

	s.logger.Info("[report] %d listings, %d priced, %d zones, %d below-market deals",
		report.TotalListings, report.PricedListings, len(zones), len(report.BestDeals))
	return report
}

// Print writes the report with terminal colours.
func (s *ReportService) Print(r *models.MarketReport) {
	w := s.out
	sep := strings.Repeat("═", 58)
	thin := strings.Repeat("─", 58)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  🏝  MARGARITA REAL-ESTATE MARKET\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Listings in corpus : \033[1m%d\033[0m\n", r.TotalListings)
	fmt.Fprintf(w, "  With price         : \033[1m%d\033[0m\n", r.PricedListings)
	for _, st := range []models.Status{models.StatusAvailable, models.StatusReserved, models.StatusSold} {
		fmt.Fprintf(w, "  %-18s : %d\n", titleCase.String(string(st)), r.ByStatus[st])
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Price Statistics (USD)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.PricedListings > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m$%s\033[0m\n", money(r.AveragePrice))
		fmt.Fprintf(w, "  Minimum price : \033[1;32m$%s\033[0m\n", money(r.MinPrice))
		fmt.Fprintf(w, "  Maximum price : \033[1;32m$%s\033[0m\n", money(r.MaxPrice))
		fmt.Fprintf(w, "  Market $/m²   : \033[1;32m$%s\033[0m\n", money(r.BaselinePricePerM2))
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Listings by Category\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for _, c := range models.ValidCategories {
		if n := r.ByCategory[c]; n > 0 {
			fmt.Fprintf(w, "  %-20s %s (%d)\n", c.Label(), strings.Repeat("█", min(n, 30)), n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Zone Ranking\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.Zones) == 0 {
		fmt.Fprintf(w, "  No zone data\n")
	}
	for i, z := range r.Zones {
		fmt.Fprintf(w, "  \033[1m%2d.\033[0m %-26s %s  %3d listings  q %.0f  $%s/m²\n",
			i+1, truncate(z.Name, 26), tierColour(z.Recommendation), z.Count, z.AvgQuality, money(z.AvgPricePerM2))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Best Deals (below market)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.BestDeals) == 0 {
		fmt.Fprintf(w, "  No below-market listings found\n")
	}
	for i, d := range r.BestDeals {
		fmt.Fprintf(w, "  \033[1m%d.\033[0m %-32s \033[1;32m$%s\033[0m vs est. $%s (%.0f%%, conf %d)\n",
			i+1, truncate(d.Listing.Title, 32), money(d.Listing.Price()), money(d.Estimate.EstimatedPrice),
			d.Estimate.PriceRatio*100, d.Estimate.Confidence)
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func tierColour(r models.Recommendation) string {
	switch r {
	case models.RecommendationHigh:
		return "\033[1;32mHIGH  \033[0m"
	case models.RecommendationMedium:
		return "\033[1;33mMEDIUM\033[0m"
	default:
		return "\033[1;31mLOW   \033[0m"
	}
}

// money formats whole dollars with thousands separators.
func money(f float64) string {
	s := fmt.Sprintf("%.0f", f)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, ch := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
