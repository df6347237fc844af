// Package geocode resolves free-text addresses on the island through an
// OpenStreetMap Nominatim server.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"margarita-listings/config"
	"margarita-listings/gazetteer"
	"margarita-listings/models"
	"margarita-listings/utils"
)

// ErrNoResult means the server answered but found nothing.
var ErrNoResult = errors.New("geocode: no result")

// Usage counter names.
const (
	UsageRequests = "geocoder.requests"
	UsageFailures = "geocoder.failures"
	UsageEmpty    = "geocoder.empty"
)

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Nominatim is a rate-limited Nominatim search client.
type Nominatim struct {
	baseURL   string
	userAgent string
	bounds    gazetteer.Bounds
	client    *http.Client
	limiter   *rate.Limiter
	retry     utils.RetryConfig
	usage     *utils.UsageCounter
	logger    *utils.Logger
}

// NewNominatim creates a client from config. usage may be nil.
func NewNominatim(cfg *config.Config, logger *utils.Logger, usage *utils.UsageCounter) *Nominatim {
	limit := rate.Inf
	if cfg.GeocoderRPS > 0 {
		limit = rate.Limit(cfg.GeocoderRPS)
	}
	return &Nominatim{
		baseURL:   strings.TrimRight(cfg.GeocoderURL, "/"),
		userAgent: cfg.GeocoderUserAgent,
		bounds:    gazetteer.IslandBounds,
		client:    &http.Client{Timeout: 15 * time.Second},
		limiter:   rate.NewLimiter(limit, 1),
		retry: utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   time.Second,
			Logger:      logger,
		},
		usage:  usage,
		logger: logger,
	}
}

// Geocode returns the best match for address inside the island's viewbox,
// or (nil, nil) when the server has no match.
func (n *Nominatim) Geocode(ctx context.Context, address string) (*models.Coordinates, error) {
	var point *models.Coordinates
	err := n.retry.Do(ctx, "geocode "+strconv.Quote(address), func() error {
		p, err := n.search(ctx, address)
		point = p
		return err
	})
	if errors.Is(err, ErrNoResult) {
		n.usage.Inc(UsageEmpty)
		return nil, nil
	}
	if err != nil {
		n.usage.Inc(UsageFailures)
		return nil, err
	}
	return point, nil
}

func (n *Nominatim) search(ctx context.Context, address string) (*models.Coordinates, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, utils.Permanent(err)
	}

	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	q.Set("bounded", "1")
	q.Set("viewbox", fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", n.bounds.MinLng, n.bounds.MaxLat, n.bounds.MaxLng, n.bounds.MinLat))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, utils.Permanent(err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	n.usage.Inc(UsageRequests)
	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode: request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("geocode: server returned %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, utils.Permanent(fmt.Errorf("geocode: server returned %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("geocode: read body: %w", err)
	}
	var places []place
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, utils.Permanent(fmt.Errorf("geocode: decode: %w", err))
	}
	if len(places) == 0 {
		return nil, utils.Permanent(ErrNoResult)
	}

	lat, errLat := strconv.ParseFloat(places[0].Lat, 64)
	lng, errLng := strconv.ParseFloat(places[0].Lon, 64)
	if errLat != nil || errLng != nil {
		return nil, utils.Permanent(fmt.Errorf("geocode: bad coordinates %q,%q", places[0].Lat, places[0].Lon))
	}
	n.logger.Debug("[geocode] %q → %s (%.5f, %.5f)", address, places[0].DisplayName, lat, lng)
	return &models.Coordinates{Lat: lat, Lng: lng}, nil
}
