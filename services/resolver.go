package services

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"margarita-listings/config"
	"margarita-listings/gazetteer"
	"margarita-listings/models"
	"margarita-listings/utils"
)

// ErrUnresolvedZone is returned under the reject policy when a named zone is
// unknown and no other tier produced a point.
var ErrUnresolvedZone = errors.New("resolver: zone not in gazetteer")

// Geocoder turns a free-text address into at most one point. Implementations
// return (nil, nil) when nothing was found.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*models.Coordinates, error)
}

// Tier names the strategy that produced a coordinate.
type Tier string

const (
	TierExisting  Tier = "existing"
	TierGeocoder  Tier = "geocoder"
	TierGazetteer Tier = "gazetteer"
	TierFallback  Tier = "fallback"
)

// Resolution is a validated coordinate and the tier that produced it.
type Resolution struct {
	Coords models.Coordinates
	Tier   Tier
	Zone   string
}

// Resolver assigns validated island coordinates using tiered fallbacks.
type Resolver struct {
	gaz      *gazetteer.Gazetteer
	geocoder Geocoder
	policy   config.UnknownZonePolicy
	tuning   config.ResolverTuning
	logger   *utils.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewResolver creates a Resolver. geocoder may be nil to skip that tier.
func NewResolver(gaz *gazetteer.Gazetteer, geocoder Geocoder, policy config.UnknownZonePolicy,
	tuning config.ResolverTuning, logger *utils.Logger) *Resolver {
	return &Resolver{
		gaz:      gaz,
		geocoder: geocoder,
		policy:   policy,
		tuning:   tuning,
		logger:   logger,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand replaces the jitter source. Used to make tests repeatable.
func (r *Resolver) WithRand(rnd *rand.Rand) *Resolver {
	r.mu.Lock()
	r.rnd = rnd
	r.mu.Unlock()
	return r
}

// Resolve returns coordinates for a listing. Tiers, first success wins:
// in-bounds existing coordinates, geocoded address, gazetteer zone with
// jitter, jittered island center. Only the reject policy can fail.
func (r *Resolver) Resolve(ctx context.Context, existing *models.Coordinates, zone, address string) (Resolution, error) {
	if r.gaz.IsValid(existing) {
		return Resolution{Coords: *existing, Tier: TierExisting, Zone: zone}, nil
	}

	if address = strings.TrimSpace(address); address != "" && r.geocoder != nil {
		point, err := r.geocoder.Geocode(ctx, address)
		switch {
		case err != nil:
			r.logger.Warn("[resolver] Geocoder failed for %q: %v", address, err)
		case point == nil:
			r.logger.Debug("[resolver] Geocoder found nothing for %q", address)
		case !r.gaz.IsValid(point):
			r.logger.Debug("[resolver] Geocoder result %v for %q is off the island", *point, address)
		default:
			return Resolution{Coords: *point, Tier: TierGeocoder, Zone: zone}, nil
		}
	}

	zone = strings.TrimSpace(zone)
	specific := zone != "" && !strings.EqualFold(zone, gazetteer.IslandZone)
	if specific {
		if entry, ok := r.gaz.Lookup(zone); ok {
			return Resolution{
				Coords: r.jitter(entry.Coords, r.tuning.ZoneJitter),
				Tier:   TierGazetteer,
				Zone:   entry.Name,
			}, nil
		}
		if r.policy == config.PolicyReject {
			return Resolution{}, ErrUnresolvedZone
		}
		r.logger.Debug("[resolver] Unknown zone %q, using island center", zone)
	}

	return Resolution{
		Coords: r.jitter(r.gaz.DefaultCenter(), r.tuning.CenterJitter),
		Tier:   TierFallback,
		Zone:   zone,
	}, nil
}

// jitter offsets c by up to radius degrees per axis and keeps it on the island.
func (r *Resolver) jitter(c models.Coordinates, radius float64) models.Coordinates {
	r.mu.Lock()
	dLat := (r.rnd.Float64()*2 - 1) * radius
	dLng := (r.rnd.Float64()*2 - 1) * radius
	r.mu.Unlock()

	return r.gaz.Bounds().Clamp(models.Coordinates{Lat: c.Lat + dLat, Lng: c.Lng + dLng})
}
