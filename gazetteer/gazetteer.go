// Package gazetteer is the static registry of known zones on Isla de
// Margarita: canonical names, aliases and verified coordinates.
package gazetteer

import (
	"regexp"
	"strings"

	"margarita-listings/models"
	"margarita-listings/utils"
)

// IslandZone is the zone assigned when a caption names no specific place.
const IslandZone = "Isla de Margarita"

// Bounds is a latitude/longitude box.
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Contains reports whether the point lies inside the box, edges included.
func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// Clamp moves a point onto the nearest edge when it lies outside the box.
func (b Bounds) Clamp(c models.Coordinates) models.Coordinates {
	c.Lat = min(max(c.Lat, b.MinLat), b.MaxLat)
	c.Lng = min(max(c.Lng, b.MinLng), b.MaxLng)
	return c
}

// IslandBounds encloses Isla de Margarita including the Macanao peninsula.
var IslandBounds = Bounds{MinLat: 10.85, MaxLat: 11.20, MinLng: -64.42, MaxLng: -63.75}

// IslandCenter is used when nothing more specific resolves.
var IslandCenter = models.Coordinates{Lat: 11.0000, Lng: -63.9000}

// Entry is one known zone.
type Entry struct {
	Name    string
	Coords  models.Coordinates
	Aliases []string
}

type compiledEntry struct {
	Entry
	name     string
	aliases  []string
	matchers []*regexp.Regexp
}

// Gazetteer resolves free-text zone names. Registry order is the tie-break
// for every ambiguous lookup and must not be re-sorted.
type Gazetteer struct {
	entries []compiledEntry
	bounds  Bounds
	center  models.Coordinates
}

// New builds a Gazetteer over entries, keeping their order.
func New(entries []Entry, bounds Bounds, center models.Coordinates) *Gazetteer {
	g := &Gazetteer{bounds: bounds, center: center}
	for _, e := range entries {
		ce := compiledEntry{Entry: e, name: utils.FoldText(e.Name)}
		for _, a := range e.Aliases {
			ce.aliases = append(ce.aliases, utils.FoldText(a))
		}
		for _, kw := range append([]string{ce.name}, ce.aliases...) {
			ce.matchers = append(ce.matchers, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)+`\b`))
		}
		g.entries = append(g.entries, ce)
	}
	return g
}

// Default returns the Margarita registry. Specific places (beaches,
// urbanizations) come before the towns that contain them.
func Default() *Gazetteer {
	return New(defaultEntries, IslandBounds, IslandCenter)
}

var defaultEntries = []Entry{
	{Name: "Playa El Agua", Coords: models.Coordinates{Lat: 11.1436, Lng: -63.8628}, Aliases: []string{"el agua"}},
	{Name: "Playa Parguito", Coords: models.Coordinates{Lat: 11.1350, Lng: -63.8530}, Aliases: []string{"parguito"}},
	{Name: "Playa Guacuco", Coords: models.Coordinates{Lat: 11.0510, Lng: -63.8160}, Aliases: []string{"guacuco"}},
	{Name: "El Tirano", Coords: models.Coordinates{Lat: 11.1140, Lng: -63.8390}, Aliases: []string{"playa el tirano"}},
	{Name: "Manzanillo", Coords: models.Coordinates{Lat: 11.1560, Lng: -63.8870}, Aliases: []string{"playa manzanillo"}},
	{Name: "Pedro González", Coords: models.Coordinates{Lat: 11.0990, Lng: -63.9290}, Aliases: []string{"playa pedro gonzalez"}},
	{Name: "Costa Azul", Coords: models.Coordinates{Lat: 10.9880, Lng: -63.8190}, Aliases: []string{"urb costa azul", "urbanizacion costa azul"}},
	{Name: "Los Robles", Coords: models.Coordinates{Lat: 10.9840, Lng: -63.8330}, Aliases: []string{"urbanizacion los robles"}},
	{Name: "Jorge Coll", Coords: models.Coordinates{Lat: 11.0040, Lng: -63.8400}, Aliases: []string{"urb jorge coll"}},
	{Name: "El Valle del Espíritu Santo", Coords: models.Coordinates{Lat: 10.9850, Lng: -63.8710}, Aliases: []string{"el valle", "valle del espiritu santo"}},
	{Name: "La Asunción", Coords: models.Coordinates{Lat: 11.0333, Lng: -63.8628}, Aliases: []string{"asuncion"}},
	{Name: "Juan Griego", Coords: models.Coordinates{Lat: 11.0817, Lng: -63.9653}, Aliases: []string{"juangriego"}},
	{Name: "El Yaque", Coords: models.Coordinates{Lat: 10.9000, Lng: -63.9630}, Aliases: []string{"playa el yaque", "yaque"}},
	{Name: "Punta de Piedras", Coords: models.Coordinates{Lat: 10.9000, Lng: -64.0990}, Aliases: []string{"punta piedras"}},
	{Name: "Macanao", Coords: models.Coordinates{Lat: 10.9800, Lng: -64.2900}, Aliases: []string{"peninsula de macanao", "boca de rio", "boca del rio"}},
	{Name: "Pampatar", Coords: models.Coordinates{Lat: 10.9970, Lng: -63.7975}, Aliases: []string{"bahia de pampatar"}},
	{Name: "Porlamar", Coords: models.Coordinates{Lat: 10.9577, Lng: -63.8497}, Aliases: []string{"avenida 4 de mayo", "av 4 de mayo", "bella vista"}},
}

// Lookup returns the best entry for a free-text zone name: exact canonical
// name, then exact alias, then substring in either direction, each compared
// case- and accent-insensitively. The first match in registry order wins.
func (g *Gazetteer) Lookup(query string) (Entry, bool) {
	q := utils.FoldText(query)
	if q == "" {
		return Entry{}, false
	}

	for _, e := range g.entries {
		if e.name == q {
			return e.Entry, true
		}
	}
	for _, e := range g.entries {
		for _, a := range e.aliases {
			if a == q {
				return e.Entry, true
			}
		}
	}
	for _, e := range g.entries {
		for _, kw := range append([]string{e.name}, e.aliases...) {
			if strings.Contains(q, kw) || strings.Contains(kw, q) {
				return e.Entry, true
			}
		}
	}
	return Entry{}, false
}

// DetectZone scans already-folded text for the first registry entry whose
// name or alias appears as whole words.
func (g *Gazetteer) DetectZone(foldedText string) (Entry, string, bool) {
	for _, e := range g.entries {
		for _, m := range e.matchers {
			if m.MatchString(foldedText) {
				return e.Entry, m.String(), true
			}
		}
	}
	return Entry{}, "", false
}

// IsWithinBounds reports whether a point lies on the island.
func (g *Gazetteer) IsWithinBounds(lat, lng float64) bool {
	return g.bounds.Contains(lat, lng)
}

// IsValid reports whether c is non-nil and on the island.
func (g *Gazetteer) IsValid(c *models.Coordinates) bool {
	return c != nil && g.IsWithinBounds(c.Lat, c.Lng)
}

// Bounds returns the island bounding box.
func (g *Gazetteer) Bounds() Bounds {
	return g.bounds
}

// DefaultCenter is the coordinate used when no zone resolves.
func (g *Gazetteer) DefaultCenter() models.Coordinates {
	return g.center
}

// Entries returns the registry in order.
func (g *Gazetteer) Entries() []Entry {
	out := make([]Entry, len(g.entries))
	for i, e := range g.entries {
		out[i] = e.Entry
	}
	return out
}
