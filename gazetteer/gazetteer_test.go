package gazetteer

import (
	"testing"

	"margarita-listings/models"
)

func TestLookupPrecedence(t *testing.T) {
	g := Default()

	tests := []struct {
		query string
		want  string
		found bool
	}{
		{"Pampatar", "Pampatar", true},
		{"PAMPATAR", "Pampatar", true},
		{"la asuncion", "La Asunción", true},
		{"Juangriego", "Juan Griego", true},
		{"el valle", "El Valle del Espíritu Santo", true},
		{"Pampatar, Nueva Esparta", "Pampatar", true},
		{"Costa Azul, Porlamar", "Costa Azul", true},
		{"Yaque", "El Yaque", true},
		{"Caracas", "", false},
		{"   ", "", false},
	}

	for _, tt := range tests {
		got, ok := g.Lookup(tt.query)
		if ok != tt.found {
			t.Errorf("Lookup(%q) found = %v; want %v", tt.query, ok, tt.found)
			continue
		}
		if ok && got.Name != tt.want {
			t.Errorf("Lookup(%q) = %q; want %q", tt.query, got.Name, tt.want)
		}
	}
}

func TestLookupExactAliasBeatsEarlierSubstring(t *testing.T) {
	g := New([]Entry{
		{Name: "Playa Norte", Aliases: []string{"norte"}},
		{Name: "Norte Chico", Aliases: []string{"playa"}},
	}, IslandBounds, IslandCenter)

	got, ok := g.Lookup("playa")
	if !ok || got.Name != "Norte Chico" {
		t.Errorf("exact alias should win over substring, got %q", got.Name)
	}
}

func TestLookupSubstringUsesRegistryOrder(t *testing.T) {
	g := New([]Entry{
		{Name: "Alpha Bay"},
		{Name: "Bay"},
	}, IslandBounds, IslandCenter)

	got, ok := g.Lookup("the bay area")
	if !ok || got.Name != "Bay" {
		t.Errorf("expected substring match on %q, got %q", "Bay", got.Name)
	}

	got, ok = g.Lookup("alpha")
	if !ok || got.Name != "Alpha Bay" {
		t.Errorf("expected reverse substring match on %q, got %q", "Alpha Bay", got.Name)
	}
}

func TestDetectZone(t *testing.T) {
	g := Default()

	tests := []struct {
		text  string
		want  string
		found bool
	}{
		{"casa en venta en pampatar", "Pampatar", true},
		{"apartamento en costa azul, porlamar", "Costa Azul", true},
		{"terreno cerca de playa el agua", "Playa El Agua", true},
		{"casa en el valle", "El Valle del Espíritu Santo", true},
		{"casa en la isla", "", false},
		{"propiedad en porlamarina", "", false},
	}

	for _, tt := range tests {
		got, _, ok := g.DetectZone(tt.text)
		if ok != tt.found {
			t.Errorf("DetectZone(%q) found = %v; want %v", tt.text, ok, tt.found)
			continue
		}
		if ok && got.Name != tt.want {
			t.Errorf("DetectZone(%q) = %q; want %q", tt.text, got.Name, tt.want)
		}
	}
}

func TestEntriesAreInsideBounds(t *testing.T) {
	g := Default()
	for _, e := range g.Entries() {
		if !g.IsWithinBounds(e.Coords.Lat, e.Coords.Lng) {
			t.Errorf("entry %q at %v is outside the island bounds", e.Name, e.Coords)
		}
	}
	c := g.DefaultCenter()
	if !g.IsWithinBounds(c.Lat, c.Lng) {
		t.Errorf("default center %v is outside the island bounds", c)
	}
}

func TestIsValidAndClamp(t *testing.T) {
	g := Default()

	if g.IsValid(nil) {
		t.Error("nil coordinates must be invalid")
	}
	if g.IsValid(&models.Coordinates{Lat: 10.4806, Lng: -66.9036}) {
		t.Error("Caracas must be outside the island")
	}
	if !g.IsValid(&models.Coordinates{Lat: 10.9970, Lng: -63.7975}) {
		t.Error("Pampatar must be inside the island")
	}

	clamped := g.Bounds().Clamp(models.Coordinates{Lat: 12, Lng: -63.0})
	if clamped.Lat != IslandBounds.MaxLat || clamped.Lng != IslandBounds.MaxLng {
		t.Errorf("Clamp: got %v", clamped)
	}
}
